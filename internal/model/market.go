package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is a price observation for the traded pair.
type Quote struct {
	Pair      string
	Price     decimal.Decimal
	FetchedAt time.Time
}
