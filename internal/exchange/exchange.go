// Package exchange holds the exchange collaborators: a Binance spot adapter, a paper exchange
// for dry runs, a public bitbank market-data feed and a decorator adding rate limiting and
// retries.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

var (
	// ErrPriceUnavailable means no usable price could be obtained.
	ErrPriceUnavailable = errors.New("exchange: price unavailable")
	// ErrOrderRejected means the exchange refused or cancelled the order.
	ErrOrderRejected = errors.New("exchange: order rejected")
)

// MarketData is the read-only part of an exchange.
type MarketData interface {
	Name() string
	FetchLatestPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	FetchDailyBars(ctx context.Context, pair string, days int) ([]model.OHLCV, error)
}

// Exchange is everything a trading cycle needs from a venue.
type Exchange interface {
	MarketData
	FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
}

// SplitPair splits "BTC/JPY" (or "btc_jpy") into base and quote assets, upper-cased.
func SplitPair(pair string) (base, quote string, err error) {
	sep := "/"
	if !strings.Contains(pair, sep) {
		sep = "_"
	}
	parts := strings.Split(pair, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair %q, expected BASE/QUOTE", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}
