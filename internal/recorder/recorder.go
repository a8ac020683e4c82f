package recorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleRecord is one trading cycle outcome.
type CycleRecord struct {
	Time           time.Time
	Outcome        string // result kind, e.g. "bought", "trigger_not_met"
	Phase          string // last state reached
	Reason         string
	Price          decimal.Decimal
	ExecPrice      decimal.Decimal
	WatchReference decimal.Decimal
	Budget         decimal.Decimal
	Qty            decimal.Decimal
	Cost           decimal.Decimal
	Fee            decimal.Decimal
	OrderID        string
	Available      decimal.Decimal // after the cycle
	Reserved       decimal.Decimal
	LockWait       time.Duration
	Duration       time.Duration

	// Daily indicators, zero when not collected.
	RecentHigh float64
	SMAShort   float64
	SMALong    float64
	DailyRSI   float64
	ATR        float64
}

// TradeRecord is one executed order.
type TradeRecord struct {
	Time       time.Time
	Side       string
	Pair       string
	OrderID    string
	PositionID string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Cost       decimal.Decimal
	Fee        decimal.Decimal
	Reason     string
}

// FundEvent records a ledger change that did not come from a reservation.
type FundEvent struct {
	Time            time.Time
	EventType       string // "DEPOSIT", "TOPUP", "MANUAL_ADD", "MANUAL_RELEASE", "SELL_PROCEEDS"
	AvailableBefore decimal.Decimal
	AvailableAfter  decimal.Decimal
	ReservedBefore  decimal.Decimal
	ReservedAfter   decimal.Decimal
	Amount          decimal.Decimal
	Note            string
}

// Recorder persists the bot's history for later analysis.
type Recorder interface {
	RecordCycle(rec *CycleRecord) error
	RecordTrade(rec *TradeRecord) error
	RecordFundEvent(evt *FundEvent) error
	RecentTrades(limit int) ([]TradeRecord, error)
	Close() error
}
