package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundSnapshot is a point-in-time copy of the fund ledger.
type FundSnapshot struct {
	Available decimal.Decimal
	Reserved  decimal.Decimal
	UpdatedAt time.Time
}

// Total returns available + reserved.
func (s FundSnapshot) Total() decimal.Decimal {
	return s.Available.Add(s.Reserved)
}
