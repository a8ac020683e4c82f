package model

import "github.com/shopspring/decimal"

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest is what the coordinator hands to the exchange.
type OrderRequest struct {
	Pair  string
	Side  Side
	Type  OrderType
	Qty   decimal.Decimal
	Price decimal.Decimal // zero for market orders
}

// OrderResult is the exchange's answer to a placed order.
type OrderResult struct {
	ID        string
	FilledQty decimal.Decimal
	Cost      decimal.Decimal // quote currency spent or received, zero if unknown
	AvgPrice  decimal.Decimal // zero if unknown
}

// WellFormed reports whether the result carries an order ID, the minimum a success needs.
func (r *OrderResult) WellFormed() bool {
	return r != nil && r.ID != ""
}
