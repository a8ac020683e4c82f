package trader

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Fees describe the exchange's charge per order: cost × Rate + Fixed.
type Fees struct {
	Rate  decimal.Decimal
	Fixed decimal.Decimal
}

// Of returns the fee charged on cost.
func (f Fees) Of(cost decimal.Decimal) decimal.Decimal {
	return cost.Mul(f.Rate).Add(f.Fixed)
}

// Sizing are the quantity rules for one order.
type Sizing struct {
	MinQty           decimal.Decimal
	Step             decimal.Decimal // zero disables rounding
	Fees             Fees
	AutoResize       bool
	ResizeMultiplier decimal.Decimal
}

// Size is a sized order. Budget is the amount that covers Cost + Fee; it exceeds the requested
// budget only when the order was auto-resized.
type Size struct {
	Qty     decimal.Decimal
	Cost    decimal.Decimal
	Fee     decimal.Decimal
	Budget  decimal.Decimal
	Resized bool
}

// Zero reports whether nothing can be bought.
func (s Size) Zero() bool { return !s.Qty.IsPositive() }

// Total is cost plus fee.
func (s Size) Total() decimal.Decimal { return s.Cost.Add(s.Fee) }

// RoundDown truncates qty to a multiple of step.
func RoundDown(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// Budget returns the quote amount one buy may spend out of available:
// min(orderBudget (zero means unlimited), available × maxRiskPct/100, available − buffer).
func Budget(available, orderBudget, maxRiskPct, buffer decimal.Decimal) decimal.Decimal {
	b := available.Mul(maxRiskPct).Div(hundred)
	if orderBudget.IsPositive() {
		b = decimal.Min(b, orderBudget)
	}
	return decimal.Min(b, available.Sub(buffer))
}

// SizeOrder sizes a buy at price so that cost + fee fits budget. When the rounded quantity is
// below the minimum and auto-resize is on, the budget is multiplied once, capped at ceiling.
func SizeOrder(budget, price decimal.Decimal, s Sizing, ceiling decimal.Decimal) Size {
	if !price.IsPositive() || !budget.IsPositive() {
		return Size{}
	}
	qty := maxQty(budget, price, s)
	if qty.LessThan(s.MinQty) || !qty.IsPositive() {
		if !s.AutoResize || !s.ResizeMultiplier.GreaterThan(decimal.NewFromInt(1)) {
			return Size{}
		}
		resized := decimal.Min(budget.Mul(s.ResizeMultiplier), ceiling)
		if !resized.GreaterThan(budget) {
			return Size{}
		}
		qty = maxQty(resized, price, s)
		if qty.LessThan(s.MinQty) || !qty.IsPositive() {
			return Size{}
		}
		cost := qty.Mul(price)
		return Size{Qty: qty, Cost: cost, Fee: s.Fees.Of(cost), Budget: resized, Resized: true}
	}
	cost := qty.Mul(price)
	return Size{Qty: qty, Cost: cost, Fee: s.Fees.Of(cost), Budget: budget}
}

// maxQty is the largest step-aligned quantity whose cost plus fee fits budget.
func maxQty(budget, price decimal.Decimal, s Sizing) decimal.Decimal {
	spend := budget.Sub(s.Fees.Fixed)
	if !spend.IsPositive() {
		return decimal.Zero
	}
	unit := price.Mul(decimal.NewFromInt(1).Add(s.Fees.Rate))
	q, _ := spend.QuoRem(unit, 16)
	return RoundDown(q, s.Step)
}
