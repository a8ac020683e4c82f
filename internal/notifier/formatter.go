package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

// TradeReport describes an executed order for notification.
type TradeReport struct {
	Side      model.Side
	Pair      string
	Reason    string
	OrderID   string
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Fee       decimal.Decimal
	Available decimal.Decimal
	Reserved  decimal.Decimal
	Time      time.Time
}

// FormatTrade returns the subject and body for an executed order.
func FormatTrade(r TradeReport) (string, string) {
	verb := "Bought"
	if r.Side == model.SideSell {
		verb = "Sold"
	}
	subject := fmt.Sprintf("%s %s %s @ %s", verb, r.Qty, r.Pair, r.Price.StringFixed(0))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", verb, r.Pair)
	fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	fmt.Fprintf(&b, "Order: %s\n", r.OrderID)
	fmt.Fprintf(&b, "Qty: %s\n", r.Qty)
	fmt.Fprintf(&b, "Price: %s\n", r.Price)
	fmt.Fprintf(&b, "Cost: %s (fee %s)\n", r.Cost.StringFixed(2), r.Fee.StringFixed(2))
	fmt.Fprintf(&b, "Fund: available %s, reserved %s\n", r.Available.StringFixed(2), r.Reserved.StringFixed(2))
	fmt.Fprintf(&b, "Time: %s\n", r.Time.Format("2006-01-02 15:04:05"))
	return subject, b.String()
}

// FormatFailure returns the subject and body for a cycle that aborted after deciding to trade.
func FormatFailure(kind, phase, reason string) (string, string) {
	subject := "Order aborted: " + kind
	body := fmt.Sprintf("Outcome: %s\nLast phase: %s\nReason: %s\n", kind, phase, reason)
	return subject, body
}

// FormatFundStatus formats the fund ledger for display.
func FormatFundStatus(s model.FundSnapshot) string {
	var b strings.Builder
	b.WriteString("Fund ledger\n")
	fmt.Fprintf(&b, "Available: %s\n", s.Available.StringFixed(2))
	fmt.Fprintf(&b, "Reserved:  %s\n", s.Reserved.StringFixed(2))
	fmt.Fprintf(&b, "Total:     %s\n", s.Total().StringFixed(2))
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated:   %s\n", s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}

// FormatPositions lists open positions with their gain at latest (zero latest omits gains).
func FormatPositions(st *model.BotState, latest decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Positions: %d\n", len(st.Positions))
	if st.WatchReference.Valid {
		fmt.Fprintf(&b, "Watch reference: %s\n", st.WatchReference.Decimal)
	}
	if t, ok := st.LastBuy(); ok {
		fmt.Fprintf(&b, "Last buy: %s\n", t.Format("2006-01-02 15:04"))
	}
	hundred := decimal.NewFromInt(100)
	for i := len(st.Positions) - 1; i >= 0; i-- {
		p := st.Positions[i]
		line := fmt.Sprintf("  %s %s @ %s", p.Side, p.Qty, p.Price)
		if latest.IsPositive() && p.Price.IsPositive() {
			gain := latest.Sub(p.Price).Div(p.Price).Mul(hundred)
			line += fmt.Sprintf(" (%s%%)", gain.StringFixed(2))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
