package trigger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

// realertMovePct is how far the price must move from the last alerted price before the same
// alert fires again.
var realertMovePct = decimal.NewFromInt(5)

// opportunityFactor puts the buy-opportunity line 5% below the buy threshold.
var opportunityFactor = decimal.RequireFromString("0.95")

// Alert is a notification the caller should send. Price is what to record for deduplication.
type Alert struct {
	Subject string
	Body    string
	Price   decimal.Decimal
}

// PriceMoveAlert fires when latest moved at least alertPct percent from ref in either direction
// and the price moved at least 5% since the previous price alert.
func PriceMoveAlert(st *model.BotState, ref, latest, alertPct decimal.Decimal) (Alert, bool) {
	if !alertPct.IsPositive() || !ref.IsPositive() {
		return Alert{}, false
	}
	move := MovePct(ref, latest)
	if move.Abs().LessThan(alertPct) || !movedSince(st.LastAlertPrice, latest) {
		return Alert{}, false
	}

	direction := "up"
	if move.IsNegative() {
		direction = "down"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Price moved %s %s%% from the reference.\n\n", direction, move.Abs().StringFixed(2))
	fmt.Fprintf(&b, "Reference: %s\n", ref.StringFixed(0))
	fmt.Fprintf(&b, "Current:   %s\n", latest.StringFixed(0))
	return Alert{
		Subject: fmt.Sprintf("Price alert: %s %s%%", direction, move.Abs().StringFixed(1)),
		Body:    b.String(),
		Price:   latest,
	}, true
}

// BuyOpportunityAlert fires when latest is 5% below the buy threshold, deduplicated against the
// previous opportunity alert the same way as PriceMoveAlert.
func BuyOpportunityAlert(st *model.BotState, ref, latest, triggerPct decimal.Decimal) (Alert, bool) {
	if !ref.IsPositive() {
		return Alert{}, false
	}
	threshold := BuyThreshold(ref, triggerPct)
	if latest.GreaterThan(threshold.Mul(opportunityFactor)) || !movedSince(st.LastBuyOpportunityAlert, latest) {
		return Alert{}, false
	}

	drop := MovePct(ref, latest).Abs()
	var b strings.Builder
	fmt.Fprintf(&b, "Reference price: %s\n", ref.StringFixed(0))
	fmt.Fprintf(&b, "%s%% drop line: %s\n", triggerPct.StringFixed(0), threshold.StringFixed(0))
	fmt.Fprintf(&b, "Current price: %s\n", latest.StringFixed(0))
	fmt.Fprintf(&b, "Drop: %s%%\n\n", drop.StringFixed(2))
	b.WriteString("Deposits are picked up automatically and spent through the normal buy path.\n")
	return Alert{
		Subject: fmt.Sprintf("Buy opportunity: %s%% drop", drop.StringFixed(1)),
		Body:    b.String(),
		Price:   latest,
	}, true
}

// LowFunds fires when available is below threshold. It is not deduplicated.
func LowFunds(available, threshold decimal.Decimal) (Alert, bool) {
	if !threshold.IsPositive() || available.GreaterThanOrEqual(threshold) {
		return Alert{}, false
	}
	return Alert{
		Subject: "Low funds",
		Body:    fmt.Sprintf("Available balance %s is below the alert threshold %s.\n", available.StringFixed(0), threshold.StringFixed(0)),
		Price:   decimal.Zero,
	}, true
}

func movedSince(last decimal.NullDecimal, latest decimal.Decimal) bool {
	if !last.Valid || !last.Decimal.IsPositive() {
		return true
	}
	return MovePct(last.Decimal, latest).Abs().GreaterThanOrEqual(realertMovePct)
}
