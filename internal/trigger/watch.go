package trigger

import (
	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

// Where a resolved watch reference came from.
const (
	RefStored      = "stored"
	RefLastBuy     = "last_buy"
	RefInitialized = "initialized"
	RefReset       = "reset"
)

var (
	seedEpsilon = decimal.New(1, -6)
	staleHigh   = decimal.NewFromInt(2)
	staleLow    = decimal.RequireFromString("0.5")
)

// ResolveWatchReference picks the price percentage triggers are measured against:
//  1. the stored reference, unless it equals latest (a value just seeded from the price);
//  2. else the price of the newest position when that is a buy;
//  3. else latest itself.
//
// A reference more than 2x away from latest in either direction is stale and reset to latest.
// changed reports whether the result differs from what is stored.
func ResolveWatchReference(st *model.BotState, latest decimal.Decimal) (ref decimal.Decimal, changed bool, source string) {
	stored := st.WatchReference
	switch {
	case stored.Valid && stored.Decimal.IsPositive() && stored.Decimal.Sub(latest).Abs().GreaterThanOrEqual(seedEpsilon):
		ref, source = stored.Decimal, RefStored
	default:
		if last, ok := st.LastPosition(); ok && last.Side == model.SideBuy && last.Price.IsPositive() {
			ref, source = last.Price, RefLastBuy
		} else {
			ref, source = latest, RefInitialized
		}
	}

	if ref.IsPositive() && latest.IsPositive() {
		ratio := latest.Div(ref)
		if ratio.GreaterThan(staleHigh) || ratio.LessThan(staleLow) {
			ref, source = latest, RefReset
		}
	}

	changed = !stored.Valid || !stored.Decimal.Equal(ref)
	return ref, changed, source
}
