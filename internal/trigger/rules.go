package trigger

import (
	"time"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

var hundred = decimal.NewFromInt(100)

// BuyThreshold is the price at or below which the percentage-drop path buys.
func BuyThreshold(ref, triggerPct decimal.Decimal) decimal.Decimal {
	return ref.Mul(decimal.NewFromInt(1).Sub(triggerPct.Div(hundred)))
}

// ShouldBuy reports latest <= ref * (1 - triggerPct/100).
func ShouldBuy(latest, ref, triggerPct decimal.Decimal) bool {
	if !ref.IsPositive() || !latest.IsPositive() {
		return false
	}
	return latest.LessThanOrEqual(BuyThreshold(ref, triggerPct))
}

// Breakout reports whether the price broke above the recent high, or whether the short SMA is
// above the long one and the price is above the short SMA, each by at least p.Pct percent.
func Breakout(ind *model.MarketIndicators, latest decimal.Decimal, p BreakoutParams) bool {
	if !p.Enabled || ind == nil || !latest.IsPositive() {
		return false
	}
	price := latest.InexactFloat64()
	margin := 1 + p.Pct.InexactFloat64()/100

	if ind.RecentHigh > 0 && price >= ind.RecentHigh*margin {
		return true
	}
	if ind.SMAShort > 0 && ind.SMALong > 0 && ind.SMAShort > ind.SMALong && price > ind.SMAShort*margin {
		return true
	}
	return false
}

// GainPct is (latest - entry) / entry * 100.
func GainPct(entry, latest decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return latest.Sub(entry).Div(entry).Mul(hundred)
}

// SellCandidate returns the newest open buy position when the price has risen at least
// triggerPct percent above its entry.
func SellCandidate(st *model.BotState, latest, triggerPct decimal.Decimal) (model.Position, bool) {
	if st == nil || !latest.IsPositive() {
		return model.Position{}, false
	}
	for i := len(st.Positions) - 1; i >= 0; i-- {
		p := st.Positions[i]
		if p.Side != model.SideBuy {
			continue
		}
		if !p.Price.IsPositive() || !p.Qty.IsPositive() {
			return model.Position{}, false
		}
		if GainPct(p.Price, latest).GreaterThanOrEqual(triggerPct) {
			return p, true
		}
		return model.Position{}, false
	}
	return model.Position{}, false
}

// CooldownActive reports whether a buy at lastBuy still blocks a new one at now.
func CooldownActive(lastBuy, now time.Time, cooldown time.Duration) bool {
	if lastBuy.IsZero() || cooldown <= 0 {
		return false
	}
	return now.Sub(lastBuy) < cooldown
}

// SlippageExceeded reports |latest - ref| / ref * 100 > maxPct. A zero reference never trips.
func SlippageExceeded(ref, latest, maxPct decimal.Decimal) bool {
	if ref.IsZero() {
		return false
	}
	return latest.Sub(ref).Abs().Div(ref.Abs()).Mul(hundred).GreaterThan(maxPct)
}

// MovePct is the signed percentage move from ref to latest.
func MovePct(ref, latest decimal.Decimal) decimal.Decimal {
	if ref.IsZero() {
		return decimal.Zero
	}
	return latest.Sub(ref).Div(ref).Mul(hundred)
}
