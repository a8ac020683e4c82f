// Package trigger decides, from the latest price and the persisted bot state, whether the bot
// should buy or sell now, and maintains the watch reference that percentage triggers use.
package trigger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/model"
	"TriggerBot/internal/state"
)

// Params are the trigger knobs.
type Params struct {
	TriggerPct     decimal.Decimal // buy on this % drop, sell on this % gain
	Cooldown       time.Duration
	MaxSlippagePct decimal.Decimal
	Breakout       BreakoutParams
}

// BreakoutParams configure the secondary breakout buy path.
type BreakoutParams struct {
	Enabled      bool
	LookbackDays int
	Pct          decimal.Decimal
	SMAShort     int
	SMALong      int
}

// Action is what a cycle should do.
type Action string

const (
	ActionNone Action = "none"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Reasons attached to decisions.
const (
	ReasonTakeProfit    = "take_profit"
	ReasonCooldown      = "cooldown"
	ReasonPriceDrop     = "price_drop"
	ReasonBreakout      = "breakout"
	ReasonTriggerNotMet = "trigger_not_met"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Action         Action
	Reason         string
	Detail         string
	WatchReference decimal.Decimal
	Position       model.Position // the position to sell for ActionSell
}

// Evaluator applies Params to the state held by a Store.
type Evaluator struct {
	store *state.Store
	p     Params
	log   *zap.Logger
}

// NewEvaluator creates an Evaluator reading state from store.
func NewEvaluator(store *state.Store, p Params, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{store: store, p: p, log: log}
}

// Params returns the knobs the evaluator was built with.
func (e *Evaluator) Params() Params { return e.p }

// WatchReference resolves the watch reference for latest and persists it when it changed.
// The caller holds the cycle lock.
func (e *Evaluator) WatchReference(latest decimal.Decimal) (decimal.Decimal, error) {
	st := e.store.Load()
	ref, changed, source := ResolveWatchReference(st, latest)
	if !changed {
		return ref, nil
	}

	switch source {
	case RefReset:
		old := "none"
		if st.WatchReference.Valid {
			old = st.WatchReference.Decimal.String()
		}
		e.log.Warn("watch reference too far from price, reset",
			zap.String("old", old), zap.String("new", ref.String()))
	default:
		e.log.Info("watch reference set", zap.String("source", source), zap.String("ref", ref.String()))
	}
	if err := e.store.SetWatchReference(ref); err != nil {
		return ref, fmt.Errorf("persist watch reference: %w", err)
	}
	return ref, nil
}

// Evaluate decides what to do at price latest. Sells are checked first and win. Buys are
// suppressed during the cooldown, then authorized by either the percentage drop from the watch
// reference or a breakout. ind may be nil when breakout indicators are unavailable.
func (e *Evaluator) Evaluate(st *model.BotState, latest decimal.Decimal, ind *model.MarketIndicators, now time.Time) Decision {
	ref, _, _ := ResolveWatchReference(st, latest)
	d := Decision{Action: ActionNone, WatchReference: ref}

	// Step a: take profit on the newest open buy
	if pos, ok := SellCandidate(st, latest, e.p.TriggerPct); ok {
		d.Action, d.Reason, d.Position = ActionSell, ReasonTakeProfit, pos
		d.Detail = fmt.Sprintf("entry %s, now %s, gain %s%%",
			pos.Price, latest, GainPct(pos.Price, latest).StringFixed(2))
		return d
	}

	// Step b: cooldown
	if last, ok := st.LastBuy(); ok && CooldownActive(last, now, e.p.Cooldown) {
		d.Reason = ReasonCooldown
		d.Detail = fmt.Sprintf("last buy %s ago, cooldown %s",
			now.Sub(last).Truncate(time.Second), e.p.Cooldown)
		return d
	}

	// Step c: percentage drop, then breakout
	threshold := BuyThreshold(ref, e.p.TriggerPct)
	switch {
	case ShouldBuy(latest, ref, e.p.TriggerPct):
		d.Action, d.Reason = ActionBuy, ReasonPriceDrop
		d.Detail = fmt.Sprintf("ref %s, threshold %s, now %s", ref, threshold.StringFixed(2), latest)
	case Breakout(ind, latest, e.p.Breakout):
		d.Action, d.Reason = ActionBuy, ReasonBreakout
		d.Detail = fmt.Sprintf("now %s, recent high %.2f, sma %.2f/%.2f", latest, ind.RecentHigh, ind.SMAShort, ind.SMALong)
	default:
		d.Reason = ReasonTriggerNotMet
		d.Detail = fmt.Sprintf("ref %s, threshold %s, now %s, breakout %t",
			ref, threshold.StringFixed(2), latest, e.p.Breakout.Enabled)
	}
	return d
}
