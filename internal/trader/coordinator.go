// Package trader runs one trading cycle at a time: decide, reserve funds, re-check the price,
// place the order and confirm or release the reservation.
package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/exchange"
	"TriggerBot/internal/lock"
	"TriggerBot/internal/model"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/recorder"
	"TriggerBot/internal/state"
	"TriggerBot/internal/trigger"
)

// Kind is the outcome of a cycle.
type Kind string

const (
	KindBought            Kind = "bought"
	KindSold              Kind = "sold"
	KindSellFailed        Kind = "sell_failed"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindPriceUnavailable  Kind = "price_unavailable"
	KindSlippageExceeded  Kind = "slippage_exceeded"
	KindLockTimeout       Kind = "lock_timeout"
	KindOrderFailed       Kind = "order_failed"
	KindBelowMinimum      Kind = "below_minimum"
	KindCooldown          Kind = "cooldown"
	KindTriggerNotMet     Kind = "trigger_not_met"
)

// Failed reports whether the cycle wanted to act and could not.
func (k Kind) Failed() bool {
	switch k {
	case KindSellFailed, KindInsufficientFunds, KindPriceUnavailable, KindSlippageExceeded,
		KindLockTimeout, KindOrderFailed, KindBelowMinimum:
		return true
	}
	return false
}

// Phase is the last state a cycle reached.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseEvaluating     Phase = "EVALUATING"
	PhaseReserved       Phase = "RESERVED"
	PhasePriceRechecked Phase = "PRICE_RECHECKED"
	PhaseExecuting      Phase = "EXECUTING"
	PhaseConfirmed      Phase = "CONFIRMED"
	PhaseReleased       Phase = "RELEASED"
)

// Result describes one cycle.
type Result struct {
	Kind   Kind
	Phase  Phase
	Reason string // human-readable
	Err    error

	Price      decimal.Decimal // price the decision was made at
	ExecPrice  decimal.Decimal // fill price
	Qty        decimal.Decimal
	Cost       decimal.Decimal
	Fee        decimal.Decimal
	Reserved   decimal.Decimal // amount reserved for the buy
	OrderID    string
	PositionID string

	Decision   trigger.Decision
	Indicators *model.MarketIndicators

	LockWait time.Duration
	Started  time.Time
	Duration time.Duration
}

// Params configure the coordinator.
type Params struct {
	Pair             string
	OrderBudget      decimal.Decimal // zero means unlimited
	MaxRiskPct       decimal.Decimal
	BalanceBuffer    decimal.Decimal
	Sizing           Sizing
	LockPath         string
	LockTimeout      time.Duration
	ReinvestProceeds bool // credit sell proceeds net of fees to the ledger
}

// Ledger is the part of fund.Ledger the coordinator uses.
type Ledger interface {
	AvailableFund() decimal.Decimal
	Reserve(cost decimal.Decimal) bool
	Confirm(cost decimal.Decimal)
	Release(cost decimal.Decimal)
	AddFunds(amount decimal.Decimal)
	Snapshot() model.FundSnapshot
}

// IndicatorSource supplies breakout indicators. *collector.Collector implements it.
type IndicatorSource interface {
	Collect(ctx context.Context, currentPrice float64) (*model.MarketIndicators, error)
}

// Observer receives cycle metrics. *metrics.Metrics implements it.
type Observer interface {
	ObserveCycle(outcome string)
	ObserveOrder(side string, ok bool)
	SetFund(available, reserved float64)
	ObserveLockWait(seconds float64)
}

// Deps are the coordinator's collaborators. Indicators, Recorder, Notifier and Metrics may be
// nil.
type Deps struct {
	Exchange   exchange.Exchange
	Ledger     Ledger
	Store      *state.Store
	Evaluator  *trigger.Evaluator
	Indicators IndicatorSource
	Recorder   recorder.Recorder
	Notifier   notifier.Notifier
	Metrics    Observer
	Log        *zap.Logger
}

// Coordinator runs trading cycles: evaluate, reserve, execute and settle one order under the
// cycle lock.
type Coordinator struct {
	p     Params
	quote string
	Deps
	now func() time.Time
}

// New creates a Coordinator. Missing optional collaborators are replaced by no-op ones.
func New(p Params, d Deps) *Coordinator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Log = d.Log.Named("trader")
	if d.Recorder == nil {
		d.Recorder = recorder.NewNoopRecorder()
	}
	if d.Notifier == nil {
		d.Notifier = notifier.Noop{}
	}
	_, quote, err := exchange.SplitPair(p.Pair)
	if err != nil {
		d.Log.Warn("pair not understood, quote balance will not be synced", zap.String("pair", p.Pair))
	}
	return &Coordinator{p: p, quote: quote, Deps: d, now: time.Now}
}

// RunCycle runs one cycle under the cycle lock. Every path that reserved funds either confirms
// or releases the reservation before returning.
func (c *Coordinator) RunCycle(ctx context.Context) *Result {
	res := &Result{Phase: PhaseIdle, Started: c.now()}
	defer c.finish(ctx, res)

	guard, err := lock.Acquire(ctx, c.p.LockPath, c.p.LockTimeout)
	if err != nil {
		res.Kind, res.Err = KindLockTimeout, err
		res.Reason = fmt.Sprintf("cycle lock not acquired within %s", c.p.LockTimeout)
		return res
	}
	defer guard.Release()
	res.LockWait = guard.Waited()
	if c.Metrics != nil {
		c.Metrics.ObserveLockWait(res.LockWait.Seconds())
	}

	c.cycleLocked(ctx, res)
	return res
}

func (c *Coordinator) cycleLocked(ctx context.Context, res *Result) {
	res.Phase = PhaseEvaluating

	price, err := c.Exchange.FetchLatestPrice(ctx, c.p.Pair)
	if err != nil {
		res.Kind, res.Err = KindPriceUnavailable, err
		res.Reason = "latest price unavailable"
		return
	}
	res.Price = price

	if _, err := c.Evaluator.WatchReference(price); err != nil {
		c.Log.Error("watch reference not persisted", zap.Error(err))
	}
	st := c.Store.Load()

	if c.Indicators != nil && c.Evaluator.Params().Breakout.Enabled {
		f, _ := price.Float64()
		ind, err := c.Indicators.Collect(ctx, f)
		if err != nil {
			c.Log.Warn("breakout indicators unavailable", zap.Error(err))
		}
		res.Indicators = ind
	}

	dec := c.Evaluator.Evaluate(st, price, res.Indicators, c.now())
	res.Decision = dec
	res.Reason = dec.Detail

	switch dec.Action {
	case trigger.ActionSell:
		c.sell(ctx, res, dec.Position)
	case trigger.ActionBuy:
		c.buy(ctx, res)
	default:
		if dec.Reason == trigger.ReasonCooldown {
			res.Kind = KindCooldown
		} else {
			res.Kind = KindTriggerNotMet
		}
	}
}

func (c *Coordinator) buy(ctx context.Context, res *Result) {
	available := c.Ledger.AvailableFund()
	budget := Budget(available, c.p.OrderBudget, c.p.MaxRiskPct, c.p.BalanceBuffer)
	if !budget.IsPositive() {
		res.Kind = KindInsufficientFunds
		res.Reason = fmt.Sprintf("available %s leaves no budget above buffer %s", available, c.p.BalanceBuffer)
		return
	}

	size := SizeOrder(budget, res.Price, c.p.Sizing, available.Sub(c.p.BalanceBuffer))
	if size.Zero() {
		res.Kind = KindBelowMinimum
		res.Reason = fmt.Sprintf("budget %s buys less than %s at %s", budget.StringFixed(2), c.p.Sizing.MinQty, res.Price)
		return
	}
	if size.Resized {
		c.Log.Info("order auto-resized", zap.String("budget", budget.String()), zap.String("resized", size.Budget.String()))
	}
	budget = size.Budget

	if !c.Ledger.Reserve(budget) {
		res.Kind = KindInsufficientFunds
		res.Reason = fmt.Sprintf("could not reserve %s (available %s)", budget.StringFixed(2), c.Ledger.AvailableFund())
		return
	}
	res.Phase = PhaseReserved
	res.Reserved = budget
	c.Log.Info("funds reserved", zap.String("amount", budget.String()), zap.String("reason", res.Decision.Reason))

	c.executeBuy(ctx, res, budget)
}

// executeBuy runs everything after the reservation. The deferred settle releases the whole
// reservation on any path, including a panic, that did not confirm.
func (c *Coordinator) executeBuy(ctx context.Context, res *Result, budget decimal.Decimal) {
	settled := false
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error("recovered panic during order execution", zap.Any("panic", r), zap.Stack("stack"))
			err := fmt.Errorf("panic: %v", r)
			if !settled {
				res.Kind, res.Reason = KindOrderFailed, err.Error()
			}
			res.Err = errors.Join(res.Err, err)
		}
		if !settled {
			c.Ledger.Release(budget)
			res.Phase = PhaseReleased
			c.Log.Info("reservation released", zap.String("amount", budget.String()), zap.String("kind", string(res.Kind)))
		}
	}()

	latest, err := c.Exchange.FetchLatestPrice(ctx, c.p.Pair)
	if err != nil {
		res.Kind, res.Err = KindPriceUnavailable, err
		res.Reason = "price re-check failed"
		return
	}
	res.Phase = PhasePriceRechecked
	if maxSlip := c.Evaluator.Params().MaxSlippagePct; trigger.SlippageExceeded(res.Price, latest, maxSlip) {
		res.Kind = KindSlippageExceeded
		res.Reason = fmt.Sprintf("price moved %s%% from %s to %s, limit %s%%",
			trigger.MovePct(res.Price, latest).Abs().StringFixed(2), res.Price, latest, maxSlip)
		return
	}

	size := SizeOrder(budget, latest, c.p.Sizing, budget)
	if size.Zero() {
		res.Kind = KindBelowMinimum
		res.Reason = fmt.Sprintf("reservation %s buys less than %s at %s", budget.StringFixed(2), c.p.Sizing.MinQty, latest)
		return
	}

	res.Phase = PhaseExecuting
	order, err := c.Exchange.PlaceOrder(ctx, model.OrderRequest{
		Pair: c.p.Pair,
		Side: model.SideBuy,
		Type: model.OrderTypeMarket,
		Qty:  size.Qty,
	})
	if err != nil || !order.WellFormed() {
		if err == nil {
			err = errors.New("order response carries no order id")
		}
		c.observeOrder(model.SideBuy, false)
		res.Kind, res.Err = KindOrderFailed, err
		res.Reason = "buy order failed: " + err.Error()
		return
	}
	c.observeOrder(model.SideBuy, true)

	qty, fillPrice, cost := fill(order, size.Qty, latest)
	fee := c.p.Sizing.Fees.Of(cost)
	actual := cost.Add(fee)

	c.Ledger.Confirm(actual)
	settled = true
	res.Kind, res.Phase = KindBought, PhaseConfirmed
	if unused := budget.Sub(actual); unused.IsPositive() {
		c.Ledger.Release(unused)
	}
	res.OrderID, res.ExecPrice, res.Qty, res.Cost, res.Fee = order.ID, fillPrice, qty, cost, fee
	res.Reason = fmt.Sprintf("%s: %s", res.Decision.Reason, res.Decision.Detail)

	pos, err := c.Store.RecordPosition(model.SideBuy, fillPrice, qty)
	if err != nil {
		c.Log.Error("position not persisted", zap.String("order_id", order.ID), zap.Error(err))
		res.Err = errors.Join(res.Err, err)
	}
	res.PositionID = pos.ID
	if err := c.Store.SetWatchReference(fillPrice); err != nil {
		c.Log.Error("watch reference not persisted", zap.Error(err))
	}
	if err := c.Store.SetLastBuyTime(c.now()); err != nil {
		c.Log.Error("last buy time not persisted", zap.Error(err))
	}
	// the venue moves the quote balance by the order cost; buy fees are charged elsewhere
	c.syncQuoteBalance(ctx, cost.Neg())
}

func (c *Coordinator) sell(ctx context.Context, res *Result, pos model.Position) {
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error("recovered panic during sell", zap.Any("panic", r), zap.Stack("stack"))
			if res.Kind != KindSold {
				res.Kind = KindSellFailed
			}
			res.Err = errors.Join(res.Err, fmt.Errorf("panic: %v", r))
		}
	}()

	res.Phase = PhaseExecuting
	order, err := c.Exchange.PlaceOrder(ctx, model.OrderRequest{
		Pair: c.p.Pair,
		Side: model.SideSell,
		Type: model.OrderTypeMarket,
		Qty:  pos.Qty,
	})
	if err != nil || !order.WellFormed() {
		if err == nil {
			err = errors.New("order response carries no order id")
		}
		c.observeOrder(model.SideSell, false)
		res.Kind, res.Err = KindSellFailed, err
		res.Reason = "sell order failed: " + err.Error()
		return
	}
	c.observeOrder(model.SideSell, true)

	qty, fillPrice, proceeds := fill(order, pos.Qty, res.Price)
	fee := c.p.Sizing.Fees.Of(proceeds)
	res.Kind, res.Phase = KindSold, PhaseConfirmed
	res.OrderID, res.ExecPrice, res.Qty, res.Cost, res.Fee = order.ID, fillPrice, qty, proceeds, fee
	res.PositionID = pos.ID
	res.Reason = fmt.Sprintf("%s: %s", res.Decision.Reason, res.Decision.Detail)

	if _, _, err := c.Store.RemovePosition(pos.ID); err != nil {
		c.Log.Error("position removal not persisted", zap.String("position_id", pos.ID), zap.Error(err))
		res.Err = errors.Join(res.Err, err)
	}
	if err := c.Store.SetWatchReference(fillPrice); err != nil {
		c.Log.Error("watch reference not persisted", zap.Error(err))
	}

	net := proceeds.Sub(fee)
	c.syncQuoteBalance(ctx, net)
	if !c.p.ReinvestProceeds || !net.IsPositive() {
		return
	}
	before := c.Ledger.Snapshot()
	c.Ledger.AddFunds(net)
	after := c.Ledger.Snapshot()
	if err := c.Recorder.RecordFundEvent(&recorder.FundEvent{
		Time:            c.now(),
		EventType:       "SELL_PROCEEDS",
		AvailableBefore: before.Available,
		AvailableAfter:  after.Available,
		ReservedBefore:  before.Reserved,
		ReservedAfter:   after.Reserved,
		Amount:          net,
		Note:            "order " + order.ID,
	}); err != nil {
		c.Log.Warn("fund event not journaled", zap.Error(err))
	}
}

// syncQuoteBalance re-reads the venue's quote balance after a fill so the bot's own trades are
// never taken for deposits. When the balance cannot be read the recorded value is moved by
// delta instead.
func (c *Coordinator) syncQuoteBalance(ctx context.Context, delta decimal.Decimal) {
	balance, err := c.Exchange.FetchBalance(ctx, c.quote)
	if err == nil {
		err = c.Store.SyncQuoteBalance(balance)
	} else {
		c.Log.Warn("quote balance unavailable after fill, adjusting by fill amount", zap.Error(err))
		err = c.Store.AdjustQuoteBalance(delta)
	}
	if err != nil {
		c.Log.Error("quote balance not updated", zap.Error(err))
	}
}

// fill derives quantity, average price and quote amount from an order result, falling back to
// the requested quantity and reference price for fields the exchange left empty.
func fill(o *model.OrderResult, reqQty, price decimal.Decimal) (qty, avg, cost decimal.Decimal) {
	qty = o.FilledQty
	if !qty.IsPositive() {
		qty = reqQty
	}
	avg = o.AvgPrice
	if !avg.IsPositive() {
		if o.Cost.IsPositive() {
			avg = o.Cost.Div(qty)
		} else {
			avg = price
		}
	}
	cost = o.Cost
	if !cost.IsPositive() {
		cost = qty.Mul(avg)
	}
	return qty, avg, cost
}

func (c *Coordinator) observeOrder(side model.Side, ok bool) {
	if c.Metrics != nil {
		c.Metrics.ObserveOrder(string(side), ok)
	}
}
