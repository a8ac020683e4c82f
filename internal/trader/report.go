package trader

import (
	"context"

	"go.uber.org/zap"

	"TriggerBot/internal/model"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/recorder"
)

// finish logs, counts, journals and notifies a completed cycle.
func (c *Coordinator) finish(ctx context.Context, res *Result) {
	res.Duration = c.now().Sub(res.Started)
	snap := c.Ledger.Snapshot()

	fields := []zap.Field{
		zap.String("kind", string(res.Kind)),
		zap.String("phase", string(res.Phase)),
		zap.String("reason", res.Reason),
		zap.String("price", res.Price.String()),
		zap.String("available", snap.Available.String()),
		zap.String("reserved", snap.Reserved.String()),
		zap.Duration("lock_wait", res.LockWait),
		zap.Duration("duration", res.Duration),
	}
	if res.OrderID != "" {
		fields = append(fields,
			zap.String("order_id", res.OrderID),
			zap.String("qty", res.Qty.String()),
			zap.String("exec_price", res.ExecPrice.String()))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	if res.Kind.Failed() {
		c.Log.Warn("cycle aborted", fields...)
	} else {
		c.Log.Info("cycle finished", fields...)
	}

	if c.Metrics != nil {
		c.Metrics.ObserveCycle(string(res.Kind))
		a, _ := snap.Available.Float64()
		r, _ := snap.Reserved.Float64()
		c.Metrics.SetFund(a, r)
	}

	c.journal(res, snap)
	c.notify(ctx, res, snap)
}

func (c *Coordinator) journal(res *Result, snap model.FundSnapshot) {
	rec := &recorder.CycleRecord{
		Time:           res.Started,
		Outcome:        string(res.Kind),
		Phase:          string(res.Phase),
		Reason:         res.Reason,
		Price:          res.Price,
		ExecPrice:      res.ExecPrice,
		WatchReference: res.Decision.WatchReference,
		Budget:         res.Reserved,
		Qty:            res.Qty,
		Cost:           res.Cost,
		Fee:            res.Fee,
		OrderID:        res.OrderID,
		Available:      snap.Available,
		Reserved:       snap.Reserved,
		LockWait:       res.LockWait,
		Duration:       res.Duration,
	}
	if ind := res.Indicators; ind != nil {
		rec.RecentHigh, rec.SMAShort, rec.SMALong = ind.RecentHigh, ind.SMAShort, ind.SMALong
		rec.DailyRSI, rec.ATR = ind.DailyRSI, ind.ATR
	}
	if err := c.Recorder.RecordCycle(rec); err != nil {
		c.Log.Warn("cycle not journaled", zap.Error(err))
	}

	if res.Kind != KindBought && res.Kind != KindSold {
		return
	}
	side := model.SideBuy
	if res.Kind == KindSold {
		side = model.SideSell
	}
	if err := c.Recorder.RecordTrade(&recorder.TradeRecord{
		Time:       res.Started,
		Side:       string(side),
		Pair:       c.p.Pair,
		OrderID:    res.OrderID,
		PositionID: res.PositionID,
		Qty:        res.Qty,
		Price:      res.ExecPrice,
		Cost:       res.Cost,
		Fee:        res.Fee,
		Reason:     res.Decision.Reason,
	}); err != nil {
		c.Log.Warn("trade not journaled", zap.Error(err))
	}
}

func (c *Coordinator) notify(ctx context.Context, res *Result, snap model.FundSnapshot) {
	var subject, body string
	switch {
	case res.Kind == KindBought || res.Kind == KindSold:
		side := model.SideBuy
		if res.Kind == KindSold {
			side = model.SideSell
		}
		subject, body = notifier.FormatTrade(notifier.TradeReport{
			Side:      side,
			Pair:      c.p.Pair,
			Reason:    res.Decision.Reason,
			OrderID:   res.OrderID,
			Qty:       res.Qty,
			Price:     res.ExecPrice,
			Cost:      res.Cost,
			Fee:       res.Fee,
			Available: snap.Available,
			Reserved:  snap.Reserved,
			Time:      res.Started,
		})
	case res.Kind.Failed() && res.Kind != KindBelowMinimum:
		subject, body = notifier.FormatFailure(string(res.Kind), string(res.Phase), res.Reason)
	default:
		return
	}
	c.Notifier.Notify(ctx, subject, body)
}
