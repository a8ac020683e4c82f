package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/lock"
	"TriggerBot/internal/model"
	"TriggerBot/internal/recorder"
	"TriggerBot/internal/trigger"
)

var errNothingToSave = errors.New("nothing to save")

// Monitor runs the bookkeeping between cycles under the cycle lock: deposit detection, auto
// top-up and price alerts. Alerts are sent after the lock is released.
func (s *Scheduler) Monitor(ctx context.Context) error {
	guard, err := lock.Acquire(ctx, s.set.LockPath, s.set.LockTimeout)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer guard.Release()

	var alerts []trigger.Alert
	if s.set.DepositDetection {
		if a, ok := s.detectDeposit(ctx); ok {
			alerts = append(alerts, a)
		}
	}
	s.topUp()
	alerts = append(alerts, s.priceAlerts(ctx)...)
	if a, ok := trigger.LowFunds(s.Ledger.AvailableFund(), s.set.LowFunds); ok {
		alerts = append(alerts, a)
	}

	guard.Release()
	for _, a := range alerts {
		s.Notifier.Notify(ctx, a.Subject, a.Body)
	}
	return nil
}

// detectDeposit compares the exchange quote balance with the last recorded one and credits an
// increase above the minimum to the ledger. The first observation is only recorded.
func (s *Scheduler) detectDeposit(ctx context.Context) (trigger.Alert, bool) {
	balance, err := s.Exchange.FetchBalance(ctx, s.quote)
	if err != nil {
		s.Log.Warn("quote balance unavailable, deposit check skipped", zap.Error(err))
		return trigger.Alert{}, false
	}

	var deposit decimal.Decimal
	err = s.Store.Update(func(st *model.BotState) error {
		if st.LastQuoteBalance.Valid {
			if inc := balance.Sub(st.LastQuoteBalance.Decimal); inc.IsPositive() && inc.GreaterThan(s.set.DepositMinIncrease) {
				deposit = inc
			}
		} else {
			s.Log.Info("quote balance recorded", zap.String("asset", s.quote), zap.String("balance", balance.String()))
		}
		st.LastQuoteBalance = decimal.NewNullDecimal(balance)
		return nil
	})
	if err != nil {
		s.Log.Error("quote balance not persisted, deposit not credited", zap.Error(err))
		return trigger.Alert{}, false
	}
	if !deposit.IsPositive() {
		return trigger.Alert{}, false
	}

	s.credit("DEPOSIT", deposit, "exchange balance increase")
	return trigger.Alert{
		Subject: fmt.Sprintf("Deposit detected: %s %s", deposit.StringFixed(0), s.quote),
		Body: fmt.Sprintf("Exchange balance rose to %s %s.\nCredited %s to the fund; it will be spent through the normal buy path.\n",
			balance.StringFixed(0), s.quote, deposit.StringFixed(0)),
		Price: deposit,
	}, true
}

// topUp credits the configured amount while the ledger is below the threshold.
func (s *Scheduler) topUp() {
	if !s.set.TopupAmount.IsPositive() {
		return
	}
	if available := s.Ledger.AvailableFund(); available.GreaterThanOrEqual(s.set.TopupThreshold) {
		return
	}
	s.credit("TOPUP", s.set.TopupAmount, "below top-up threshold")
}

func (s *Scheduler) credit(event string, amount decimal.Decimal, note string) {
	before := s.Ledger.Snapshot()
	s.Ledger.AddFunds(amount)
	after := s.Ledger.Snapshot()
	s.Log.Info("fund credited",
		zap.String("event", event),
		zap.String("amount", amount.String()),
		zap.String("available", after.Available.String()))

	if err := s.Recorder.RecordFundEvent(&recorder.FundEvent{
		Time:            s.now(),
		EventType:       event,
		AvailableBefore: before.Available,
		AvailableAfter:  after.Available,
		ReservedBefore:  before.Reserved,
		ReservedAfter:   after.Reserved,
		Amount:          amount,
		Note:            note,
	}); err != nil {
		s.Log.Warn("fund event not journaled", zap.Error(err))
	}
}

// priceAlerts evaluates the price-move and buy-opportunity alerts and records the alerted
// prices for deduplication.
func (s *Scheduler) priceAlerts(ctx context.Context) []trigger.Alert {
	price, err := s.Exchange.FetchLatestPrice(ctx, s.set.Pair)
	if err != nil {
		s.Log.Warn("price unavailable, alerts skipped", zap.Error(err))
		return nil
	}

	var alerts []trigger.Alert
	err = s.Store.Update(func(st *model.BotState) error {
		ref, _, _ := trigger.ResolveWatchReference(st, price)
		if a, ok := trigger.PriceMoveAlert(st, ref, price, s.set.PriceAlertPct); ok {
			alerts = append(alerts, a)
			st.LastAlertPrice = decimal.NewNullDecimal(a.Price)
		}
		if a, ok := trigger.BuyOpportunityAlert(st, ref, price, s.set.TriggerPct); ok {
			alerts = append(alerts, a)
			st.LastBuyOpportunityAlert = decimal.NewNullDecimal(a.Price)
		}
		if len(alerts) == 0 {
			return errNothingToSave
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingToSave) {
		s.Log.Error("alert bookkeeping not persisted, alerts dropped", zap.Error(err))
		return nil
	}
	return alerts
}
