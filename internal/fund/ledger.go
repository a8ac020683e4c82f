package fund

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/model"
	"TriggerBot/internal/persist"
)

// Ledger tracks spendable and reserved cash with write-through persistence.
//
// Reserve moves cost from available to reserved, Confirm consumes reserved funds, Release moves
// them back. available + reserved therefore only changes through AddFunds and Confirm.
type Ledger struct {
	mu        sync.Mutex
	filePath  string
	available decimal.Decimal
	reserved  decimal.Decimal
	updatedAt time.Time
	// dirty is set while the last write failed; memory is then newer than the file and must
	// not be overwritten by a refresh.
	dirty bool
	log   *zap.Logger
}

// Open loads the ledger at filePath or seeds it with seed when the file does not exist. An
// unreadable ledger file is an error: silently re-seeding would invent money.
func Open(filePath string, seed decimal.Decimal, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{filePath: filePath, log: log}

	available, reserved, err := loadState(filePath)
	switch {
	case err == nil:
		l.available, l.reserved = available, reserved
		l.updatedAt = time.Now()
		if reserved.IsPositive() {
			log.Warn("ledger opened with outstanding reservation",
				zap.String("reserved", reserved.String()),
				zap.String("file", filePath))
		}
	case errors.Is(err, errNoState):
		if seed.IsNegative() {
			seed = decimal.Zero
		}
		l.available = seed
		l.persistLocked("seed")
	default:
		return nil, fmt.Errorf("open ledger %s: %w", filePath, err)
	}
	return l, nil
}

// AvailableFund returns the spendable balance.
func (l *Ledger) AvailableFund() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	return l.available
}

// Reserved returns the amount currently held for in-flight orders.
func (l *Ledger) Reserved() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	return l.reserved
}

// Snapshot returns a copy of both balances.
func (l *Ledger) Snapshot() model.FundSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	return model.FundSnapshot{Available: l.available, Reserved: l.reserved, UpdatedAt: l.updatedAt}
}

// Reserve holds cost for an order. It returns false, changing nothing, when cost is not
// positive or exceeds the available balance.
func (l *Ledger) Reserve(cost decimal.Decimal) bool {
	if !cost.IsPositive() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()

	if l.available.LessThan(cost) {
		return false
	}
	l.available = l.available.Sub(cost)
	l.reserved = l.reserved.Add(cost)
	l.persistLocked("reserve")
	return true
}

// Confirm records that a reserved order executed at cost. Cost beyond what is reserved (fee
// slippage) is taken from available.
func (l *Ledger) Confirm(cost decimal.Decimal) {
	if !cost.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()

	consume := decimal.Min(l.reserved, cost)
	l.reserved = l.reserved.Sub(consume)
	if excess := cost.Sub(consume); excess.IsPositive() {
		if excess.GreaterThan(l.available) {
			l.log.Error("confirm exceeds available balance, clamping at zero",
				zap.String("excess", excess.String()),
				zap.String("available", l.available.String()))
			excess = l.available
		}
		l.available = l.available.Sub(excess)
	}
	l.persistLocked("confirm")
}

// Release refunds a reservation whose order did not execute.
func (l *Ledger) Release(cost decimal.Decimal) {
	if !cost.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()

	back := decimal.Min(l.reserved, cost)
	if back.LessThan(cost) {
		l.log.Warn("release larger than reservation",
			zap.String("requested", cost.String()),
			zap.String("reserved", l.reserved.String()))
	}
	l.reserved = l.reserved.Sub(back)
	l.available = l.available.Add(back)
	l.persistLocked("release")
}

// AddFunds credits an external deposit.
func (l *Ledger) AddFunds(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()

	l.available = l.available.Add(amount)
	l.persistLocked("add_funds")
}

// refreshLocked picks up balances written by another process. Callers hold the cycle lock
// across read-modify-write sequences, so the file is the source of truth unless our own last
// write failed.
func (l *Ledger) refreshLocked() {
	if l.dirty {
		return
	}
	available, reserved, err := loadState(l.filePath)
	if err != nil {
		if !errors.Is(err, errNoState) {
			l.log.Warn("ledger refresh failed, using in-memory balances", zap.Error(err))
		}
		return
	}
	l.available, l.reserved = available, reserved
}

func (l *Ledger) persistLocked(op string) {
	l.updatedAt = time.Now()
	method, err := saveState(l.filePath, l.available, l.reserved)
	if err != nil {
		l.dirty = true
		l.log.Error("failed to save fund state",
			zap.String("op", op),
			zap.String("file", l.filePath),
			zap.String("available", l.available.String()),
			zap.String("reserved", l.reserved.String()),
			zap.String("error_log", persist.ErrorLogPath(l.filePath)),
			zap.Error(err))
		return
	}
	l.dirty = false
	if method != persist.MethodAtomic {
		l.log.Warn("fund state saved without atomic rename",
			zap.String("op", op), zap.String("method", string(method)))
	}
}
