// Package state persists the bot-wide state document: open positions, the watch reference and
// the cooldown and alert bookkeeping.
//
// The store re-reads the file on every operation and never caches a BotState between calls.
// Callers serialize read-modify-write sequences across processes with the cycle lock.
package state

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/model"
	"TriggerBot/internal/persist"
)

// Store reads and writes one bot state file.
type Store struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

// NewStore returns a store for the document at path.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log, now: time.Now}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state. A missing file yields an empty state. Entries that cannot
// be decoded are dropped individually and the rest of the document is kept; an unparsable
// document yields an empty state. In both cases the original content is copied aside first so
// the next save cannot destroy it.
func (s *Store) Load() *model.BotState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("read bot state failed, using empty state", zap.String("file", s.path), zap.Error(err))
		}
		return model.NewBotState()
	}

	st, skipped, err := decodeState(data)
	if err != nil {
		s.log.Error("bot state unparsable, using empty state",
			zap.String("file", s.path), zap.String("backup", s.backup(data)), zap.Error(err))
		return model.NewBotState()
	}
	if len(skipped) > 0 {
		backup := s.backup(data)
		for _, e := range skipped {
			s.log.Error("bot state entry dropped", zap.String("file", s.path), zap.String("backup", backup), zap.Error(e))
		}
	}
	return st
}

// backup copies data next to the state file and returns its path, or "" when the copy failed.
func (s *Store) backup(data []byte) string {
	path := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Error("bot state backup failed", zap.String("backup", path), zap.Error(err))
		return ""
	}
	return path
}

// Save writes st atomically. A degraded (non-atomic) write is logged but still succeeds.
func (s *Store) Save(st *model.BotState) error {
	doc, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("encode bot state: %w", err)
	}
	method, err := persist.WriteJSON(s.path, doc)
	if err != nil {
		s.log.Error("failed to save bot state",
			zap.String("file", s.path),
			zap.Int("positions", len(st.Positions)),
			zap.String("error_log", persist.ErrorLogPath(s.path)),
			zap.Error(err))
		return err
	}
	if method != persist.MethodAtomic {
		s.log.Warn("bot state saved without atomic rename", zap.String("method", string(method)))
	}
	return nil
}

// Update re-reads the document, applies fn and saves the result. Nothing is written when fn
// returns an error.
func (s *Store) Update(fn func(*model.BotState) error) error {
	st := s.Load()
	if err := fn(st); err != nil {
		return err
	}
	return s.Save(st)
}

// RecordPosition appends a fill with a fresh ID, evicting the oldest beyond the cap.
func (s *Store) RecordPosition(side model.Side, price, qty decimal.Decimal) (model.Position, error) {
	p := model.Position{
		ID:    uuid.NewString(),
		Side:  side,
		Price: price,
		Qty:   qty,
		Time:  s.now().Unix(),
	}
	err := s.Update(func(st *model.BotState) error {
		st.AppendPosition(p)
		return nil
	})
	if err != nil {
		return model.Position{}, err
	}
	return p, nil
}

// RemovePosition removes the position with id, or the newest one when id is unknown.
func (s *Store) RemovePosition(id string) (model.Position, bool, error) {
	var (
		removed model.Position
		ok      bool
	)
	err := s.Update(func(st *model.BotState) error {
		removed, ok = st.RemovePosition(id)
		if ok && removed.ID != id {
			s.log.Warn("position id not found, removed newest position",
				zap.String("wanted", id), zap.String("removed", removed.ID))
		}
		return nil
	})
	return removed, ok, err
}

// LastBuyTime returns the time of the last buy, if any.
func (s *Store) LastBuyTime() (time.Time, bool) {
	return s.Load().LastBuy()
}

// SetLastBuyTime records t as the time of the last buy, which starts the cooldown.
func (s *Store) SetLastBuyTime(t time.Time) error {
	return s.Update(func(st *model.BotState) error {
		st.SetLastBuy(t)
		return nil
	})
}

// SetWatchReference stores the price percentage triggers are measured against.
func (s *Store) SetWatchReference(price decimal.Decimal) error {
	return s.Update(func(st *model.BotState) error {
		st.WatchReference = decimal.NewNullDecimal(price)
		return nil
	})
}

// SyncQuoteBalance replaces the recorded exchange quote balance with balance once deposit
// detection has recorded one.
func (s *Store) SyncQuoteBalance(balance decimal.Decimal) error {
	return s.Update(func(st *model.BotState) error {
		if st.LastQuoteBalance.Valid {
			st.LastQuoteBalance = decimal.NewNullDecimal(balance)
		}
		return nil
	})
}

// AdjustQuoteBalance shifts the recorded exchange quote balance by delta so the bot's own fills
// are not mistaken for deposits. It does nothing before the first balance was recorded.
func (s *Store) AdjustQuoteBalance(delta decimal.Decimal) error {
	return s.Update(func(st *model.BotState) error {
		if st.LastQuoteBalance.Valid {
			st.LastQuoteBalance.Decimal = st.LastQuoteBalance.Decimal.Add(delta)
		}
		return nil
	})
}
