package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// MaxPositions is the number of positions kept in the bot state; older entries are evicted.
const MaxPositions = 50

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is one recorded fill.
type Position struct {
	ID    string
	Side  Side
	Price decimal.Decimal
	Qty   decimal.Decimal
	Time  int64 // unix seconds
}

// BotState is the bot-wide persisted state document.
type BotState struct {
	Positions      []Position
	WatchReference decimal.NullDecimal
	LastBuyTime    *int64

	// Notification dedup and deposit detection bookkeeping.
	LastAlertPrice          decimal.NullDecimal
	LastBuyOpportunityAlert decimal.NullDecimal
	LastQuoteBalance        decimal.NullDecimal

	// Extra holds top-level keys this version does not know about so they survive a rewrite.
	Extra map[string]json.RawMessage
}

// NewBotState returns an empty state.
func NewBotState() *BotState {
	return &BotState{Positions: []Position{}}
}

// LastPosition returns the newest position, if any.
func (s *BotState) LastPosition() (Position, bool) {
	if len(s.Positions) == 0 {
		return Position{}, false
	}
	return s.Positions[len(s.Positions)-1], true
}

// AppendPosition adds p as the newest position and evicts the oldest beyond MaxPositions.
func (s *BotState) AppendPosition(p Position) {
	s.Positions = append(s.Positions, p)
	if len(s.Positions) > MaxPositions {
		s.Positions = append([]Position(nil), s.Positions[len(s.Positions)-MaxPositions:]...)
	}
}

// RemovePosition removes the position with the given ID. When no position carries that ID the
// newest position is removed instead. It reports the removed position.
func (s *BotState) RemovePosition(id string) (Position, bool) {
	if len(s.Positions) == 0 {
		return Position{}, false
	}
	idx := len(s.Positions) - 1
	for i, p := range s.Positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	removed := s.Positions[idx]
	s.Positions = append(s.Positions[:idx], s.Positions[idx+1:]...)
	return removed, true
}

// LastBuy returns the last buy time, if set.
func (s *BotState) LastBuy() (time.Time, bool) {
	if s.LastBuyTime == nil {
		return time.Time{}, false
	}
	return time.Unix(*s.LastBuyTime, 0), true
}

// SetLastBuy stores t as the last buy time.
func (s *BotState) SetLastBuy(t time.Time) {
	ts := t.Unix()
	s.LastBuyTime = &ts
}
