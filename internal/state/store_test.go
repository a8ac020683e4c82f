package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TriggerBot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "bot_state.json"), nil)
}

func TestLoad_MissingFileGivesEmptyState(t *testing.T) {
	st := newTestStore(t).Load()
	assert.Empty(t, st.Positions)
	assert.False(t, st.WatchReference.Valid)
	assert.Nil(t, st.LastBuyTime)
}

func TestLoad_UnparsableFileGivesEmptyStateAndBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"positions": [`), 0o644))

	st := s.Load()
	assert.Empty(t, st.Positions)

	matches, err := filepath.Glob(s.Path() + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	st := model.NewBotState()
	for i := 0; i < 3; i++ {
		st.AppendPosition(model.Position{
			ID:    "p" + string(rune('a'+i)),
			Side:  model.SideBuy,
			Price: decimal.RequireFromString("1000000.5"),
			Qty:   decimal.RequireFromString("0.0123"),
			Time:  int64(1700000000 + i),
		})
	}
	st.WatchReference = decimal.NewNullDecimal(decimal.RequireFromString("999000"))
	st.SetLastBuy(time.Unix(1700000100, 0))
	st.LastQuoteBalance = decimal.NewNullDecimal(decimal.NewFromInt(25000))
	require.NoError(t, s.Save(st))

	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	fresh := NewStore(s.Path(), nil)
	loaded := fresh.Load()
	assert.Equal(t, st.Positions, loaded.Positions)
	assert.True(t, loaded.WatchReference.Decimal.Equal(st.WatchReference.Decimal))
	require.NotNil(t, loaded.LastBuyTime)
	assert.Equal(t, int64(1700000100), *loaded.LastBuyTime)

	require.NoError(t, fresh.Save(loaded))
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestDocumentFormat(t *testing.T) {
	s := newTestStore(t)
	st := model.NewBotState()
	st.AppendPosition(model.Position{
		ID: "x1", Side: model.SideBuy,
		Price: decimal.NewFromInt(1000000), Qty: decimal.RequireFromString("0.01"), Time: 1700000000,
	})
	require.NoError(t, s.Save(st))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"positions": [{"id": "x1", "side": "buy", "price": 1000000, "qty": 0.01, "time": 1700000000}],
		"watch_reference": null,
		"last_buy_time": null,
		"last_alert_price": null,
		"last_buy_opportunity_alert": null,
		"last_jpy_balance": null
	}`, string(data))
}

func TestLoad_BadEntriesAreDroppedIndividually(t *testing.T) {
	s := newTestStore(t)
	doc := `{
  "positions": [
    {"id": "keep", "side": "buy", "price": 90, "qty": 0.5, "time": 1690000000},
    {"id": "bad", "side": "buy", "price": null, "qty": 0.5, "time": 1690000001},
    {"id": "odd", "side": "hold", "price": 91, "qty": 0.5, "time": 1690000002}
  ],
  "watch_reference": 100,
  "last_alert_price": "n/a",
  "last_buy_time": 1690000000
}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o644))

	st := s.Load()
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "keep", st.Positions[0].ID)
	assert.True(t, st.WatchReference.Valid)
	assert.True(t, st.WatchReference.Decimal.Equal(decimal.NewFromInt(100)))
	assert.False(t, st.LastAlertPrice.Valid)
	require.NotNil(t, st.LastBuyTime)

	matches, err := filepath.Glob(s.Path() + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	backup, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, doc, string(backup))

	// the next save keeps the surviving position
	require.NoError(t, s.SetWatchReference(decimal.NewFromInt(95)))
	st = s.Load()
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "keep", st.Positions[0].ID)
}

func TestLoad_LegacyDocument(t *testing.T) {
	s := newTestStore(t)
	legacy := `{
  "positions": [{"side": "buy", "price": 9500000.0, "qty": 0.001, "time": 1690000000}],
  "watch_reference": 9500000.0,
  "last_buy_time": 1690000000.25,
  "operator_note": {"by": "ops", "n": 3}
}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	st := s.Load()
	require.Len(t, st.Positions, 1)
	assert.NotEmpty(t, st.Positions[0].ID)
	assert.True(t, st.Positions[0].Price.Equal(decimal.NewFromInt(9500000)))
	require.NotNil(t, st.LastBuyTime)
	assert.Equal(t, int64(1690000000), *st.LastBuyTime)

	require.NoError(t, s.Save(st))
	var raw map[string]json.RawMessage
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `{"by": "ops", "n": 3}`, string(raw["operator_note"]))
}

func TestRecordPosition_CapsAtFifty(t *testing.T) {
	s := newTestStore(t)

	var first model.Position
	for i := 0; i < model.MaxPositions+1; i++ {
		p, err := s.RecordPosition(model.SideBuy, decimal.NewFromInt(int64(100+i)), decimal.NewFromInt(1))
		require.NoError(t, err)
		if i == 0 {
			first = p
		}
	}

	st := s.Load()
	require.Len(t, st.Positions, model.MaxPositions)
	assert.True(t, st.Positions[0].Price.Equal(decimal.NewFromInt(101)))
	for _, p := range st.Positions {
		assert.NotEqual(t, first.ID, p.ID)
	}
}

func TestRecordPosition_RereadsDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	a := NewStore(path, nil)
	b := NewStore(path, nil)

	_, err := a.RecordPosition(model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = b.RecordPosition(model.SideBuy, decimal.NewFromInt(2), decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Len(t, a.Load().Positions, 2)
}

func TestRemovePosition_ByIDThenFallback(t *testing.T) {
	s := newTestStore(t)
	p1, err := s.RecordPosition(model.SideBuy, decimal.NewFromInt(10), decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = s.RecordPosition(model.SideBuy, decimal.NewFromInt(20), decimal.NewFromInt(1))
	require.NoError(t, err)
	p3, err := s.RecordPosition(model.SideBuy, decimal.NewFromInt(30), decimal.NewFromInt(1))
	require.NoError(t, err)

	removed, ok, err := s.RemovePosition(p1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p1.ID, removed.ID)

	removed, ok, err = s.RemovePosition("unknown")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p3.ID, removed.ID)

	st := s.Load()
	require.Len(t, st.Positions, 1)
	assert.True(t, st.Positions[0].Price.Equal(decimal.NewFromInt(20)))
}

func TestRemovePosition_Empty(t *testing.T) {
	_, ok, err := newTestStore(t).RemovePosition("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastBuyTimeAndWatchReference(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.LastBuyTime()
	assert.False(t, ok)

	now := time.Unix(1700000500, 0)
	require.NoError(t, s.SetLastBuyTime(now))
	got, ok := s.LastBuyTime()
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	require.NoError(t, s.SetWatchReference(decimal.NewFromInt(123)))
	assert.True(t, s.Load().WatchReference.Decimal.Equal(decimal.NewFromInt(123)))
}

func TestUpdate_ErrorSkipsSave(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(func(st *model.BotState) error {
		st.WatchReference = decimal.NewNullDecimal(decimal.NewFromInt(1))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_AdjustQuoteBalance(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"), nil)

	require.NoError(t, s.AdjustQuoteBalance(decimal.NewFromInt(-100)))
	assert.False(t, s.Load().LastQuoteBalance.Valid)

	require.NoError(t, s.Update(func(st *model.BotState) error {
		st.LastQuoteBalance = decimal.NewNullDecimal(decimal.NewFromInt(5000))
		return nil
	}))
	require.NoError(t, s.AdjustQuoteBalance(decimal.NewFromInt(-1200)))
	assert.True(t, s.Load().LastQuoteBalance.Decimal.Equal(decimal.NewFromInt(3800)))
}
