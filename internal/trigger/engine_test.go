package trigger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
	"TriggerBot/internal/state"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testParams() Params {
	return Params{
		TriggerPct:     dec("10"),
		Cooldown:       time.Hour,
		MaxSlippagePct: dec("1"),
		Breakout:       BreakoutParams{Enabled: false, LookbackDays: 30, Pct: dec("3"), SMAShort: 5, SMALong: 25},
	}
}

func stateWithRef(ref string) *model.BotState {
	st := model.NewBotState()
	st.WatchReference = decimal.NewNullDecimal(dec(ref))
	return st
}

func TestShouldBuy_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		latest string
		want   bool
	}{
		{"899999", true},
		{"900000", true},
		{"900001", false},
		{"1000000", false},
	}
	for _, tt := range tests {
		got := ShouldBuy(dec(tt.latest), dec("1000000"), dec("10"))
		if got != tt.want {
			t.Errorf("latest %s: expected %v, got %v", tt.latest, tt.want, got)
		}
	}
}

func TestEvaluate_BuyOnDrop(t *testing.T) {
	e := NewEvaluator(nil, testParams(), nil)
	now := time.Unix(1700000000, 0)

	d := e.Evaluate(stateWithRef("1000000"), dec("899999"), nil, now)
	if d.Action != ActionBuy || d.Reason != ReasonPriceDrop {
		t.Fatalf("expected buy on price drop, got %s/%s", d.Action, d.Reason)
	}
	if !d.WatchReference.Equal(dec("1000000")) {
		t.Errorf("expected ref 1000000, got %s", d.WatchReference)
	}

	d = e.Evaluate(stateWithRef("1000000"), dec("900001"), nil, now)
	if d.Action != ActionNone || d.Reason != ReasonTriggerNotMet {
		t.Errorf("expected no action, got %s/%s", d.Action, d.Reason)
	}
}

func TestEvaluate_SellFullPosition(t *testing.T) {
	st := stateWithRef("1000000")
	st.AppendPosition(model.Position{ID: "p1", Side: model.SideBuy, Price: dec("1000000"), Qty: dec("0.01"), Time: 1})

	e := NewEvaluator(nil, testParams(), nil)
	d := e.Evaluate(st, dec("1100001"), nil, time.Unix(2, 0))
	if d.Action != ActionSell {
		t.Fatalf("expected sell, got %s (%s)", d.Action, d.Reason)
	}
	if d.Position.ID != "p1" || !d.Position.Qty.Equal(dec("0.01")) {
		t.Errorf("expected full position p1 qty 0.01, got %s qty %s", d.Position.ID, d.Position.Qty)
	}

	if _, ok := SellCandidate(st, dec("1099999"), dec("10")); ok {
		t.Error("9.9999% gain must not sell")
	}
}

func TestEvaluate_SellBeatsCooldown(t *testing.T) {
	st := stateWithRef("1000000")
	st.AppendPosition(model.Position{ID: "p1", Side: model.SideBuy, Price: dec("1000000"), Qty: dec("0.01")})
	now := time.Unix(1700000000, 0)
	st.SetLastBuy(now.Add(-time.Minute))

	d := NewEvaluator(nil, testParams(), nil).Evaluate(st, dec("1200000"), nil, now)
	if d.Action != ActionSell {
		t.Errorf("expected sell during cooldown, got %s", d.Action)
	}
}

func TestEvaluate_CooldownSuppressesBuy(t *testing.T) {
	st := stateWithRef("1000000")
	now := time.Unix(1700000000, 0)
	st.SetLastBuy(now.Add(-30 * time.Minute))

	e := NewEvaluator(nil, testParams(), nil)
	d := e.Evaluate(st, dec("800000"), nil, now)
	if d.Action != ActionNone || d.Reason != ReasonCooldown {
		t.Fatalf("expected cooldown, got %s/%s", d.Action, d.Reason)
	}

	d = e.Evaluate(st, dec("800000"), nil, now.Add(31*time.Minute))
	if d.Action != ActionBuy {
		t.Errorf("expected buy after cooldown, got %s/%s", d.Action, d.Reason)
	}
}

func TestSellCandidate_IgnoresInvalidPosition(t *testing.T) {
	st := model.NewBotState()
	st.AppendPosition(model.Position{ID: "zero", Side: model.SideBuy, Price: decimal.Zero, Qty: dec("1")})
	if _, ok := SellCandidate(st, dec("100"), dec("10")); ok {
		t.Error("zero-price position must not be sold")
	}

	st = model.NewBotState()
	st.AppendPosition(model.Position{ID: "s", Side: model.SideSell, Price: dec("10"), Qty: dec("1")})
	if _, ok := SellCandidate(st, dec("100"), dec("10")); ok {
		t.Error("sell-only history has no candidate")
	}
}

func TestBreakout(t *testing.T) {
	p := BreakoutParams{Enabled: true, Pct: dec("3")}
	tests := []struct {
		name   string
		ind    *model.MarketIndicators
		latest string
		want   bool
	}{
		{"above recent high", &model.MarketIndicators{RecentHigh: 1000}, "1031", true},
		{"just below margin", &model.MarketIndicators{RecentHigh: 1000}, "1029", false},
		{"sma cross", &model.MarketIndicators{RecentHigh: 5000, SMAShort: 1000, SMALong: 900}, "1031", true},
		{"sma not crossed", &model.MarketIndicators{RecentHigh: 5000, SMAShort: 900, SMALong: 1000}, "1031", false},
		{"no indicators", nil, "1031", false},
	}
	for _, tt := range tests {
		if got := Breakout(tt.ind, dec(tt.latest), p); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	p.Enabled = false
	if Breakout(&model.MarketIndicators{RecentHigh: 1}, dec("100"), p) {
		t.Error("disabled breakout must not fire")
	}
}

func TestEvaluate_BreakoutAuthorizesBuy(t *testing.T) {
	params := testParams()
	params.Breakout.Enabled = true
	e := NewEvaluator(nil, params, nil)

	ind := &model.MarketIndicators{RecentHigh: 1000000}
	d := e.Evaluate(stateWithRef("1000000"), dec("1040000"), ind, time.Unix(0, 0))
	if d.Action != ActionBuy || d.Reason != ReasonBreakout {
		t.Errorf("expected breakout buy, got %s/%s", d.Action, d.Reason)
	}
}

func TestSlippageExceeded(t *testing.T) {
	tests := []struct {
		ref, latest, max string
		want             bool
	}{
		{"1000", "1010", "1", false},
		{"1000", "1010.01", "1", true},
		{"1000", "989", "1", true},
		{"0", "1000", "1", false},
	}
	for _, tt := range tests {
		if got := SlippageExceeded(dec(tt.ref), dec(tt.latest), dec(tt.max)); got != tt.want {
			t.Errorf("ref %s latest %s: expected %v, got %v", tt.ref, tt.latest, tt.want, got)
		}
	}
}

func TestCooldownActive(t *testing.T) {
	now := time.Unix(1000, 0)
	if CooldownActive(time.Time{}, now, time.Hour) {
		t.Error("no previous buy must not be in cooldown")
	}
	if !CooldownActive(now.Add(-time.Minute), now, time.Hour) {
		t.Error("expected cooldown")
	}
	if CooldownActive(now.Add(-time.Hour), now, time.Hour) {
		t.Error("cooldown must end after exactly the configured duration")
	}
}

func TestResolveWatchReference(t *testing.T) {
	buy := model.Position{ID: "b", Side: model.SideBuy, Price: dec("950"), Qty: dec("1")}

	tests := []struct {
		name        string
		stored      string // empty for none
		position    *model.Position
		latest      string
		wantRef     string
		wantSource  string
		wantChanged bool
	}{
		{"stored wins", "1000", &buy, "990", "1000", RefStored, false},
		{"seeded ref prefers last buy", "990", &buy, "990", "950", RefLastBuy, true},
		{"missing ref uses last buy", "", &buy, "990", "950", RefLastBuy, true},
		{"no position initializes", "", nil, "990", "990", RefInitialized, true},
		{"seeded ref without position stays", "990", nil, "990", "990", RefInitialized, false},
		{"stale high reset", "100", nil, "250", "250", RefReset, true},
		{"stale low reset", "1000", nil, "400", "400", RefReset, true},
		{"ratio exactly 2 kept", "100", nil, "200", "100", RefStored, false},
	}
	for _, tt := range tests {
		st := model.NewBotState()
		if tt.stored != "" {
			st.WatchReference = decimal.NewNullDecimal(dec(tt.stored))
		}
		if tt.position != nil {
			st.AppendPosition(*tt.position)
		}
		ref, changed, source := ResolveWatchReference(st, dec(tt.latest))
		if !ref.Equal(dec(tt.wantRef)) || source != tt.wantSource || changed != tt.wantChanged {
			t.Errorf("%s: got ref=%s source=%s changed=%v, expected ref=%s source=%s changed=%v",
				tt.name, ref, source, changed, tt.wantRef, tt.wantSource, tt.wantChanged)
		}
	}
}

func TestEvaluator_WatchReferencePersists(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "bot_state.json"), nil)
	e := NewEvaluator(store, testParams(), nil)

	ref, err := e.WatchReference(dec("5000000"))
	if err != nil {
		t.Fatal(err)
	}
	if !ref.Equal(dec("5000000")) {
		t.Fatalf("expected ref initialized to price, got %s", ref)
	}
	st := store.Load()
	if !st.WatchReference.Valid || !st.WatchReference.Decimal.Equal(ref) {
		t.Errorf("watch reference not persisted: %+v", st.WatchReference)
	}

	// a much higher price resets the stale reference
	ref, err = e.WatchReference(dec("12000000"))
	if err != nil {
		t.Fatal(err)
	}
	if !store.Load().WatchReference.Decimal.Equal(dec("12000000")) || !ref.Equal(dec("12000000")) {
		t.Errorf("expected reset to 12000000, got %s", ref)
	}
}
