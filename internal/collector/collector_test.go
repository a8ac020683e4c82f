package collector

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"TriggerBot/internal/exchange"
	"TriggerBot/internal/model"
)

func TestCollect_BreakoutIndicators(t *testing.T) {
	bars := make([]model.OHLCV, 40)
	for i := range bars {
		c := float64(1000 + i*10)
		bars[i] = model.OHLCV{Open: c, High: c + 5, Low: c - 5, Close: c}
	}
	src := exchange.NewPaper(decimal.NewFromInt(1400), nil)
	src.SetDailyBars(bars)

	c := NewCollector(src, "BTC/JPY", Settings{LookbackDays: 30, SMAShort: 5, SMALong: 25}, nil)
	ind, err := c.Collect(context.Background(), 1400)
	if err != nil {
		t.Fatal(err)
	}
	if ind.RecentHigh != 1395 {
		t.Errorf("expected recent high 1395, got %v", ind.RecentHigh)
	}
	if ind.SMAShort <= ind.SMALong {
		t.Errorf("rising series should have short SMA above long: %v <= %v", ind.SMAShort, ind.SMALong)
	}
	if ind.SMAShort != 1370 {
		t.Errorf("expected short SMA 1370, got %v", ind.SMAShort)
	}
	if ind.Bars != 40 {
		t.Errorf("expected 40 bars, got %d", ind.Bars)
	}
}

func TestCollect_ShortHistoryFallsBack(t *testing.T) {
	src := exchange.NewPaper(decimal.NewFromInt(100), nil)
	src.SetDailyBars([]model.OHLCV{{High: 101, Low: 99, Close: 100}})

	c := NewCollector(src, "BTC/JPY", Settings{LookbackDays: 30, SMAShort: 5, SMALong: 25}, nil)
	ind, err := c.Collect(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if ind.SMAShort != 0 || ind.SMALong != 0 {
		t.Errorf("SMAs should be disabled on short history, got %v/%v", ind.SMAShort, ind.SMALong)
	}
	if ind.DailyRSI != 50 {
		t.Errorf("expected neutral RSI, got %v", ind.DailyRSI)
	}
}
