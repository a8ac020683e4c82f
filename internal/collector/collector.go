// Package collector turns daily candles into the indicators the breakout path needs.
package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"TriggerBot/internal/calculator"
	"TriggerBot/internal/exchange"
	"TriggerBot/internal/model"
)

// Settings select the indicator windows.
type Settings struct {
	LookbackDays int // recent high/low window
	SMAShort     int
	SMALong      int
}

// Collector orchestrates candle fetching and indicator computation.
type Collector struct {
	source   exchange.MarketData
	pair     string
	settings Settings
	log      *zap.Logger
}

// NewCollector creates a Collector reading candles for pair from source.
func NewCollector(source exchange.MarketData, pair string, s Settings, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{source: source, pair: pair, settings: s, log: log}
}

// barsNeeded covers the longest window plus the extra bar RSI and ATR need.
func (c *Collector) barsNeeded() int {
	n := 27 // EMA(26) + 1
	for _, w := range []int{c.settings.LookbackDays, c.settings.SMAShort, c.settings.SMALong} {
		if w+1 > n {
			n = w + 1
		}
	}
	return n
}

// Collect fetches daily candles and computes all indicators. Indicators that cannot be computed
// fall back to the current price (or zero, which disables the rule using them) with a warning.
func (c *Collector) Collect(ctx context.Context, currentPrice float64) (*model.MarketIndicators, error) {
	bars, err := c.source.FetchDailyBars(ctx, c.pair, c.barsNeeded())
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch daily bars: %s returned none", c.source.Name())
	}

	ind := &model.MarketIndicators{CurrentPrice: currentPrice, Bars: len(bars)}
	warn := func(what string, err error, fallback string) {
		c.log.Warn("indicator unavailable",
			zap.String("indicator", what), zap.String("fallback", fallback), zap.Error(err))
	}

	// Recent range
	if h, l, err := calculator.RecentRange(bars, c.settings.LookbackDays); err != nil {
		warn("recent_range", err, "current price")
		ind.RecentHigh, ind.RecentLow = currentPrice, currentPrice
	} else {
		ind.RecentHigh, ind.RecentLow = h, l
	}

	// SMAs
	if v, err := calculator.SMAOfCloses(bars, c.settings.SMAShort); err != nil {
		warn("sma_short", err, "disabled")
	} else {
		ind.SMAShort = v
	}
	if v, err := calculator.SMAOfCloses(bars, c.settings.SMALong); err != nil {
		warn("sma_long", err, "disabled")
	} else {
		ind.SMALong = v
	}

	// EMAs and ATR are journal-only
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ind.EMAFast, _ = calculator.CalculateEMA(closes, 12)
	ind.EMASlow, _ = calculator.CalculateEMA(closes, 26)
	ind.ATR, _ = calculator.CalculateATR(bars, 14)

	// Daily RSI
	if rsi, err := calculator.CalculateRSI(bars, 14); err != nil {
		warn("daily_rsi", err, "50")
		ind.DailyRSI = 50
	} else {
		ind.DailyRSI = rsi
	}

	return ind, nil
}
