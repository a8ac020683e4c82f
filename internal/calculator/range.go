package calculator

import (
	"errors"
	"math"

	"TriggerBot/internal/model"
)

// RecentRange scans the most recent days bars and returns the highest high and lowest low.
func RecentRange(dailyBars []model.OHLCV, days int) (high, low float64, err error) {
	if len(dailyBars) == 0 {
		return 0, 0, errors.New("no daily bars provided")
	}
	if days <= 0 {
		return 0, 0, errors.New("days must be positive")
	}
	n := len(dailyBars)
	start := n - days
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if dailyBars[i].High > high {
			high = dailyBars[i].High
		}
		if dailyBars[i].Low < low {
			low = dailyBars[i].Low
		}
	}
	return high, low, nil
}

// CalculateATR returns the Wilder-smoothed average true range over period bars.
func CalculateATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+1 {
		return 0, errors.New("not enough data for ATR calculation")
	}
	tr := func(i int) float64 {
		prevClose := bars[i-1].Close
		return math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr(i)
	}
	atr /= float64(period)
	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	return atr, nil
}
