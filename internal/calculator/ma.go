package calculator

import (
	"errors"

	"TriggerBot/internal/model"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMAOfCloses returns the period-bar simple moving average of closing prices.
func SMAOfCloses(bars []model.OHLCV, period int) (float64, error) {
	return CalculateSMA(extractCloses(bars), period)
}

// CalculateEMA computes the exponential moving average, seeded with the SMA of the first
// period values.
func CalculateEMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for EMA calculation")
	}
	ema, _ := CalculateSMA(prices[:period], period)
	k := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		ema = p*k + ema*(1-k)
	}
	return ema, nil
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
