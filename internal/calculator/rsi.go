package calculator

import (
	"errors"

	"TriggerBot/internal/model"
)

// neutralRSI is reported when there are too few bars to say anything.
const neutralRSI = 50.0

// CalculateRSI computes the Wilder-smoothed RSI of closing prices. It needs period+1 bars and
// returns 50 when there are fewer.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	closes := extractCloses(bars)
	if len(closes) < period+1 {
		return neutralRSI, nil
	}

	var avgGain, avgLoss float64
	step := func(i int) (gain, loss float64) {
		change := closes[i] - closes[i-1]
		if change > 0 {
			return change, 0
		}
		return 0, -change
	}
	for i := 1; i <= period; i++ {
		g, l := step(i)
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		g, l := step(i)
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0, nil
	}
	return 100.0 - 100.0/(1.0+avgGain/avgLoss), nil
}
