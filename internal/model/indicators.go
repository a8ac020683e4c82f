package model

// MarketIndicators holds the daily indicators used by the breakout buy path and recorded in the
// cycle journal.
type MarketIndicators struct {
	CurrentPrice float64
	RecentHigh   float64 // highest high over the breakout lookback
	RecentLow    float64
	SMAShort     float64
	SMALong      float64
	EMAFast      float64 // EMA(12)
	EMASlow      float64 // EMA(26)
	ATR          float64 // ATR(14)
	DailyRSI     float64
	Bars         int // number of daily bars the values were computed from
}
