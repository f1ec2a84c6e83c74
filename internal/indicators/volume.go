package indicators

import (
	"botrader/internal/models"
)

// OBV calculates cumulative on-balance volume over the window: volume
// added on up-closes, subtracted on down-closes.
func OBV(candles []models.Candle) float64 {
	var obv float64
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
	}
	return obv
}

// VolumeAverage calculates the rolling average volume of the last
// period candles. Returns 0 on an empty series.
func VolumeAverage(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	window := tailCandles(candles, clampPeriod(period, len(candles)))
	var total float64
	for _, c := range window {
		total += c.Volume
	}
	return total / float64(len(window))
}
