package indicators

import (
	"botrader/internal/models"
)

// BollingerResult holds the Bollinger band values at the current
// candle.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates SMA-centered bands offset by stdDevMult
// population standard deviations of the window. Returns zeroed bands
// on an empty series.
func Bollinger(closes []float64, period int, stdDevMult float64) BollingerResult {
	if len(closes) == 0 {
		return BollingerResult{}
	}
	window := tail(closes, clampPeriod(period, len(closes)))
	middle := mean(window)
	sd := stdDev(window)
	return BollingerResult{
		Upper:  middle + stdDevMult*sd,
		Middle: middle,
		Lower:  middle - stdDevMult*sd,
	}
}

// BandResult holds an upper/lower channel pair.
type BandResult struct {
	Upper float64
	Lower float64
}

// HILO calculates the proprietary high/low channel: the rolling-window
// highest high plus multiplier times the window range on top, and the
// lowest low minus the same offset below.
func HILO(candles []models.Candle, period int, multiplier float64) BandResult {
	if len(candles) == 0 {
		return BandResult{}
	}
	window := tailCandles(candles, clampPeriod(period, len(candles)))
	hh := highest(highPrices(window))
	ll := lowest(lowPrices(window))
	r := hh - ll
	return BandResult{
		Upper: hh + multiplier*r,
		Lower: ll - multiplier*r,
	}
}

// ATR calculates the Wilder-smoothed average true range. Returns 0
// with fewer than two candles.
func ATR(candles []models.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	p := clampPeriod(period, len(trs))
	atr := mean(trs[:p])
	for i := p; i < len(trs); i++ {
		atr = (atr*float64(p-1) + trs[i]) / float64(p)
	}
	return atr
}
