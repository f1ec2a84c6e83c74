package indicators

import (
	"math"

	"botrader/internal/models"
)

// Momentum oscillators. Each function returns the value at the most
// recent sample and degrades to the widest available sub-window; the
// neutral fallback on empty history is documented per function.

// RSI calculates the Wilder-style Relative Strength Index over the
// close series. Returns 50 with insufficient history and 100 when the
// average loss is zero.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	n := len(closes)
	gains := make([]float64, 0, n-1)
	losses := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	p := clampPeriod(period, len(gains))
	avgGain := mean(gains[:p])
	avgLoss := mean(losses[:p])

	// Wilder smoothing over the remainder of the window.
	for i := p; i < len(gains); i++ {
		avgGain = (avgGain*float64(p-1) + gains[i]) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + losses[i]) / float64(p)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Stochastic calculates the %K/%D oscillator pair. %K is the close's
// position within the high/low range of the last kPeriod candles; %D
// is the simple average of the last dPeriod %K values. Returns 50/50
// with insufficient history.
func Stochastic(candles []models.Candle, kPeriod, dPeriod int) (k, d float64) {
	if len(candles) == 0 {
		return 50, 50
	}

	k = stochasticK(candles, kPeriod)

	p := clampPeriod(dPeriod, len(candles))
	var total float64
	for i := 0; i < p; i++ {
		total += stochasticK(candles[:len(candles)-i], kPeriod)
	}
	d = total / float64(p)
	return k, d
}

func stochasticK(candles []models.Candle, kPeriod int) float64 {
	if len(candles) == 0 {
		return 50
	}
	window := tailCandles(candles, clampPeriod(kPeriod, len(candles)))
	hh := highest(highPrices(window))
	ll := lowest(lowPrices(window))
	if hh == ll {
		return 50
	}
	close := candles[len(candles)-1].Close
	return 100 * (close - ll) / (hh - ll)
}

// WilliamsR calculates Williams %R over the last period candles.
// Returns -50 with insufficient history.
func WilliamsR(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return -50
	}
	window := tailCandles(candles, clampPeriod(period, len(candles)))
	hh := highest(highPrices(window))
	ll := lowest(lowPrices(window))
	if hh == ll {
		return -50
	}
	close := candles[len(candles)-1].Close
	return -100 * (hh - close) / (hh - ll)
}

// CCI calculates the Commodity Channel Index over the last period
// candles. Returns 0 with insufficient history or a flat window.
func CCI(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	window := tailCandles(candles, clampPeriod(period, len(candles)))
	tp := make([]float64, len(window))
	for i, c := range window {
		tp[i] = typicalPrice(c)
	}
	sma := mean(tp)

	var meanDev float64
	for _, v := range tp {
		meanDev += math.Abs(v - sma)
	}
	meanDev /= float64(len(tp))

	if meanDev == 0 {
		return 0
	}
	return (tp[len(tp)-1] - sma) / (0.015 * meanDev)
}
