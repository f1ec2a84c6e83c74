package indicators

import (
	"math"

	"botrader/internal/models"
)

// SMA calculates the simple moving average of the last period values.
// Returns 0 on an empty series.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	return mean(tail(values, clampPeriod(period, len(values))))
}

// EMA calculates the exponential moving average: seeded by the first
// period's SMA, then recursively blended with multiplier 2/(period+1).
// Returns 0 on an empty series.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	p := clampPeriod(period, len(values))
	ema := mean(values[:p])
	multiplier := 2.0 / float64(p+1)
	for i := p; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
	}
	return ema
}

// WMA calculates the linearly weighted moving average of the last
// period values. Returns 0 on an empty series.
func WMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	window := tail(values, clampPeriod(period, len(values)))
	var weighted, weights float64
	for i, v := range window {
		w := float64(i + 1)
		weighted += v * w
		weights += w
	}
	return weighted / weights
}

// HMA calculates the Hull moving average: a WMA over sqrt(n) samples
// of the series 2*WMA(n/2) - WMA(n). Returns 0 on an empty series.
func HMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	n := clampPeriod(period, len(values))
	half := n / 2
	if half < 1 {
		half = 1
	}
	sq := int(math.Round(math.Sqrt(float64(n))))
	if sq < 1 {
		sq = 1
	}

	diffs := make([]float64, 0, sq)
	for i := sq - 1; i >= 0; i-- {
		window := values[:len(values)-i]
		if len(window) == 0 {
			continue
		}
		diffs = append(diffs, 2*WMA(window, half)-WMA(window, n))
	}
	return WMA(diffs, sq)
}

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates EMA(12) - EMA(26). The signal line is approximated
// as macd*0.9 rather than a true EMA of the MACD series; the
// approximation is kept deliberately for parity with the platform's
// historical behavior.
func MACD(closes []float64) MACDResult {
	macd := EMA(closes, 12) - EMA(closes, 26)
	signal := macd * 0.9
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// ParabolicSAR calculates the standard iterative stop-and-reverse
// value with the given acceleration factor and maximum. The trend
// flips when price breaches the SAR. Returns the last close with
// insufficient history.
func ParabolicSAR(candles []models.Candle, acceleration, maximum float64) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < 2 {
		return candles[0].Close
	}
	if acceleration <= 0 {
		acceleration = 0.02
	}
	if maximum <= 0 {
		maximum = 0.2
	}

	uptrend := candles[1].Close >= candles[0].Close
	af := acceleration
	var sar, ep float64
	if uptrend {
		sar = candles[0].Low
		ep = candles[0].High
	} else {
		sar = candles[0].High
		ep = candles[0].Low
	}

	for i := 1; i < len(candles); i++ {
		sar = sar + af*(ep-sar)

		if uptrend {
			if candles[i].Low < sar {
				uptrend = false
				sar = ep
				ep = candles[i].Low
				af = acceleration
				continue
			}
			if candles[i].High > ep {
				ep = candles[i].High
				af = math.Min(af+acceleration, maximum)
			}
		} else {
			if candles[i].High > sar {
				uptrend = true
				sar = ep
				ep = candles[i].High
				af = acceleration
				continue
			}
			if candles[i].Low < ep {
				ep = candles[i].Low
				af = math.Min(af+acceleration, maximum)
			}
		}
	}

	return sar
}

// IchimokuResult holds the Ichimoku Cloud lines at the current candle.
type IchimokuResult struct {
	Tenkan      float64
	Kijun       float64
	SenkouA     float64
	SenkouB     float64
	Chikou      float64
	CloudTop    float64
	CloudBottom float64
}

// Ichimoku calculates the Ichimoku Cloud with the standard 9/26/52
// periods, degrading each midpoint to the available window. The cloud
// top/bottom are the max/min of the two Senkou spans.
func Ichimoku(candles []models.Candle) IchimokuResult {
	if len(candles) == 0 {
		return IchimokuResult{}
	}

	tenkan := midpoint(candles, 9)
	kijun := midpoint(candles, 26)
	senkouA := (tenkan + kijun) / 2
	senkouB := midpoint(candles, 52)

	return IchimokuResult{
		Tenkan:      tenkan,
		Kijun:       kijun,
		SenkouA:     senkouA,
		SenkouB:     senkouB,
		Chikou:      candles[len(candles)-1].Close,
		CloudTop:    math.Max(senkouA, senkouB),
		CloudBottom: math.Min(senkouA, senkouB),
	}
}

// midpoint is the Ichimoku conversion value: the average of the
// highest high and lowest low over the last period candles.
func midpoint(candles []models.Candle, period int) float64 {
	window := tailCandles(candles, clampPeriod(period, len(candles)))
	return (highest(highPrices(window)) + lowest(lowPrices(window))) / 2
}
