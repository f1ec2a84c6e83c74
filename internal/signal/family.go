package signal

import (
	"strings"

	"botrader/internal/indicators"
	"botrader/internal/models"
)

// Family groups indicators that share evaluation rules.
type Family int

const (
	FamilyOscillator Family = iota
	FamilyMA
	FamilyBand
	FamilyMACD
	FamilyStrength
)

// familyOf classifies an indicator spec by name.
func familyOf(spec models.IndicatorSpec) Family {
	name := strings.ToLower(spec.Name)
	switch {
	case strings.Contains(name, "rsi"),
		strings.Contains(name, "stochastic"),
		strings.Contains(name, "williams"),
		strings.Contains(name, "cci"):
		return FamilyOscillator
	case strings.Contains(name, "macd"):
		return FamilyMACD
	case strings.Contains(name, "bollinger"),
		strings.Contains(name, "hilo"),
		strings.Contains(name, "ichimoku"):
		return FamilyBand
	case strings.Contains(name, "adx"),
		strings.Contains(name, "atr"),
		strings.Contains(name, "obv"),
		strings.Contains(name, "volume"):
		return FamilyStrength
	default:
		// sma, ema, wma, hma, sar and anything unrecognized behave
		// as a single trend line under price.
		return FamilyMA
	}
}

// isMovingAverage reports whether the spec is one of the plain moving
// averages eligible for the multi-MA crossover strategy.
func isMovingAverage(spec models.IndicatorSpec) bool {
	switch strings.ToLower(spec.Name) {
	case "sma", "ema", "wma", "hma":
		return true
	}
	return false
}

// lineValue computes the scalar value of a single-line indicator over
// the window: the oscillator reading, moving-average level or
// strength value. Band and MACD indicators have dedicated helpers.
func lineValue(spec models.IndicatorSpec, candles []models.Candle) float64 {
	name := strings.ToLower(spec.Name)
	closes := indicators.ClosePrices(candles)
	switch {
	case strings.Contains(name, "rsi"):
		return indicators.RSI(closes, spec.Period)
	case strings.Contains(name, "stochastic"):
		k, _ := indicators.Stochastic(candles, spec.Period, signalPeriod(spec))
		return k
	case strings.Contains(name, "williams"):
		return indicators.WilliamsR(candles, spec.Period)
	case strings.Contains(name, "cci"):
		return indicators.CCI(candles, spec.Period)
	case name == "sma":
		return indicators.SMA(closes, spec.Period)
	case name == "ema":
		return indicators.EMA(closes, spec.Period)
	case name == "wma":
		return indicators.WMA(closes, spec.Period)
	case name == "hma":
		return indicators.HMA(closes, spec.Period)
	case strings.Contains(name, "sar"), strings.Contains(name, "parabolic"):
		return indicators.ParabolicSAR(candles, spec.Factor, 0.2)
	case strings.Contains(name, "adx"):
		return indicators.ADX(candles, spec.Period).ADX
	case strings.Contains(name, "atr"):
		return indicators.ATR(candles, spec.Period)
	case strings.Contains(name, "obv"):
		return indicators.OBV(candles)
	case strings.Contains(name, "volume"):
		return indicators.VolumeAverage(candles, spec.Period)
	default:
		return indicators.SMA(closes, spec.Period)
	}
}

// bandValues computes the upper/lower pair for band-family specs.
func bandValues(spec models.IndicatorSpec, candles []models.Candle) (upper, lower float64) {
	name := strings.ToLower(spec.Name)
	switch {
	case strings.Contains(name, "bollinger"):
		factor := spec.Factor
		if factor == 0 {
			factor = 2
		}
		b := indicators.Bollinger(indicators.ClosePrices(candles), spec.Period, factor)
		return b.Upper, b.Lower
	case strings.Contains(name, "hilo"):
		b := indicators.HILO(candles, spec.Period, spec.Factor)
		return b.Upper, b.Lower
	case strings.Contains(name, "ichimoku"):
		ich := indicators.Ichimoku(candles)
		return ich.CloudTop, ich.CloudBottom
	}
	return 0, 0
}

func isStochastic(spec models.IndicatorSpec) bool {
	return strings.Contains(strings.ToLower(spec.Name), "stochastic")
}

// stochasticPair computes the %K/%D pair for a stochastic spec.
func stochasticPair(spec models.IndicatorSpec, candles []models.Candle) (k, d float64) {
	return indicators.Stochastic(candles, spec.Period, signalPeriod(spec))
}

// macdAt computes the MACD triple at the window's last candle.
func macdAt(candles []models.Candle) indicators.MACDResult {
	return indicators.MACD(indicators.ClosePrices(candles))
}

func signalPeriod(spec models.IndicatorSpec) int {
	if spec.Signal > 0 {
		return spec.Signal
	}
	return 3
}

// oscillatorBounds returns the canonical oversold/overbought
// thresholds and the midpoint for one oscillator.
func oscillatorBounds(spec models.IndicatorSpec) (low, high, mid float64) {
	name := strings.ToLower(spec.Name)
	switch {
	case strings.Contains(name, "stochastic"):
		return 20, 80, 50
	case strings.Contains(name, "williams"):
		return -80, -20, -50
	case strings.Contains(name, "cci"):
		return -100, 100, 0
	default: // rsi
		return 30, 70, 50
	}
}
