package indicators

import (
	"botrader/internal/models"
)

// ADXResult holds the ADX value and its directional components.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX calculates the Average Directional Index with Wilder smoothing
// of true range and directional movement. Returns zeroes with fewer
// than two candles.
func ADX(candles []models.Candle, period int) ADXResult {
	if len(candles) < 2 {
		return ADXResult{}
	}

	n := len(candles) - 1
	trs := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < len(candles); i++ {
		trs[i-1] = trueRange(candles[i], candles[i-1])
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	p := clampPeriod(period, n)
	smTR := sum(trs[:p])
	smPlus := sum(plusDM[:p])
	smMinus := sum(minusDM[:p])

	dxs := make([]float64, 0, n-p+1)
	var plusDI, minusDI float64
	record := func() {
		plusDI, minusDI = 0, 0
		if smTR != 0 {
			plusDI = 100 * smPlus / smTR
			minusDI = 100 * smMinus / smTR
		}
		if plusDI+minusDI != 0 {
			dxs = append(dxs, 100*abs(plusDI-minusDI)/(plusDI+minusDI))
		} else {
			dxs = append(dxs, 0)
		}
	}
	record()

	for i := p; i < n; i++ {
		smTR = smTR - smTR/float64(p) + trs[i]
		smPlus = smPlus - smPlus/float64(p) + plusDM[i]
		smMinus = smMinus - smMinus/float64(p) + minusDM[i]
		record()
	}

	pd := clampPeriod(period, len(dxs))
	adx := mean(dxs[:pd])
	for i := pd; i < len(dxs); i++ {
		adx = (adx*float64(pd-1) + dxs[i]) / float64(pd)
	}

	return ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
