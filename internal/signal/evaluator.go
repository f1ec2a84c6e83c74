package signal

import (
	"sort"

	"botrader/internal/models"
)

// bandTouchTolerance widens band-touch checks by 0.1% so a wick that
// stops just short of the band still counts as a touch.
const bandTouchTolerance = 0.001

// breakoutBodyRatio is the minimum share of the candle's high-low
// range its net directional move must cover for breakout/breakdown
// conditions.
const breakoutBodyRatio = 0.6

// Result is an entry decision: whether to trade and in which
// direction.
type Result struct {
	ShouldTrade bool
	Side        models.Side
}

var noSignal = Result{}

func buySignal() Result {
	return Result{ShouldTrade: true, Side: models.SideBuy}
}

func sellSignal() Result {
	return Result{ShouldTrade: true, Side: models.SideSell}
}

// Strategy is a bot's compiled trading rule set: conditions parsed
// once, primary indicators classified and, for the multi-MA strategy,
// sorted by period.
type Strategy struct {
	bot   *models.Bot
	entry Condition
	exit  Condition

	primary models.IndicatorSpec
	mas     []models.IndicatorSpec
}

// Compile builds a Strategy from a bot configuration.
func Compile(bot *models.Bot) *Strategy {
	s := &Strategy{
		bot:   bot,
		entry: ParseCondition(bot.EntryCondition, bot.EntryValue),
		exit:  ParseCondition(bot.ExitCondition, bot.ExitValue),
	}
	if len(bot.Primary) > 0 {
		s.primary = bot.Primary[0]
	}
	for _, spec := range bot.Primary {
		if isMovingAverage(spec) {
			s.mas = append(s.mas, spec)
		}
	}
	sort.Slice(s.mas, func(i, j int) bool {
		return s.mas[i].Period < s.mas[j].Period
	})
	return s
}

// EvaluateEntry returns the entry decision for the current window.
// No signal is ever emitted when the bot has no remaining position
// capacity.
func (s *Strategy) EvaluateEntry(window []models.Candle, openPositions int) Result {
	if s.bot.MaxOpenPositions <= 0 || openPositions >= s.bot.MaxOpenPositions {
		return noSignal
	}
	if len(window) < 2 {
		return noSignal
	}
	if len(s.mas) >= 2 {
		return s.evaluateMACross(window)
	}
	return s.evaluate(s.entry, window)
}

// EvaluateExit reports whether an open trade should be closed by the
// bot's exit rule: a long closes on a sell-side signal, a short on a
// buy-side one.
func (s *Strategy) EvaluateExit(trade *models.Trade, window []models.Candle) bool {
	if len(window) < 2 {
		return false
	}
	var sig Result
	if len(s.mas) >= 2 {
		sig = s.evaluateMACross(window)
	} else {
		sig = s.evaluate(s.exit, window)
	}
	if !sig.ShouldTrade {
		return false
	}
	if trade.Side == models.SideBuy {
		return sig.Side == models.SideSell
	}
	return sig.Side == models.SideBuy
}

// evaluateMACross runs the classic golden/death cross over every
// fast/slow pair of the configured moving averages, fastest first;
// the first pair showing a side flip between the previous and current
// window wins.
func (s *Strategy) evaluateMACross(window []models.Candle) Result {
	prev := window[:len(window)-1]
	for i := 0; i < len(s.mas); i++ {
		for j := i + 1; j < len(s.mas); j++ {
			fast, slow := s.mas[i], s.mas[j]
			curFast := lineValue(fast, window)
			curSlow := lineValue(slow, window)
			prevFast := lineValue(fast, prev)
			prevSlow := lineValue(slow, prev)

			if prevFast <= prevSlow && curFast > curSlow {
				return buySignal()
			}
			if prevFast >= prevSlow && curFast < curSlow {
				return sellSignal()
			}
		}
	}
	return noSignal
}

func (s *Strategy) evaluate(cond Condition, window []models.Candle) Result {
	switch familyOf(s.primary) {
	case FamilyOscillator:
		return s.evaluateOscillator(cond, window)
	case FamilyBand:
		return s.evaluateBand(cond, window)
	case FamilyMACD:
		return s.evaluateMACD(cond, window)
	case FamilyStrength:
		return s.evaluateStrength(cond, window)
	default:
		return s.evaluateTrendLine(cond, window)
	}
}

func (s *Strategy) evaluateOscillator(cond Condition, window []models.Candle) Result {
	low, high, mid := oscillatorBounds(s.primary)
	cur := lineValue(s.primary, window)
	prev := lineValue(s.primary, window[:len(window)-1])

	switch cond.Kind {
	case KindOversold:
		th := cond.Threshold
		if th == 0 {
			th = low
		}
		if cur < th {
			return buySignal()
		}
	case KindOverbought:
		th := cond.Threshold
		if th == 0 {
			th = high
		}
		if cur > th {
			return sellSignal()
		}
	case KindCrossover:
		if s.crossesSecondary(window, true) {
			return buySignal()
		}
		if prev <= mid && cur > mid {
			return buySignal()
		}
	case KindCrossunder:
		if s.crossesSecondary(window, false) {
			return sellSignal()
		}
		if prev >= mid && cur < mid {
			return sellSignal()
		}
	default:
		if cur < low {
			return buySignal()
		}
		if cur > high {
			return sellSignal()
		}
	}
	return noSignal
}

// crossesSecondary checks the %K/%D crossover for Stochastic
// strategies; other oscillators have no secondary line.
func (s *Strategy) crossesSecondary(window []models.Candle, above bool) bool {
	if !isStochastic(s.primary) {
		return false
	}
	curK, curD := stochasticPair(s.primary, window)
	prevK, prevD := stochasticPair(s.primary, window[:len(window)-1])
	if above {
		return prevK <= prevD && curK > curD
	}
	return prevK >= prevD && curK < curD
}

func (s *Strategy) evaluateTrendLine(cond Condition, window []models.Candle) Result {
	n := len(window)
	cur := window[n-1]
	line := lineValue(s.primary, window)
	prevLine := lineValue(s.primary, window[:n-1])
	prevClose := window[n-2].Close

	crossedOver := prevClose <= prevLine && cur.Close > line
	crossedUnder := prevClose >= prevLine && cur.Close < line

	switch cond.Kind {
	case KindAbove:
		if cur.Close > line {
			return buySignal()
		}
	case KindBelow:
		if cur.Close < line {
			return sellSignal()
		}
	case KindCrossover:
		if crossedOver {
			return buySignal()
		}
	case KindCrossunder:
		if crossedUnder {
			return sellSignal()
		}
	case KindBreakout:
		if crossedOver && strongBody(cur, true) {
			return buySignal()
		}
	case KindBreakdown:
		if crossedUnder && strongBody(cur, false) {
			return sellSignal()
		}
	default:
		if crossedOver {
			return buySignal()
		}
		if crossedUnder {
			return sellSignal()
		}
	}
	return noSignal
}

func (s *Strategy) evaluateBand(cond Condition, window []models.Candle) Result {
	n := len(window)
	cur := window[n-1]
	upper, lower := bandValues(s.primary, window)
	prevUpper, prevLower := bandValues(s.primary, window[:n-1])
	prevClose := window[n-2].Close

	brokeOver := prevClose <= prevUpper && cur.Close > upper
	brokeUnder := prevClose >= prevLower && cur.Close < lower

	switch cond.Kind {
	case KindAbove:
		if cur.Close > upper {
			return buySignal()
		}
	case KindBelow:
		if cur.Close < lower {
			return sellSignal()
		}
	case KindCrossover:
		if brokeOver {
			return buySignal()
		}
	case KindCrossunder:
		if brokeUnder {
			return sellSignal()
		}
	case KindBreakout:
		if brokeOver && strongBody(cur, true) {
			return buySignal()
		}
	case KindBreakdown:
		if brokeUnder && strongBody(cur, false) {
			return sellSignal()
		}
	default: // band touch
		if touchesLower(cur, lower) {
			return buySignal()
		}
		if touchesUpper(cur, upper) {
			return sellSignal()
		}
	}
	return noSignal
}

func (s *Strategy) evaluateMACD(cond Condition, window []models.Candle) Result {
	cur := macdAt(window)
	prev := macdAt(window[:len(window)-1])

	switch cond.Kind {
	case KindCrossover:
		if prev.MACD <= prev.Signal && cur.MACD > cur.Signal {
			return buySignal()
		}
	case KindCrossunder:
		if prev.MACD >= prev.Signal && cur.MACD < cur.Signal {
			return sellSignal()
		}
	default:
		// Histogram sign flip doubles as the simplified divergence
		// test over two adjacent windows.
		if prev.Histogram <= 0 && cur.Histogram > 0 {
			return buySignal()
		}
		if prev.Histogram >= 0 && cur.Histogram < 0 {
			return sellSignal()
		}
	}
	return noSignal
}

func (s *Strategy) evaluateStrength(cond Condition, window []models.Candle) Result {
	n := len(window)
	cur := lineValue(s.primary, window)
	prev := lineValue(s.primary, window[:n-1])
	curClose := window[n-1].Close
	prevClose := window[n-2].Close

	switch cond.Kind {
	case KindAbove, KindOverbought:
		if cond.Threshold != 0 && cur > cond.Threshold {
			return buySignal()
		}
	case KindBelow, KindOversold:
		if cond.Threshold != 0 && cur < cond.Threshold {
			return sellSignal()
		}
	case KindRising:
		if cur > prev {
			return buySignal()
		}
	case KindFalling:
		if cur < prev {
			return sellSignal()
		}
	case KindDivergence:
		if cur > prev && curClose < prevClose {
			return buySignal()
		}
		if cur < prev && curClose > prevClose {
			return sellSignal()
		}
	default:
		if cur > prev {
			return buySignal()
		}
		if cur < prev {
			return sellSignal()
		}
	}
	return noSignal
}

// strongBody reports whether the candle's net directional move covers
// at least 60% of its high-low range in the given direction.
func strongBody(c models.Candle, up bool) bool {
	r := c.High - c.Low
	if r <= 0 {
		return false
	}
	body := c.Close - c.Open
	if !up {
		body = -body
	}
	return body >= breakoutBodyRatio*r
}

func touchesLower(c models.Candle, lower float64) bool {
	return c.Low <= lower*(1+bandTouchTolerance)
}

func touchesUpper(c models.Candle, upper float64) bool {
	return c.High >= upper*(1-bandTouchTolerance)
}
