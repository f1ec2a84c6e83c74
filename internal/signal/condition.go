// Package signal maps a bot's configured indicators and condition
// keywords onto entry and exit decisions.
package signal

import (
	"strings"
)

// Kind identifies one parsed condition variant. Conditions are parsed
// once when a bot is loaded, not re-matched against the raw string on
// every tick.
type Kind int

const (
	KindDefault Kind = iota
	KindOversold
	KindOverbought
	KindCrossover
	KindCrossunder
	KindAbove
	KindBelow
	KindBreakout
	KindBreakdown
	KindBandTouch
	KindRising
	KindFalling
	KindDivergence
)

// Condition is a parsed condition keyword plus its threshold. A zero
// threshold defers to the indicator family's canonical default.
type Condition struct {
	Kind      Kind
	Threshold float64
}

// ParseCondition parses a free-form condition keyword string into a
// tagged variant. Matching is case-insensitive on substrings, so user
// strings like "RSI crossover 50" or "quando tocou a banda" resolve
// to the intended rule.
func ParseCondition(raw string, threshold float64) Condition {
	s := strings.ToLower(raw)
	kind := KindDefault
	switch {
	case s == "":
		kind = KindDefault
	case strings.Contains(s, "crossover"):
		kind = KindCrossover
	case strings.Contains(s, "crossunder"):
		kind = KindCrossunder
	case strings.Contains(s, "breakout"):
		kind = KindBreakout
	case strings.Contains(s, "breakdown"):
		kind = KindBreakdown
	case strings.Contains(s, "oversold"), strings.Contains(s, "<"):
		kind = KindOversold
	case strings.Contains(s, "overbought"), strings.Contains(s, ">"):
		kind = KindOverbought
	case strings.Contains(s, "tocou"), strings.Contains(s, "touch"):
		kind = KindBandTouch
	case strings.Contains(s, "above"):
		kind = KindAbove
	case strings.Contains(s, "below"):
		kind = KindBelow
	case strings.Contains(s, "rising"):
		kind = KindRising
	case strings.Contains(s, "falling"):
		kind = KindFalling
	case strings.Contains(s, "divergence"):
		kind = KindDivergence
	}
	return Condition{Kind: kind, Threshold: threshold}
}
