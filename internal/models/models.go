// Package models provides domain models for the trading engine.
package models

import (
	"time"
)

// Side represents the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// SizingMode controls how a new position is sized.
type SizingMode string

const (
	SizingFixed      SizingMode = "fixed"
	SizingPercentage SizingMode = "percentage"
)

// ExecPriceMode selects the execution price for indicator-driven fills.
type ExecPriceMode string

const (
	ExecCandleClose    ExecPriceMode = "candle_close"
	ExecPriceCondition ExecPriceMode = "price_condition"
)

// LevelMode selects how stop-loss/take-profit levels are derived.
type LevelMode string

const (
	// LevelFixed offsets the entry price by a configured percentage.
	LevelFixed LevelMode = "fixed"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IndicatorSpec describes one configured indicator: its name and the
// parameters the indicator family understands. Period is the lookback;
// Signal is the secondary period (%D for Stochastic, unused elsewhere);
// Factor is the multiplier-style parameter (Bollinger stddev, HILO
// multiplier, SAR acceleration).
type IndicatorSpec struct {
	Name   string  `json:"name"`
	Period int     `json:"period"`
	Signal int     `json:"signal,omitempty"`
	Factor float64 `json:"factor,omitempty"`
}

// Schedule restricts new entries to a day-of-week set and a
// time-of-day window. Times are "HH:MM" in the engine's local time;
// a window whose start is later than its end wraps past midnight.
type Schedule struct {
	Days  []time.Weekday `json:"days"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

// Allows reports whether t falls inside the schedule window.
func (s *Schedule) Allows(t time.Time) bool {
	if s == nil {
		return true
	}
	if len(s.Days) > 0 {
		ok := false
		for _, d := range s.Days {
			if t.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	minutes := t.Hour()*60 + t.Minute()
	start, okStart := parseMinutes(s.Start)
	end, okEnd := parseMinutes(s.End)
	if okStart && okEnd && start > end {
		// Overnight window such as 22:00-06:00.
		return minutes >= start || minutes <= end
	}
	if okStart && minutes < start {
		return false
	}
	if okEnd && minutes > end {
		return false
	}
	return true
}

func parseMinutes(hhmm string) (int, bool) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, false
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// PerformanceStats is a bot's rolling performance snapshot. Every field
// is derived from the bot's full trade history and recomputed on each
// trade mutation, never hand-edited.
type PerformanceStats struct {
	TotalTrades          int     `json:"total_trades"`
	OpenTrades           int     `json:"open_trades"`
	ClosedTrades         int     `json:"closed_trades"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	WinRate              float64 `json:"win_rate"`
	TotalProfit          float64 `json:"total_profit"`
	TotalLoss            float64 `json:"total_loss"`
	ProfitFactor         float64 `json:"profit_factor"`
	RealizedPnL          float64 `json:"realized_pnl"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	NetProfit            float64 `json:"net_profit"`
	AverageWin           float64 `json:"average_win"`
	AverageLoss          float64 `json:"average_loss"`
	LargestWin           float64 `json:"largest_win"`
	LargestLoss          float64 `json:"largest_loss"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CurrentStreak        int     `json:"current_streak"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
}

// Bot is a persistent strategy configuration plus its performance
// snapshot.
type Bot struct {
	ID      string
	OwnerID string
	Name    string

	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Timeframe  string

	// Primary holds one or more indicators; two or more moving
	// averages configure the multi-MA crossover strategy.
	Primary      []IndicatorSpec
	Secondary    *IndicatorSpec
	Confirmation *IndicatorSpec

	EntryCondition string
	ExitCondition  string
	EntryValue     float64
	ExitValue      float64

	SizingMode       SizingMode
	SizingValue      float64
	MaxPosition      float64
	MaxOpenPositions int

	StopLossEnabled   bool
	StopLossMode      LevelMode
	StopLossValue     float64
	TakeProfitEnabled bool
	TakeProfitMode    LevelMode
	TakeProfitValue   float64

	Schedule *Schedule

	EntryPriceMode ExecPriceMode
	ExitPriceMode  ExecPriceMode

	IsActive bool

	Stats PerformanceStats

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trade is one simulated market position belonging to one bot.
// Quantity and entry fields never change after creation; exit fields
// are set together, atomically, exactly once.
type Trade struct {
	ID      string
	BotID   string
	OwnerID string

	Symbol     string
	BaseAsset  string
	QuoteAsset string

	Side       Side
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time

	StopLoss   float64 // 0 means unset
	TakeProfit float64 // 0 means unset

	Status     TradeStatus
	ExitPrice  float64
	ExitTime   time.Time
	PnL        float64
	PnLPercent float64

	CreatedAt time.Time
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// DirectionalPnL computes the per-side P&L of unwinding the position
// at price, without rounding.
func (t *Trade) DirectionalPnL(price float64) float64 {
	if t.Side == SideSell {
		return (t.EntryPrice - price) * t.Quantity
	}
	return (price - t.EntryPrice) * t.Quantity
}

// Wallet is a per-owner, per-asset balance. The engine treats it as
// the sole source of truth for available funds.
type Wallet struct {
	ID        string
	OwnerID   string
	Asset     string
	Balance   float64
	UpdatedAt time.Time
}
