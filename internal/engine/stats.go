package engine

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"botrader/internal/marketdata"
	"botrader/internal/models"
	"botrader/internal/store"
)

// epsilon under which derived P&L values are snapped to zero to avoid
// floating noise accumulating in the snapshot.
const pnlEpsilon = 0.01

// Aggregator recomputes a bot's aggregate performance fields from its
// full trade history.
type Aggregator struct {
	store         store.Store
	data          marketdata.Provider
	initialEquity float64
	log           zerolog.Logger
}

// NewAggregator creates a statistics aggregator.
func NewAggregator(st store.Store, data marketdata.Provider, initialEquity float64, logger zerolog.Logger) *Aggregator {
	if initialEquity <= 0 {
		initialEquity = 10000
	}
	return &Aggregator{
		store:         st,
		data:          data,
		initialEquity: initialEquity,
		log:           logger.With().Str("component", "stats").Logger(),
	}
}

// Recompute rebuilds a bot's statistics from its trade set and
// persists the snapshot. It is idempotent: running it twice without
// an intervening trade mutation yields identical output.
func (a *Aggregator) Recompute(ctx context.Context, botID string) (*models.PerformanceStats, error) {
	trades, err := a.store.GetTrades(ctx, store.TradeFilter{BotID: botID})
	if err != nil {
		return nil, err
	}

	// One fresh mark-price lookup per distinct open symbol.
	marks := make(map[string]float64)
	for _, t := range trades {
		if !t.IsOpen() {
			continue
		}
		if _, done := marks[t.Symbol]; done {
			continue
		}
		price, err := a.data.LatestPrice(ctx, t.Symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("bot_id", botID).Str("symbol", t.Symbol).
				Msg("mark price unavailable, open trades valued at entry")
			price = 0
		}
		marks[t.Symbol] = price
	}

	stats := Compute(trades, marks, a.initialEquity)
	if err := a.store.UpdateBotStats(ctx, botID, stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Compute derives the full performance snapshot from a trade set and
// per-symbol mark prices. A zero mark price values the open trade at
// its entry, contributing no unrealized P&L.
func Compute(trades []models.Trade, marks map[string]float64, initialEquity float64) models.PerformanceStats {
	var stats models.PerformanceStats
	stats.TotalTrades = len(trades)

	closed := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsOpen() {
			stats.OpenTrades++
			mark := marks[t.Symbol]
			if mark > 0 {
				stats.UnrealizedPnL += t.DirectionalPnL(mark)
			}
			continue
		}
		closed = append(closed, t)
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})

	stats.ClosedTrades = len(closed)

	var pnlPercents []float64
	for _, t := range closed {
		stats.RealizedPnL += t.PnL
		pnlPercents = append(pnlPercents, t.PnLPercent)

		if t.PnL > 0 {
			stats.WinningTrades++
			stats.TotalProfit += t.PnL
			if t.PnL > stats.LargestWin {
				stats.LargestWin = t.PnL
			}
		} else if t.PnL < 0 {
			stats.LosingTrades++
			stats.TotalLoss += -t.PnL
			if -t.PnL > stats.LargestLoss {
				stats.LargestLoss = -t.PnL
			}
		}
	}

	if stats.ClosedTrades > 0 {
		stats.WinRate = 100 * float64(stats.WinningTrades) / float64(stats.ClosedTrades)
	}
	if stats.WinningTrades > 0 {
		stats.AverageWin = stats.TotalProfit / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = stats.TotalLoss / float64(stats.LosingTrades)
	}

	switch {
	case stats.TotalLoss > 0:
		stats.ProfitFactor = stats.TotalProfit / stats.TotalLoss
	case stats.TotalProfit > 0:
		stats.ProfitFactor = 100
	}

	stats.MaxConsecutiveWins, stats.MaxConsecutiveLosses = longestStreaks(closed)
	stats.CurrentStreak = currentStreak(closed)
	stats.SharpeRatio = sharpe(pnlPercents)
	stats.MaxDrawdown = maxDrawdown(closed, initialEquity)

	stats.RealizedPnL = snapSmall(stats.RealizedPnL)
	stats.UnrealizedPnL = snapSmall(stats.UnrealizedPnL)
	stats.NetProfit = snapSmall(stats.RealizedPnL + stats.UnrealizedPnL)

	return stats
}

// longestStreaks scans closed trades oldest to newest for the longest
// winning and losing runs.
func longestStreaks(closed []models.Trade) (wins, losses int) {
	var runWins, runLosses int
	for _, t := range closed {
		switch {
		case t.PnL > 0:
			runWins++
			runLosses = 0
		case t.PnL < 0:
			runLosses++
			runWins = 0
		default:
			runWins, runLosses = 0, 0
		}
		if runWins > wins {
			wins = runWins
		}
		if runLosses > losses {
			losses = runLosses
		}
	}
	return wins, losses
}

// currentStreak scans newest to oldest while the P&L sign is stable:
// positive for a winning streak, negative for a losing one.
func currentStreak(closed []models.Trade) int {
	streak := 0
	for i := len(closed) - 1; i >= 0; i-- {
		pnl := closed[i].PnL
		if pnl == 0 {
			break
		}
		if streak == 0 {
			if pnl > 0 {
				streak = 1
			} else {
				streak = -1
			}
			continue
		}
		if streak > 0 && pnl > 0 {
			streak++
		} else if streak < 0 && pnl < 0 {
			streak--
		} else {
			break
		}
	}
	return streak
}

// sharpe approximates the Sharpe ratio as mean over population
// standard deviation of the closed trades' P&L percentages.
func sharpe(pnlPercents []float64) float64 {
	if len(pnlPercents) == 0 {
		return 0
	}
	var m float64
	for _, v := range pnlPercents {
		m += v
	}
	m /= float64(len(pnlPercents))

	var variance float64
	for _, v := range pnlPercents {
		d := v - m
		variance += d * d
	}
	variance /= float64(len(pnlPercents))
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return m / sd
}

// maxDrawdown walks the closed trades chronologically, building a
// cumulative-P&L equity curve seeded at the nominal initial balance,
// and reports the largest peak-to-trough decline as a percentage
// clamped to [0,100].
func maxDrawdown(closed []models.Trade, initialEquity float64) float64 {
	equity := initialEquity
	peak := initialEquity
	var maxDD float64
	for _, t := range closed {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - equity) / peak * 100
		if dd < 0 {
			dd = 0
		}
		if dd > 100 {
			dd = 100
		}
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func snapSmall(v float64) float64 {
	if math.Abs(v) < pnlEpsilon {
		return 0
	}
	return v
}
