package engine

import (
	"context"

	"botrader/internal/logging"
	"botrader/internal/models"
	"botrader/internal/store"
)

// RunTouchMonitorCycle scans all open trades carrying a stop-loss or
// take-profit and closes any whose level has been traded through,
// using both the instantaneous tick price and the latest
// short-interval candle's range so intrabar touches are not missed.
// Market data is fetched once per distinct symbol.
func (e *Engine) RunTouchMonitorCycle(ctx context.Context) {
	trades, err := e.store.GetTrades(ctx, store.TradeFilter{
		Status:         models.TradeOpen,
		OnlyWithLevels: true,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("listing open trades for touch monitor")
		return
	}
	if len(trades) == 0 {
		return
	}

	bySymbol := make(map[string][]models.Trade)
	for _, t := range trades {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	touched := make(map[string]bool) // bot ids needing a stats refresh
	for symbol, group := range bySymbol {
		price, err := e.data.LatestPrice(ctx, symbol)
		if err != nil || price <= 0 {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("tick price unavailable, skipping symbol")
			continue
		}

		// The short candle's range catches touches the tick sampling
		// between two passes would miss.
		low, high := price, price
		if candles, err := e.data.Candles(ctx, symbol, e.cfg.TouchTimeframe, 1); err == nil && len(candles) > 0 {
			last := candles[len(candles)-1]
			if last.Low < low {
				low = last.Low
			}
			if last.High > high {
				high = last.High
			}
		}

		for i := range group {
			trade := &group[i]
			level, hit := touchedLevel(trade, price, low, high)
			if !hit {
				continue
			}
			if e.closeAtLevel(ctx, trade, level) {
				touched[trade.BotID] = true
			}
		}
	}

	for botID := range touched {
		if _, err := e.stats.Recompute(ctx, botID); err != nil {
			e.log.Error().Err(err).Str("bot_id", botID).Msg("recomputing stats after touch close")
		}
	}
}

// touchedLevel returns the breached level, stop-loss evaluated before
// take-profit when both could apply in the same pass. For a long the
// stop triggers on price/low at or under the level and the target on
// price/high at or over it; shorts are mirrored.
func touchedLevel(trade *models.Trade, price, low, high float64) (float64, bool) {
	long := trade.Side == models.SideBuy
	if trade.StopLoss > 0 {
		if (long && (price <= trade.StopLoss || low <= trade.StopLoss)) ||
			(!long && (price >= trade.StopLoss || high >= trade.StopLoss)) {
			return trade.StopLoss, true
		}
	}
	if trade.TakeProfit > 0 {
		if (long && (price >= trade.TakeProfit || high >= trade.TakeProfit)) ||
			(!long && (price <= trade.TakeProfit || low <= trade.TakeProfit)) {
			return trade.TakeProfit, true
		}
	}
	return 0, false
}

// closeAtLevel closes the trade at the triggered level itself, not
// the live price. The slow loop losing the race is a silent no-op.
func (e *Engine) closeAtLevel(ctx context.Context, trade *models.Trade, level float64) bool {
	fill := store.ExitFill{
		Price:      level,
		Time:       e.clock.Now(),
		PnL:        round2(trade.DirectionalPnL(level)),
		PnLPercent: pnlPercent(trade, level),
	}
	closed, err := e.store.CloseTrade(ctx, trade.ID, fill)
	if err != nil {
		e.log.Error().Err(err).Str("trade_id", trade.ID).Str("bot_id", trade.BotID).
			Str("symbol", trade.Symbol).Msg("closing touched trade")
		return false
	}
	if !closed {
		return false
	}
	logging.LogTradeClosed(e.log, trade.BotID, trade.ID, trade.Symbol, string(trade.Side), level, fill.PnL)
	return true
}
