package engine

import (
	"context"
	"sync"

	"botrader/internal/logging"
	"botrader/internal/models"
	"botrader/internal/signal"
	"botrader/internal/store"
)

// RunEntryExitCycle processes all active bots once: exit evaluation
// for open trades strictly before any new entry, then at most one new
// trade per bot. Per-bot failures are isolated; one bot's bad tick
// never blocks the others.
func (e *Engine) RunEntryExitCycle(ctx context.Context) {
	bots, err := e.store.ActiveBots(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("listing active bots")
		return
	}

	var wg sync.WaitGroup
	for i := range bots {
		bot := bots[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			e.processBot(ctx, &bot)
		}
		if !e.pool.Submit(task) {
			task()
		}
	}
	wg.Wait()
}

func (e *Engine) processBot(ctx context.Context, bot *models.Bot) {
	log := e.log.With().Str("bot_id", bot.ID).Str("symbol", bot.Symbol).Logger()

	window, err := e.data.Candles(ctx, bot.Symbol, bot.Timeframe, e.cfg.CandleLimit)
	if err != nil || len(window) == 0 {
		// Transient failure: skip this bot for the tick, retry on
		// the next one.
		log.Warn().Err(err).Msg("market data unavailable, skipping tick")
		return
	}

	strategy := signal.Compile(bot)

	open, err := e.store.GetTrades(ctx, store.TradeFilter{BotID: bot.ID, Status: models.TradeOpen})
	if err != nil {
		log.Error().Err(err).Msg("listing open trades")
		return
	}

	remaining := 0
	for i := range open {
		closed := e.evaluateExit(ctx, bot, strategy, &open[i], window)
		if !closed {
			remaining++
		}
	}

	// Entries are gated by balance and schedule; exits above are not.
	balance, ok, err := e.checkBalance(ctx, bot)
	if err != nil {
		log.Error().Err(err).Msg("balance guard failed")
		return
	}
	if !ok {
		return
	}
	if !bot.Schedule.Allows(e.clock.Now()) {
		return
	}

	sig := strategy.EvaluateEntry(window, remaining)
	if !sig.ShouldTrade {
		return
	}

	price := e.executionPrice(ctx, bot, bot.EntryPriceMode, window)
	if price <= 0 {
		log.Warn().Msg("no execution price available, skipping entry")
		return
	}

	qty := e.positionSize(bot, balance, price)
	if qty <= 0 {
		return
	}

	stopLoss, takeProfit := stopLevels(bot, sig.Side, price)
	trade := &models.Trade{
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       sig.Side,
		Quantity:   qty,
		EntryPrice: price,
		EntryTime:  e.clock.Now(),
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	if err := e.store.OpenTrade(ctx, trade); err != nil {
		log.Error().Err(err).Msg("opening trade")
		return
	}
	logging.LogTradeOpened(e.log, bot.ID, trade.ID, trade.Symbol, string(trade.Side), qty, price)

	if _, err := e.stats.Recompute(ctx, bot.ID); err != nil {
		log.Error().Err(err).Msg("recomputing stats after open")
	}
}

// evaluateExit closes one open trade if its stop-loss/take-profit is
// breached or the bot's exit rule fires. Level breaches take priority
// and fill at the level itself; indicator exits fill at the candle
// close or live tick depending on the bot's exit price mode. Returns
// true when the trade was closed.
func (e *Engine) evaluateExit(ctx context.Context, bot *models.Bot, strategy *signal.Strategy, trade *models.Trade, window []models.Candle) bool {
	cur := window[len(window)-1]

	if level, hit := levelBreach(trade, cur); hit {
		return e.closeTrade(ctx, bot, trade, level)
	}

	if !strategy.EvaluateExit(trade, window) {
		return false
	}
	price := e.executionPrice(ctx, bot, bot.ExitPriceMode, window)
	if price <= 0 {
		return false
	}
	return e.closeTrade(ctx, bot, trade, price)
}

// levelBreach checks the current candle's range against the trade's
// fixed levels, stop-loss first.
func levelBreach(trade *models.Trade, cur models.Candle) (float64, bool) {
	long := trade.Side == models.SideBuy
	if trade.StopLoss > 0 {
		if (long && cur.Low <= trade.StopLoss) || (!long && cur.High >= trade.StopLoss) {
			return trade.StopLoss, true
		}
	}
	if trade.TakeProfit > 0 {
		if (long && cur.High >= trade.TakeProfit) || (!long && cur.Low <= trade.TakeProfit) {
			return trade.TakeProfit, true
		}
	}
	return 0, false
}

// closeTrade performs the atomic close at price and recomputes the
// bot's statistics. Losing the race against the touch monitor is a
// silent no-op.
func (e *Engine) closeTrade(ctx context.Context, bot *models.Bot, trade *models.Trade, price float64) bool {
	fill := store.ExitFill{
		Price:      price,
		Time:       e.clock.Now(),
		PnL:        round2(trade.DirectionalPnL(price)),
		PnLPercent: pnlPercent(trade, price),
	}
	closed, err := e.store.CloseTrade(ctx, trade.ID, fill)
	if err != nil {
		e.log.Error().Err(err).Str("bot_id", bot.ID).Str("trade_id", trade.ID).
			Str("symbol", trade.Symbol).Msg("closing trade")
		return false
	}
	if !closed {
		e.log.Debug().Str("trade_id", trade.ID).Msg("trade already closed, skipping")
		return true
	}
	logging.LogTradeClosed(e.log, bot.ID, trade.ID, trade.Symbol, string(trade.Side), fill.Price, fill.PnL)

	if _, err := e.stats.Recompute(ctx, bot.ID); err != nil {
		e.log.Error().Err(err).Str("bot_id", bot.ID).Msg("recomputing stats after close")
	}
	return true
}

// executionPrice resolves the fill price for one side of a bot: the
// latest candle close, or the live tick when the bot is configured
// for price-condition execution. A failed tick lookup falls back to
// the close.
func (e *Engine) executionPrice(ctx context.Context, bot *models.Bot, mode models.ExecPriceMode, window []models.Candle) float64 {
	close := window[len(window)-1].Close
	if mode != models.ExecPriceCondition {
		return close
	}
	price, err := e.data.LatestPrice(ctx, bot.Symbol)
	if err != nil || price <= 0 {
		return close
	}
	return price
}

// RunStatsResync refreshes statistics for every active bot and sweeps
// the balance guard, deactivating bots whose owner balance fell under
// the minimum outside the entry path.
func (e *Engine) RunStatsResync(ctx context.Context) {
	bots, err := e.store.ActiveBots(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("listing active bots for resync")
		return
	}
	for i := range bots {
		bot := bots[i]
		if _, _, err := e.checkBalance(ctx, &bot); err != nil {
			e.log.Error().Err(err).Str("bot_id", bot.ID).Msg("balance sweep failed")
		}
		if _, err := e.stats.Recompute(ctx, bot.ID); err != nil {
			e.log.Error().Err(err).Str("bot_id", bot.ID).Msg("stats resync failed")
		}
	}
}
