package engine

import (
	"context"

	"botrader/internal/errors"
	"botrader/internal/logging"
	"botrader/internal/models"
)

// sizingRequirement returns the quote amount one new position needs
// under the bot's sizing mode.
func sizingRequirement(bot *models.Bot, balance float64) float64 {
	if bot.SizingMode == models.SizingPercentage {
		return balance * bot.SizingValue / 100
	}
	return bot.SizingValue
}

// checkBalance applies the balance guard: a bot whose owner balance
// is under the absolute minimum, or under the amount one position
// requires, is deactivated. Returns the current balance when the bot
// may trade.
func (e *Engine) checkBalance(ctx context.Context, bot *models.Bot) (float64, bool, error) {
	balance, err := e.store.WalletBalance(ctx, bot.OwnerID, bot.QuoteAsset)
	if err != nil && !errors.Is(err, errors.ErrWalletNotFound) {
		return 0, false, err
	}

	if balance < e.cfg.MinBalance {
		return balance, false, e.deactivate(ctx, bot, "balance below minimum", balance, e.cfg.MinBalance)
	}
	required := sizingRequirement(bot, balance)
	if balance < required {
		return balance, false, e.deactivate(ctx, bot, "balance below position requirement", balance, required)
	}
	return balance, true, nil
}

func (e *Engine) deactivate(ctx context.Context, bot *models.Bot, reason string, current, limit float64) error {
	if err := e.store.SetBotActive(ctx, bot.ID, false); err != nil {
		return errors.Wrapf(err, "deactivating bot %s", bot.ID)
	}
	bot.IsActive = false
	logging.LogBotDeactivated(e.log, bot.ID, bot.Symbol, reason)
	e.log.Debug().Err(errors.NewRiskError("balance_guard", current, limit, reason)).
		Str("bot_id", bot.ID).Send()
	return nil
}

// positionSize computes the quantity for a new position at price:
// the sized quote amount divided by price, capped at the bot's max
// position and floored at the engine's minimum non-zero quantity.
func (e *Engine) positionSize(bot *models.Bot, balance, price float64) float64 {
	if price <= 0 {
		return 0
	}
	amount := sizingRequirement(bot, balance)
	if amount <= 0 {
		return 0
	}
	qty := amount / price
	if bot.MaxPosition > 0 && qty > bot.MaxPosition {
		qty = bot.MaxPosition
	}
	if qty < e.cfg.MinQuantity {
		qty = e.cfg.MinQuantity
	}
	return qty
}

// stopLevels derives the stop-loss/take-profit prices frozen onto a
// trade at creation. Fixed mode offsets the entry price by the
// configured percentage, direction dependent on side.
func stopLevels(bot *models.Bot, side models.Side, entryPrice float64) (stopLoss, takeProfit float64) {
	if bot.StopLossEnabled && bot.StopLossValue > 0 {
		if side == models.SideBuy {
			stopLoss = entryPrice * (1 - bot.StopLossValue/100)
		} else {
			stopLoss = entryPrice * (1 + bot.StopLossValue/100)
		}
	}
	if bot.TakeProfitEnabled && bot.TakeProfitValue > 0 {
		if side == models.SideBuy {
			takeProfit = entryPrice * (1 + bot.TakeProfitValue/100)
		} else {
			takeProfit = entryPrice * (1 - bot.TakeProfitValue/100)
		}
	}
	return stopLoss, takeProfit
}

// pnlPercent computes the directional percentage return of a fill.
func pnlPercent(trade *models.Trade, exitPrice float64) float64 {
	if trade.EntryPrice == 0 {
		return 0
	}
	pct := (exitPrice - trade.EntryPrice) / trade.EntryPrice * 100
	if trade.Side == models.SideSell {
		pct = -pct
	}
	return round2(pct)
}
