// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"botrader/internal/models"
)

// Store defines the persistence operations the engine needs over
// bots, trades and wallets.
type Store interface {
	// Bots
	SaveBot(ctx context.Context, bot *models.Bot) error
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	ActiveBots(ctx context.Context) ([]models.Bot, error)
	SetBotActive(ctx context.Context, id string, active bool) error
	UpdateBotStats(ctx context.Context, id string, stats models.PerformanceStats) error

	// Trades. OpenTrade inserts the trade and applies both wallet
	// legs in one transaction. CloseTrade performs the atomic
	// open-to-closed transition together with the unwind legs; it
	// returns false without error when the trade was already closed,
	// so the loop that loses the close race can no-op.
	OpenTrade(ctx context.Context, trade *models.Trade) error
	CloseTrade(ctx context.Context, tradeID string, fill ExitFill) (bool, error)
	UpdateTradeLevels(ctx context.Context, tradeID string, stopLoss, takeProfit float64) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	// Wallets
	UpsertWallet(ctx context.Context, wallet *models.Wallet) error
	WalletBalance(ctx context.Context, ownerID, asset string) (float64, error)

	// Lifecycle
	Close() error
}

// ExitFill carries the exit fields set together when a trade closes.
type ExitFill struct {
	Price      float64
	Time       time.Time
	PnL        float64
	PnLPercent float64
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	BotID          string
	Symbol         string
	Status         models.TradeStatus
	OnlyWithLevels bool
	Limit          int
}
