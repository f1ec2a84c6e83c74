// Package marketdata provides market data source implementations.
package marketdata

import (
	"context"

	"botrader/internal/models"
)

// Provider supplies OHLCV candles and the latest traded price for a
// symbol. Implementations must return an error on transient failure;
// callers skip the affected bot or symbol for the current tick and
// retry on the next one.
type Provider interface {
	// Candles returns up to limit candles for the symbol/timeframe,
	// ordered ascending by time.
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	// LatestPrice returns the most recent traded price for the symbol.
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
