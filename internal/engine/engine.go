// Package engine turns market candles into open/close trading
// decisions for configured bots, enforces risk limits and keeps each
// bot's performance statistics consistent.
package engine

import (
	"math"

	"github.com/rs/zerolog"

	"botrader/internal/marketdata"
	"botrader/internal/store"
)

// Config holds engine tuning knobs.
type Config struct {
	// CandleLimit is the window length fetched per bot evaluation.
	CandleLimit int
	// TouchTimeframe is the short interval whose candle range backs
	// the SL/TP touch checks alongside the instantaneous price.
	TouchTimeframe string
	// MinBalance is the absolute quote-currency minimum below which
	// a bot is deactivated.
	MinBalance float64
	// MinQuantity is the smallest non-zero position size.
	MinQuantity float64
	// InitialEquity seeds the equity curve for drawdown computation.
	InitialEquity float64
	// Workers bounds the per-bot fan-out of the evaluation cycle.
	Workers int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CandleLimit:    100,
		TouchTimeframe: "1m",
		MinBalance:     10,
		MinQuantity:    0.0001,
		InitialEquity:  10000,
		Workers:        4,
	}
}

// Engine drives signal evaluation, position management, touch
// monitoring and statistics for all active bots.
type Engine struct {
	store store.Store
	data  marketdata.Provider
	stats *Aggregator
	cfg   Config
	clock Clock
	log   zerolog.Logger
	pool  *WorkerPool
}

// New creates an engine over the given store and market data
// provider.
func New(st store.Store, data marketdata.Provider, cfg Config, clock Clock, logger zerolog.Logger) *Engine {
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.TouchTimeframe == "" {
		cfg.TouchTimeframe = "1m"
	}
	if clock == nil {
		clock = RealClock{}
	}
	e := &Engine{
		store: st,
		data:  data,
		cfg:   cfg,
		clock: clock,
		log:   logger.With().Str("component", "engine").Logger(),
	}
	e.stats = NewAggregator(st, data, cfg.InitialEquity, logger)
	e.pool = NewWorkerPool(cfg.Workers)
	e.pool.Start()
	return e
}

// Stats exposes the statistics aggregator for standalone resyncs.
func (e *Engine) Stats() *Aggregator {
	return e.stats
}

// Shutdown stops the engine's worker pool.
func (e *Engine) Shutdown() {
	e.pool.Stop()
	submitted, completed := e.pool.Stats()
	e.log.Info().
		Uint64("tasks_submitted", submitted).
		Uint64("tasks_completed", completed).
		Msg("engine stopped")
}

// round2 rounds to 2 decimals, the precision P&L is persisted with.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
