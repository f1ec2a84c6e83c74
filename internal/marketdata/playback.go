package marketdata

import (
	"context"
	"sync"

	"botrader/internal/errors"
	"botrader/internal/models"
)

// PlaybackProvider serves pre-loaded candles and prices from memory.
// It backs deterministic tests and dry runs the way a paper broker
// proxies a live one.
type PlaybackProvider struct {
	mu      sync.RWMutex
	candles map[string][]models.Candle // keyed by symbol|timeframe
	prices  map[string]float64
}

// NewPlaybackProvider creates an empty playback provider.
func NewPlaybackProvider() *PlaybackProvider {
	return &PlaybackProvider{
		candles: make(map[string][]models.Candle),
		prices:  make(map[string]float64),
	}
}

// SetCandles loads the candle window served for a symbol/timeframe.
func (p *PlaybackProvider) SetCandles(symbol, timeframe string, candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol+"|"+timeframe] = candles
}

// SetPrice loads the latest price served for a symbol.
func (p *PlaybackProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Candles returns the tail of the loaded window, up to limit candles.
func (p *PlaybackProvider) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	candles, ok := p.candles[symbol+"|"+timeframe]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDataNotFound, "no candles loaded for %s %s", symbol, timeframe)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// LatestPrice returns the loaded price, falling back to the last
// loaded candle close for the symbol.
func (p *PlaybackProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if price, ok := p.prices[symbol]; ok {
		return price, nil
	}
	for key, candles := range p.candles {
		if len(candles) > 0 && len(key) > len(symbol) && key[:len(symbol)+1] == symbol+"|" {
			return candles[len(candles)-1].Close, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrDataNotFound, "no price loaded for %s", symbol)
}
