package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"botrader/internal/models"
)

// BinanceProvider implements Provider against the Binance spot API.
type BinanceProvider struct {
	client *binance.Client
}

// BinanceConfig holds Binance connection settings. Public market data
// works with empty credentials.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// NewBinanceProvider creates a Binance-backed market data provider.
func NewBinanceProvider(cfg BinanceConfig) *BinanceProvider {
	binance.UseTestnet = cfg.Testnet
	return &BinanceProvider{
		client: binance.NewClient(cfg.APIKey, cfg.APISecret),
	}
}

// Candles fetches klines for the symbol/timeframe, ascending by time.
func (p *BinanceProvider) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		close, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("parsing kline for %s: malformed numeric field", symbol)
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
	}
	return candles, nil
}

// LatestPrice fetches the current ticker price for the symbol.
func (p *BinanceProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price for %s: %w", symbol, err)
	}
	return price, nil
}
