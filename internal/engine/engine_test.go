package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botrader/internal/errors"
	"botrader/internal/marketdata"
	"botrader/internal/models"
	"botrader/internal/store"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu      sync.Mutex
	bots    map[string]*models.Bot
	trades  map[string]*models.Trade
	wallets map[string]float64 // ownerID|asset
}

func newMemStore() *memStore {
	return &memStore{
		bots:    make(map[string]*models.Bot),
		trades:  make(map[string]*models.Trade),
		wallets: make(map[string]float64),
	}
}

func (m *memStore) SaveBot(ctx context.Context, bot *models.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bot.ID == "" {
		bot.ID = uuid.New().String()
	}
	clone := *bot
	m.bots[bot.ID] = &clone
	return nil
}

func (m *memStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[id]
	if !ok {
		return nil, errors.ErrBotNotFound
	}
	clone := *bot
	return &clone, nil
}

func (m *memStore) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bot
	for _, bot := range m.bots {
		if bot.IsActive {
			out = append(out, *bot)
		}
	}
	return out, nil
}

func (m *memStore) SetBotActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[id]
	if !ok {
		return errors.ErrBotNotFound
	}
	bot.IsActive = active
	return nil
}

func (m *memStore) UpdateBotStats(ctx context.Context, id string, stats models.PerformanceStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[id]
	if !ok {
		return errors.ErrBotNotFound
	}
	bot.Stats = stats
	return nil
}

func (m *memStore) OpenTrade(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	trade.Status = models.TradeOpen
	clone := *trade
	m.trades[trade.ID] = &clone

	notional := trade.Quantity * trade.EntryPrice
	if trade.Side == models.SideBuy {
		m.wallets[trade.OwnerID+"|"+trade.QuoteAsset] -= notional
		m.wallets[trade.OwnerID+"|"+trade.BaseAsset] += trade.Quantity
	} else {
		m.wallets[trade.OwnerID+"|"+trade.BaseAsset] -= trade.Quantity
		m.wallets[trade.OwnerID+"|"+trade.QuoteAsset] += notional
	}
	return nil
}

func (m *memStore) CloseTrade(ctx context.Context, tradeID string, fill store.ExitFill) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[tradeID]
	if !ok {
		return false, errors.ErrTradeNotFound
	}
	if trade.Status != models.TradeOpen {
		return false, nil
	}
	trade.Status = models.TradeClosed
	trade.ExitPrice = fill.Price
	trade.ExitTime = fill.Time
	trade.PnL = fill.PnL
	trade.PnLPercent = fill.PnLPercent

	notional := trade.Quantity * fill.Price
	if trade.Side == models.SideBuy {
		m.wallets[trade.OwnerID+"|"+trade.BaseAsset] -= trade.Quantity
		m.wallets[trade.OwnerID+"|"+trade.QuoteAsset] += notional
	} else {
		m.wallets[trade.OwnerID+"|"+trade.QuoteAsset] -= notional
		m.wallets[trade.OwnerID+"|"+trade.BaseAsset] += trade.Quantity
	}
	return true, nil
}

func (m *memStore) UpdateTradeLevels(ctx context.Context, tradeID string, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[tradeID]
	if !ok {
		return errors.ErrTradeNotFound
	}
	if trade.Status != models.TradeOpen {
		return errors.ErrTradeAlreadyClosed
	}
	trade.StopLoss = stopLoss
	trade.TakeProfit = takeProfit
	return nil
}

func (m *memStore) GetTrades(ctx context.Context, filter store.TradeFilter) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Trade
	for _, trade := range m.trades {
		if filter.BotID != "" && trade.BotID != filter.BotID {
			continue
		}
		if filter.Symbol != "" && trade.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && trade.Status != filter.Status {
			continue
		}
		if filter.OnlyWithLevels && trade.StopLoss <= 0 && trade.TakeProfit <= 0 {
			continue
		}
		out = append(out, *trade)
	}
	return out, nil
}

func (m *memStore) UpsertWallet(ctx context.Context, wallet *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[wallet.OwnerID+"|"+wallet.Asset] = wallet.Balance
	return nil
}

func (m *memStore) WalletBalance(ctx context.Context, ownerID, asset string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.wallets[ownerID+"|"+asset]
	if !ok {
		return 0, errors.ErrWalletNotFound
	}
	return balance, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) openCount(botID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, trade := range m.trades {
		if trade.BotID == botID && trade.Status == models.TradeOpen {
			n++
		}
	}
	return n
}

// fixedClock pins Now to one instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) NewTicker(d time.Duration) Ticker {
	return RealClock{}.NewTicker(d)
}

func testEngine(st store.Store, data marketdata.Provider, clock Clock) *Engine {
	cfg := DefaultConfig()
	cfg.Workers = 1
	return New(st, data, cfg, clock, zerolog.Nop())
}

func fallingWindow(start float64, n int) []models.Candle {
	candles := make([]models.Candle, n)
	base := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) // a Monday
	for i := range candles {
		c := start - 2*float64(i)
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c + 1,
			High:      c + 2,
			Low:       c - 2,
			Close:     c,
			Volume:    1000,
		}
	}
	return candles
}

func oversoldBot(owner string) *models.Bot {
	return &models.Bot{
		ID:               "bot-1",
		OwnerID:          owner,
		Name:             "rsi-dip",
		Symbol:           "BTCUSDT",
		BaseAsset:        "BTC",
		QuoteAsset:       "USDT",
		Timeframe:        "5m",
		Primary:          []models.IndicatorSpec{{Name: "rsi", Period: 14}},
		EntryCondition:   "oversold",
		EntryValue:       30,
		ExitCondition:    "overbought",
		ExitValue:        70,
		SizingMode:       models.SizingFixed,
		SizingValue:      100,
		MaxOpenPositions: 1,
		IsActive:         true,
	}
}

func TestEntryCycleOpensTrade(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	if err := st.SaveBot(ctx, bot); err != nil {
		t.Fatal(err)
	}
	st.wallets["owner-1|USDT"] = 1000

	data.SetCandles("BTCUSDT", "5m", fallingWindow(200, 30))

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunEntryExitCycle(ctx)

	trades, err := st.GetTrades(ctx, store.TradeFilter{BotID: bot.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("opened %d trades, want 1", len(trades))
	}
	trade := trades[0]
	if trade.Side != models.SideBuy {
		t.Errorf("trade side = %v, want buy", trade.Side)
	}
	lastClose := 200.0 - 2*29
	if trade.EntryPrice != lastClose {
		t.Errorf("entry price = %v, want candle close %v", trade.EntryPrice, lastClose)
	}
	wantQty := 100 / lastClose
	if trade.Quantity != wantQty {
		t.Errorf("quantity = %v, want %v", trade.Quantity, wantQty)
	}

	// The wallet legs moved.
	if got := st.wallets["owner-1|USDT"]; math.Abs(got-900) > 1e-9 {
		t.Errorf("quote balance after open = %v, want 900", got)
	}
	if got := st.wallets["owner-1|BTC"]; got != wantQty {
		t.Errorf("base balance after open = %v, want %v", got, wantQty)
	}

	// Stats were recomputed after the mutation.
	saved, _ := st.GetBot(ctx, bot.ID)
	if saved.Stats.OpenTrades != 1 || saved.Stats.TotalTrades != 1 {
		t.Errorf("stats after open = %+v, want 1 open / 1 total", saved.Stats)
	}
}

func TestEntryCycleRespectsPositionCap(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.wallets["owner-1|USDT"] = 1000
	data.SetCandles("BTCUSDT", "5m", fallingWindow(200, 30))

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunEntryExitCycle(ctx)
	e.RunEntryExitCycle(ctx)

	if n := st.openCount(bot.ID); n != 1 {
		t.Errorf("open trades after two cycles = %d, want 1 (cap)", n)
	}
}

func TestScheduleGatesEntriesNotExits(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	// Sunday: outside the weekday-only schedule.
	clock := fixedClock{now: time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	bot.Schedule = &models.Schedule{
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
	st.SaveBot(ctx, bot)
	st.wallets["owner-1|USDT"] = 1000
	data.SetCandles("BTCUSDT", "5m", fallingWindow(200, 30))

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunEntryExitCycle(ctx)
	if n := st.openCount(bot.ID); n != 0 {
		t.Fatalf("schedule violated: %d trades opened on Sunday", n)
	}

	// An already-open trade still exits off-schedule when its stop is
	// breached.
	st.OpenTrade(ctx, &models.Trade{
		ID:         "t-1",
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       models.SideBuy,
		Quantity:   1,
		EntryPrice: 500,
		StopLoss:   400,
	})
	e.RunEntryExitCycle(ctx)
	if n := st.openCount(bot.ID); n != 0 {
		t.Errorf("off-schedule exit skipped: %d trades still open", n)
	}
}

func TestBalanceGuardDeactivatesBot(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.wallets["owner-1|USDT"] = 5 // under the 10 minimum
	data.SetCandles("BTCUSDT", "5m", fallingWindow(200, 30))

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunEntryExitCycle(ctx)

	if n := st.openCount(bot.ID); n != 0 {
		t.Errorf("trade opened despite balance guard: %d", n)
	}
	saved, _ := st.GetBot(ctx, bot.ID)
	if saved.IsActive {
		t.Error("bot still active after balance guard tripped")
	}
}

func TestExitEvaluatedBeforeEntry(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.wallets["owner-1|USDT"] = 1000

	// The open long's stop sits above the whole falling window, so the
	// exit frees the single slot the new entry then takes.
	st.OpenTrade(ctx, &models.Trade{
		ID:         "t-old",
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       models.SideBuy,
		Quantity:   1,
		EntryPrice: 500,
		StopLoss:   400,
	})
	data.SetCandles("BTCUSDT", "5m", fallingWindow(200, 30))

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunEntryExitCycle(ctx)

	trades, _ := st.GetTrades(ctx, store.TradeFilter{BotID: bot.ID})
	if len(trades) != 2 {
		t.Fatalf("trade count = %d, want 2 (old closed + new opened)", len(trades))
	}
	var old, fresh *models.Trade
	for i := range trades {
		if trades[i].ID == "t-old" {
			old = &trades[i]
		} else {
			fresh = &trades[i]
		}
	}
	if old == nil || old.Status != models.TradeClosed {
		t.Fatalf("old trade not closed: %+v", old)
	}
	if old.ExitPrice != 400 {
		t.Errorf("old trade exit = %v, want stop level 400", old.ExitPrice)
	}
	if fresh == nil || fresh.Status != models.TradeOpen {
		t.Fatalf("new trade not opened: %+v", fresh)
	}
}

func TestTouchMonitorClosesAtLevel(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.OpenTrade(ctx, &models.Trade{
		ID:         "t-sl",
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       models.SideBuy,
		Quantity:   1,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 110,
	})

	// Tick at 97.5 is through the stop; the close must fill at the
	// level itself, not the live price.
	data.SetPrice("BTCUSDT", 97.5)

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunTouchMonitorCycle(ctx)

	trades, _ := st.GetTrades(ctx, store.TradeFilter{BotID: bot.ID})
	if len(trades) != 1 || trades[0].Status != models.TradeClosed {
		t.Fatalf("trade not closed by touch monitor: %+v", trades)
	}
	if trades[0].ExitPrice != 98 {
		t.Errorf("exit price = %v, want stop level 98", trades[0].ExitPrice)
	}
	if trades[0].PnL != -2 {
		t.Errorf("pnl = %v, want -2", trades[0].PnL)
	}
	if trades[0].PnLPercent != -2 {
		t.Errorf("pnl percent = %v, want -2", trades[0].PnLPercent)
	}
}

func TestTouchMonitorStopBeforeTarget(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.OpenTrade(ctx, &models.Trade{
		ID:         "t-both",
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       models.SideBuy,
		Quantity:   1,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 104,
	})

	// One wild candle spans both levels; the stop wins.
	data.SetPrice("BTCUSDT", 100)
	data.SetCandles("BTCUSDT", "1m", []models.Candle{{
		Open: 100, High: 106, Low: 96, Close: 100, Volume: 1,
	}})

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunTouchMonitorCycle(ctx)

	trades, _ := st.GetTrades(ctx, store.TradeFilter{BotID: bot.ID})
	if len(trades) != 1 || trades[0].Status != models.TradeClosed {
		t.Fatalf("trade not closed: %+v", trades)
	}
	if trades[0].ExitPrice != 98 {
		t.Errorf("exit price = %v, want stop-loss 98 (priority over target)", trades[0].ExitPrice)
	}
}

func TestTouchMonitorShortSide(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.OpenTrade(ctx, &models.Trade{
		ID:         "t-short",
		BotID:      bot.ID,
		OwnerID:    bot.OwnerID,
		Symbol:     bot.Symbol,
		BaseAsset:  bot.BaseAsset,
		QuoteAsset: bot.QuoteAsset,
		Side:       models.SideSell,
		Quantity:   2,
		EntryPrice: 100,
		TakeProfit: 95,
	})

	data.SetPrice("BTCUSDT", 94)

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunTouchMonitorCycle(ctx)

	trades, _ := st.GetTrades(ctx, store.TradeFilter{BotID: bot.ID})
	if len(trades) != 1 || trades[0].Status != models.TradeClosed {
		t.Fatalf("short not closed: %+v", trades)
	}
	if trades[0].ExitPrice != 95 {
		t.Errorf("exit price = %v, want target 95", trades[0].ExitPrice)
	}
	if trades[0].PnL != 10 {
		t.Errorf("short pnl = %v, want (100-95)*2 = 10", trades[0].PnL)
	}
}

func TestStatsResyncSweepsBalanceGuard(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	data := marketdata.NewPlaybackProvider()
	clock := fixedClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}

	bot := oversoldBot("owner-1")
	st.SaveBot(ctx, bot)
	st.wallets["owner-1|USDT"] = 3

	e := testEngine(st, data, clock)
	defer e.Shutdown()

	e.RunStatsResync(ctx)

	saved, _ := st.GetBot(ctx, bot.ID)
	if saved.IsActive {
		t.Error("resync sweep did not deactivate underfunded bot")
	}
}
