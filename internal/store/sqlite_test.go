package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"botrader/internal/errors"
	"botrader/internal/models"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBot() *models.Bot {
	return &models.Bot{
		OwnerID:    "owner-1",
		Name:       "dip-buyer",
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Timeframe:  "5m",
		Primary: []models.IndicatorSpec{
			{Name: "rsi", Period: 14},
		},
		Secondary:         &models.IndicatorSpec{Name: "sma", Period: 21},
		EntryCondition:    "oversold",
		EntryValue:        30,
		ExitCondition:     "overbought",
		ExitValue:         70,
		SizingMode:        models.SizingFixed,
		SizingValue:       100,
		MaxOpenPositions:  2,
		StopLossEnabled:   true,
		StopLossMode:      models.LevelFixed,
		StopLossValue:     2,
		TakeProfitEnabled: true,
		TakeProfitMode:    models.LevelFixed,
		TakeProfitValue:   5,
		Schedule: &models.Schedule{
			Days:  []time.Weekday{time.Monday, time.Friday},
			Start: "09:00",
			End:   "17:00",
		},
		EntryPriceMode: models.ExecCandleClose,
		ExitPriceMode:  models.ExecPriceCondition,
		IsActive:       true,
	}
}

func sampleTrade(botID string) *models.Trade {
	return &models.Trade{
		BotID:      botID,
		OwnerID:    "owner-1",
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Side:       models.SideBuy,
		Quantity:   0.5,
		EntryPrice: 100,
		EntryTime:  time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
		StopLoss:   98,
		TakeProfit: 105,
	}
}

func TestBotRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	if err := store.SaveBot(ctx, bot); err != nil {
		t.Fatalf("saving bot: %v", err)
	}
	if bot.ID == "" {
		t.Fatal("SaveBot did not assign an id")
	}

	got, err := store.GetBot(ctx, bot.ID)
	if err != nil {
		t.Fatalf("fetching bot: %v", err)
	}
	if got.Name != bot.Name || got.Symbol != bot.Symbol || got.Timeframe != bot.Timeframe {
		t.Errorf("identity fields differ: %+v", got)
	}
	if len(got.Primary) != 1 || got.Primary[0].Name != "rsi" || got.Primary[0].Period != 14 {
		t.Errorf("primary indicators = %+v, want rsi/14", got.Primary)
	}
	if got.Secondary == nil || got.Secondary.Name != "sma" {
		t.Errorf("secondary indicator = %+v, want sma", got.Secondary)
	}
	if got.Confirmation != nil {
		t.Errorf("confirmation = %+v, want nil", got.Confirmation)
	}
	if got.Schedule == nil || got.Schedule.Start != "09:00" || len(got.Schedule.Days) != 2 {
		t.Errorf("schedule = %+v", got.Schedule)
	}
	if !got.StopLossEnabled || got.StopLossValue != 2 || got.TakeProfitValue != 5 {
		t.Errorf("level config lost: %+v", got)
	}
	if got.EntryPriceMode != models.ExecCandleClose || got.ExitPriceMode != models.ExecPriceCondition {
		t.Errorf("price modes = %v/%v", got.EntryPriceMode, got.ExitPriceMode)
	}
}

func TestGetBotNotFound(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetBot(context.Background(), "missing"); !errors.Is(err, errors.ErrBotNotFound) {
		t.Errorf("err = %v, want ErrBotNotFound", err)
	}
}

func TestActiveBotsFilter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	active := sampleBot()
	store.SaveBot(ctx, active)

	inactive := sampleBot()
	inactive.Name = "parked"
	inactive.IsActive = false
	store.SaveBot(ctx, inactive)

	bots, err := store.ActiveBots(ctx)
	if err != nil {
		t.Fatalf("listing active bots: %v", err)
	}
	if len(bots) != 1 || bots[0].ID != active.ID {
		t.Errorf("active bots = %+v, want only %s", bots, active.ID)
	}

	if err := store.SetBotActive(ctx, active.ID, false); err != nil {
		t.Fatalf("deactivating: %v", err)
	}
	bots, _ = store.ActiveBots(ctx)
	if len(bots) != 0 {
		t.Errorf("active bots after deactivation = %d, want 0", len(bots))
	}

	if err := store.SetBotActive(ctx, "missing", true); !errors.Is(err, errors.ErrBotNotFound) {
		t.Errorf("err = %v, want ErrBotNotFound", err)
	}
}

func TestUpdateBotStats(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)

	stats := models.PerformanceStats{TotalTrades: 7, WinRate: 42.5, RealizedPnL: 13.5}
	if err := store.UpdateBotStats(ctx, bot.ID, stats); err != nil {
		t.Fatalf("updating stats: %v", err)
	}

	got, _ := store.GetBot(ctx, bot.ID)
	if got.Stats.TotalTrades != 7 || got.Stats.WinRate != 42.5 || got.Stats.RealizedPnL != 13.5 {
		t.Errorf("stats = %+v, want 7/42.5/13.5", got.Stats)
	}
}

func TestOpenTradeAppliesWalletLegs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)
	store.UpsertWallet(ctx, &models.Wallet{OwnerID: "owner-1", Asset: "USDT", Balance: 1000})

	trade := sampleTrade(bot.ID)
	if err := store.OpenTrade(ctx, trade); err != nil {
		t.Fatalf("opening trade: %v", err)
	}

	quote, err := store.WalletBalance(ctx, "owner-1", "USDT")
	if err != nil {
		t.Fatalf("reading quote wallet: %v", err)
	}
	if math.Abs(quote-950) > 1e-8 {
		t.Errorf("quote balance = %v, want 1000 - 0.5*100 = 950", quote)
	}

	base, err := store.WalletBalance(ctx, "owner-1", "BTC")
	if err != nil {
		t.Fatalf("reading base wallet: %v", err)
	}
	if math.Abs(base-0.5) > 1e-8 {
		t.Errorf("base balance = %v, want 0.5", base)
	}
}

func TestCloseTradeIsAtomicAndIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)
	store.UpsertWallet(ctx, &models.Wallet{OwnerID: "owner-1", Asset: "USDT", Balance: 1000})

	trade := sampleTrade(bot.ID)
	store.OpenTrade(ctx, trade)

	fill := ExitFill{
		Price:      110,
		Time:       time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC),
		PnL:        5,
		PnLPercent: 10,
	}
	closed, err := store.CloseTrade(ctx, trade.ID, fill)
	if err != nil {
		t.Fatalf("closing trade: %v", err)
	}
	if !closed {
		t.Fatal("first close reported already-closed")
	}

	// The racing loop's second close is a silent no-op.
	closed, err = store.CloseTrade(ctx, trade.ID, ExitFill{Price: 90, PnL: -5})
	if err != nil {
		t.Fatalf("second close errored: %v", err)
	}
	if closed {
		t.Error("second close reported success")
	}

	trades, _ := store.GetTrades(ctx, TradeFilter{BotID: bot.ID})
	if len(trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(trades))
	}
	got := trades[0]
	if got.Status != models.TradeClosed || got.ExitPrice != 110 || got.PnL != 5 || got.PnLPercent != 10 {
		t.Errorf("closed trade = %+v, want first fill preserved", got)
	}

	// Unwind legs: 0.5 BTC sold back at 110.
	quote, _ := store.WalletBalance(ctx, "owner-1", "USDT")
	if math.Abs(quote-1005) > 1e-8 {
		t.Errorf("quote balance = %v, want 950 + 0.5*110 = 1005", quote)
	}
	base, _ := store.WalletBalance(ctx, "owner-1", "BTC")
	if math.Abs(base) > 1e-8 {
		t.Errorf("base balance = %v, want 0", base)
	}

	if _, err := store.CloseTrade(ctx, "missing", fill); !errors.Is(err, errors.ErrTradeNotFound) {
		t.Errorf("err = %v, want ErrTradeNotFound", err)
	}
}

func TestShortTradeWalletLegs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)
	store.UpsertWallet(ctx, &models.Wallet{OwnerID: "owner-1", Asset: "BTC", Balance: 2})

	trade := sampleTrade(bot.ID)
	trade.Side = models.SideSell
	store.OpenTrade(ctx, trade)

	base, _ := store.WalletBalance(ctx, "owner-1", "BTC")
	if math.Abs(base-1.5) > 1e-8 {
		t.Errorf("base after short open = %v, want 1.5", base)
	}
	quote, _ := store.WalletBalance(ctx, "owner-1", "USDT")
	if math.Abs(quote-50) > 1e-8 {
		t.Errorf("quote after short open = %v, want 0.5*100 = 50", quote)
	}

	store.CloseTrade(ctx, trade.ID, ExitFill{Price: 90, PnL: 5, PnLPercent: 10})

	base, _ = store.WalletBalance(ctx, "owner-1", "BTC")
	if math.Abs(base-2) > 1e-8 {
		t.Errorf("base after short close = %v, want 2", base)
	}
	quote, _ = store.WalletBalance(ctx, "owner-1", "USDT")
	if math.Abs(quote-5) > 1e-8 {
		t.Errorf("quote after short close = %v, want 50 - 0.5*90 = 5", quote)
	}
}

func TestUpdateTradeLevels(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)
	trade := sampleTrade(bot.ID)
	store.OpenTrade(ctx, trade)

	if err := store.UpdateTradeLevels(ctx, trade.ID, 97, 106); err != nil {
		t.Fatalf("updating levels: %v", err)
	}
	trades, _ := store.GetTrades(ctx, TradeFilter{BotID: bot.ID})
	if trades[0].StopLoss != 97 || trades[0].TakeProfit != 106 {
		t.Errorf("levels = %v/%v, want 97/106", trades[0].StopLoss, trades[0].TakeProfit)
	}

	store.CloseTrade(ctx, trade.ID, ExitFill{Price: 100})
	if err := store.UpdateTradeLevels(ctx, trade.ID, 95, 108); !errors.Is(err, errors.ErrTradeAlreadyClosed) {
		t.Errorf("err = %v, want ErrTradeAlreadyClosed on closed trade", err)
	}
}

func TestGetTradesFilters(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	bot := sampleBot()
	store.SaveBot(ctx, bot)

	first := sampleTrade(bot.ID)
	store.OpenTrade(ctx, first)

	second := sampleTrade(bot.ID)
	second.EntryTime = first.EntryTime.Add(time.Hour)
	second.StopLoss = 0
	second.TakeProfit = 0
	store.OpenTrade(ctx, second)

	store.CloseTrade(ctx, first.ID, ExitFill{Price: 105, Time: time.Now(), PnL: 2.5})

	t.Run("by status", func(t *testing.T) {
		open, _ := store.GetTrades(ctx, TradeFilter{BotID: bot.ID, Status: models.TradeOpen})
		if len(open) != 1 || open[0].ID != second.ID {
			t.Errorf("open trades = %+v, want only %s", open, second.ID)
		}
	})
	t.Run("only with levels", func(t *testing.T) {
		leveled, _ := store.GetTrades(ctx, TradeFilter{OnlyWithLevels: true})
		if len(leveled) != 1 || leveled[0].ID != first.ID {
			t.Errorf("leveled trades = %+v, want only %s", leveled, first.ID)
		}
	})
	t.Run("ordered by entry time", func(t *testing.T) {
		all, _ := store.GetTrades(ctx, TradeFilter{BotID: bot.ID})
		if len(all) != 2 || !all[0].EntryTime.Before(all[1].EntryTime) {
			t.Errorf("trades not in entry order: %+v", all)
		}
	})
	t.Run("limit", func(t *testing.T) {
		one, _ := store.GetTrades(ctx, TradeFilter{BotID: bot.ID, Limit: 1})
		if len(one) != 1 {
			t.Errorf("limited query returned %d trades, want 1", len(one))
		}
	})
}

func TestWalletUpsertAndLookup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.WalletBalance(ctx, "owner-1", "USDT"); !errors.Is(err, errors.ErrWalletNotFound) {
		t.Errorf("err = %v, want ErrWalletNotFound", err)
	}

	store.UpsertWallet(ctx, &models.Wallet{OwnerID: "owner-1", Asset: "usdt", Balance: 500})
	balance, err := store.WalletBalance(ctx, "owner-1", "USDT")
	if err != nil {
		t.Fatalf("reading wallet: %v", err)
	}
	if balance != 500 {
		t.Errorf("balance = %v, want 500", balance)
	}

	// Upsert replaces, case-insensitively on the asset.
	store.UpsertWallet(ctx, &models.Wallet{OwnerID: "owner-1", Asset: "USDT", Balance: 750})
	balance, _ = store.WalletBalance(ctx, "owner-1", "usdt")
	if balance != 750 {
		t.Errorf("balance after upsert = %v, want 750", balance)
	}
}
