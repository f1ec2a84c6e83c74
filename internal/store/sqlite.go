package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"botrader/internal/errors"
	"botrader/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Bots table: strategy configuration plus performance snapshot
	CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		base_asset TEXT NOT NULL,
		quote_asset TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		primary_indicators TEXT NOT NULL,
		secondary_indicator TEXT,
		confirmation_indicator TEXT,
		entry_condition TEXT,
		exit_condition TEXT,
		entry_value REAL DEFAULT 0,
		exit_value REAL DEFAULT 0,
		sizing_mode TEXT NOT NULL,
		sizing_value REAL NOT NULL,
		max_position REAL DEFAULT 0,
		max_open_positions INTEGER DEFAULT 1,
		stop_loss_enabled INTEGER DEFAULT 0,
		stop_loss_mode TEXT DEFAULT 'fixed',
		stop_loss_value REAL DEFAULT 0,
		take_profit_enabled INTEGER DEFAULT 0,
		take_profit_mode TEXT DEFAULT 'fixed',
		take_profit_value REAL DEFAULT 0,
		schedule TEXT,
		entry_price_mode TEXT DEFAULT 'candle_close',
		exit_price_mode TEXT DEFAULT 'candle_close',
		is_active INTEGER DEFAULT 1,
		stats TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Trades table: simulated positions
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		base_asset TEXT NOT NULL,
		quote_asset TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		stop_loss REAL DEFAULT 0,
		take_profit REAL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'open',
		exit_price REAL DEFAULT 0,
		exit_time DATETIME,
		pnl REAL DEFAULT 0,
		pnl_percent REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (bot_id) REFERENCES bots(id)
	);

	-- Wallets table: one balance per owner and asset
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(owner_id, asset)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_bot_status ON trades(bot_id, status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status);
	CREATE INDEX IF NOT EXISTS idx_bots_active ON bots(is_active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBot inserts or replaces a bot configuration.
func (s *SQLiteStore) SaveBot(ctx context.Context, bot *models.Bot) error {
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now()
	}
	bot.UpdatedAt = time.Now()

	primary, err := json.Marshal(bot.Primary)
	if err != nil {
		return fmt.Errorf("marshaling primary indicators: %w", err)
	}
	secondary, err := marshalOptional(bot.Secondary)
	if err != nil {
		return fmt.Errorf("marshaling secondary indicator: %w", err)
	}
	confirmation, err := marshalOptional(bot.Confirmation)
	if err != nil {
		return fmt.Errorf("marshaling confirmation indicator: %w", err)
	}
	schedule, err := marshalOptional(bot.Schedule)
	if err != nil {
		return fmt.Errorf("marshaling schedule: %w", err)
	}
	stats, err := json.Marshal(bot.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bots (
			id, owner_id, name, symbol, base_asset, quote_asset, timeframe,
			primary_indicators, secondary_indicator, confirmation_indicator,
			entry_condition, exit_condition, entry_value, exit_value,
			sizing_mode, sizing_value, max_position, max_open_positions,
			stop_loss_enabled, stop_loss_mode, stop_loss_value,
			take_profit_enabled, take_profit_mode, take_profit_value,
			schedule, entry_price_mode, exit_price_mode, is_active, stats,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bot.ID, bot.OwnerID, bot.Name, bot.Symbol, bot.BaseAsset, bot.QuoteAsset, bot.Timeframe,
		string(primary), secondary, confirmation,
		bot.EntryCondition, bot.ExitCondition, bot.EntryValue, bot.ExitValue,
		string(bot.SizingMode), bot.SizingValue, bot.MaxPosition, bot.MaxOpenPositions,
		bot.StopLossEnabled, string(bot.StopLossMode), bot.StopLossValue,
		bot.TakeProfitEnabled, string(bot.TakeProfitMode), bot.TakeProfitValue,
		schedule, string(bot.EntryPriceMode), string(bot.ExitPriceMode), bot.IsActive, string(stats),
		bot.CreatedAt, bot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving bot %s: %w", bot.ID, err)
	}
	return nil
}

const botColumns = `id, owner_id, name, symbol, base_asset, quote_asset, timeframe,
	primary_indicators, secondary_indicator, confirmation_indicator,
	entry_condition, exit_condition, entry_value, exit_value,
	sizing_mode, sizing_value, max_position, max_open_positions,
	stop_loss_enabled, stop_loss_mode, stop_loss_value,
	take_profit_enabled, take_profit_mode, take_profit_value,
	schedule, entry_price_mode, exit_price_mode, is_active, stats,
	created_at, updated_at`

// GetBot fetches one bot by id.
func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	bot, err := scanBot(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching bot %s: %w", id, err)
	}
	return bot, nil
}

// ActiveBots returns all bots with is_active set.
func (s *SQLiteStore) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+botColumns+` FROM bots WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying active bots: %w", err)
	}
	defer rows.Close()

	var bots []models.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bot: %w", err)
		}
		bots = append(bots, *bot)
	}
	return bots, rows.Err()
}

// SetBotActive flips a bot's is_active flag.
func (s *SQLiteStore) SetBotActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating bot %s active flag: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrBotNotFound
	}
	return nil
}

// UpdateBotStats replaces a bot's performance snapshot.
func (s *SQLiteStore) UpdateBotStats(ctx context.Context, id string, stats models.PerformanceStats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET stats = ?, updated_at = ? WHERE id = ?`,
		string(blob), time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating bot %s stats: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrBotNotFound
	}
	return nil
}

// OpenTrade inserts a new open trade and applies the entry wallet
// legs within a single transaction.
func (s *SQLiteStore) OpenTrade(ctx context.Context, trade *models.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	trade.Status = models.TradeOpen

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning open-trade tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (
			id, bot_id, owner_id, symbol, base_asset, quote_asset,
			side, quantity, entry_price, entry_time,
			stop_loss, take_profit, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.BotID, trade.OwnerID, trade.Symbol, trade.BaseAsset, trade.QuoteAsset,
		string(trade.Side), trade.Quantity, trade.EntryPrice, trade.EntryTime,
		trade.StopLoss, trade.TakeProfit, string(models.TradeOpen), trade.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}

	notional := decimal.NewFromFloat(trade.Quantity).Mul(decimal.NewFromFloat(trade.EntryPrice))
	qty := decimal.NewFromFloat(trade.Quantity)
	if trade.Side == models.SideBuy {
		err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.QuoteAsset, notional.Neg())
		if err == nil {
			err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.BaseAsset, qty)
		}
	} else {
		err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.BaseAsset, qty.Neg())
		if err == nil {
			err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.QuoteAsset, notional)
		}
	}
	if err != nil {
		return fmt.Errorf("applying entry wallet legs: %w", err)
	}

	return tx.Commit()
}

// CloseTrade transitions a trade from open to closed, guarded by a
// WHERE-still-open predicate, and applies the unwind wallet legs in
// the same transaction. Returns false when the trade was already
// closed by the other loop.
func (s *SQLiteStore) CloseTrade(ctx context.Context, tradeID string, fill ExitFill) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning close-trade tx: %w", err)
	}
	defer tx.Rollback()

	trade, err := scanTrade(tx.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, tradeID))
	if err == sql.ErrNoRows {
		return false, errors.ErrTradeNotFound
	}
	if err != nil {
		return false, fmt.Errorf("fetching trade %s: %w", tradeID, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, exit_price = ?, exit_time = ?, pnl = ?, pnl_percent = ?
		WHERE id = ? AND status = ?`,
		string(models.TradeClosed), fill.Price, fill.Time, fill.PnL, fill.PnLPercent,
		tradeID, string(models.TradeOpen),
	)
	if err != nil {
		return false, fmt.Errorf("closing trade %s: %w", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The other loop won the race; nothing to do.
		return false, nil
	}

	notional := decimal.NewFromFloat(trade.Quantity).Mul(decimal.NewFromFloat(fill.Price))
	qty := decimal.NewFromFloat(trade.Quantity)
	if trade.Side == models.SideBuy {
		err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.BaseAsset, qty.Neg())
		if err == nil {
			err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.QuoteAsset, notional)
		}
	} else {
		err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.QuoteAsset, notional.Neg())
		if err == nil {
			err = s.adjustWallet(ctx, tx, trade.OwnerID, trade.BaseAsset, qty)
		}
	}
	if err != nil {
		return false, fmt.Errorf("applying exit wallet legs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing close of trade %s: %w", tradeID, err)
	}
	return true, nil
}

// UpdateTradeLevels edits the stop-loss/take-profit of a still-open
// trade. Closed trades are immutable.
func (s *SQLiteStore) UpdateTradeLevels(ctx context.Context, tradeID string, stopLoss, takeProfit float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trades SET stop_loss = ?, take_profit = ? WHERE id = ? AND status = ?`,
		stopLoss, takeProfit, tradeID, string(models.TradeOpen))
	if err != nil {
		return fmt.Errorf("updating trade %s levels: %w", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrTradeAlreadyClosed
	}
	return nil
}

const tradeColumns = `id, bot_id, owner_id, symbol, base_asset, quote_asset,
	side, quantity, entry_price, entry_time, stop_loss, take_profit,
	status, exit_price, exit_time, pnl, pnl_percent, created_at`

// GetTrades queries trades with optional filters, ordered by entry
// time ascending.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE 1=1`
	var args []interface{}

	if filter.BotID != "" {
		query += " AND bot_id = ?"
		args = append(args, filter.BotID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.OnlyWithLevels {
		query += " AND (stop_loss > 0 OR take_profit > 0)"
	}
	query += " ORDER BY entry_time ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

// UpsertWallet creates or replaces a wallet row.
func (s *SQLiteStore) UpsertWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.NewString()
	}
	wallet.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, asset, balance, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, asset) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		wallet.ID, wallet.OwnerID, strings.ToUpper(wallet.Asset), wallet.Balance, wallet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting wallet %s/%s: %w", wallet.OwnerID, wallet.Asset, err)
	}
	return nil
}

// WalletBalance reads the current balance for an owner/asset pair.
func (s *SQLiteStore) WalletBalance(ctx context.Context, ownerID, asset string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE owner_id = ? AND asset = ?`,
		ownerID, strings.ToUpper(asset)).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, errors.ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading wallet %s/%s: %w", ownerID, asset, err)
	}
	return balance, nil
}

// adjustWallet applies a delta to a wallet inside a transaction,
// creating the wallet when absent. Decimal arithmetic keeps repeated
// small legs from drifting.
func (s *SQLiteStore) adjustWallet(ctx context.Context, tx *sql.Tx, ownerID, asset string, delta decimal.Decimal) error {
	asset = strings.ToUpper(asset)
	var balance float64
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE owner_id = ? AND asset = ?`,
		ownerID, asset).Scan(&balance)
	switch {
	case err == sql.ErrNoRows:
		next, _ := delta.Round(8).Float64()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wallets (id, owner_id, asset, balance, updated_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), ownerID, asset, next, time.Now())
		return err
	case err != nil:
		return err
	}

	next, _ := decimal.NewFromFloat(balance).Add(delta).Round(8).Float64()
	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = ?, updated_at = ? WHERE owner_id = ? AND asset = ?`,
		next, time.Now(), ownerID, asset)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var bot models.Bot
	var primary, stats string
	var secondary, confirmation, schedule sql.NullString
	var sizingMode, slMode, tpMode, entryMode, exitMode string

	err := row.Scan(
		&bot.ID, &bot.OwnerID, &bot.Name, &bot.Symbol, &bot.BaseAsset, &bot.QuoteAsset, &bot.Timeframe,
		&primary, &secondary, &confirmation,
		&bot.EntryCondition, &bot.ExitCondition, &bot.EntryValue, &bot.ExitValue,
		&sizingMode, &bot.SizingValue, &bot.MaxPosition, &bot.MaxOpenPositions,
		&bot.StopLossEnabled, &slMode, &bot.StopLossValue,
		&bot.TakeProfitEnabled, &tpMode, &bot.TakeProfitValue,
		&schedule, &entryMode, &exitMode, &bot.IsActive, &stats,
		&bot.CreatedAt, &bot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bot.SizingMode = models.SizingMode(sizingMode)
	bot.StopLossMode = models.LevelMode(slMode)
	bot.TakeProfitMode = models.LevelMode(tpMode)
	bot.EntryPriceMode = models.ExecPriceMode(entryMode)
	bot.ExitPriceMode = models.ExecPriceMode(exitMode)

	if err := json.Unmarshal([]byte(primary), &bot.Primary); err != nil {
		return nil, fmt.Errorf("unmarshaling primary indicators: %w", err)
	}
	if secondary.Valid && secondary.String != "" {
		bot.Secondary = &models.IndicatorSpec{}
		if err := json.Unmarshal([]byte(secondary.String), bot.Secondary); err != nil {
			return nil, fmt.Errorf("unmarshaling secondary indicator: %w", err)
		}
	}
	if confirmation.Valid && confirmation.String != "" {
		bot.Confirmation = &models.IndicatorSpec{}
		if err := json.Unmarshal([]byte(confirmation.String), bot.Confirmation); err != nil {
			return nil, fmt.Errorf("unmarshaling confirmation indicator: %w", err)
		}
	}
	if schedule.Valid && schedule.String != "" {
		bot.Schedule = &models.Schedule{}
		if err := json.Unmarshal([]byte(schedule.String), bot.Schedule); err != nil {
			return nil, fmt.Errorf("unmarshaling schedule: %w", err)
		}
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &bot.Stats); err != nil {
			return nil, fmt.Errorf("unmarshaling stats: %w", err)
		}
	}
	return &bot, nil
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var trade models.Trade
	var side, status string
	var exitTime sql.NullTime

	err := row.Scan(
		&trade.ID, &trade.BotID, &trade.OwnerID, &trade.Symbol, &trade.BaseAsset, &trade.QuoteAsset,
		&side, &trade.Quantity, &trade.EntryPrice, &trade.EntryTime,
		&trade.StopLoss, &trade.TakeProfit,
		&status, &trade.ExitPrice, &exitTime, &trade.PnL, &trade.PnLPercent,
		&trade.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	trade.Side = models.Side(side)
	trade.Status = models.TradeStatus(status)
	if exitTime.Valid {
		trade.ExitTime = exitTime.Time
	}
	return &trade, nil
}

func marshalOptional(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case *models.IndicatorSpec:
		if val == nil {
			return sql.NullString{}, nil
		}
	case *models.Schedule:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(blob), Valid: true}, nil
}
