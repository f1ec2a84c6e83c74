// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "botrader", "logs", "botrader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// File writer with rotation
	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithBot adds a bot id to the logger context.
func WithBot(logger zerolog.Logger, botID string) zerolog.Logger {
	return logger.With().Str("bot_id", botID).Logger()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// LogTradeOpened logs a new simulated position.
func LogTradeOpened(logger zerolog.Logger, botID, tradeID, symbol, side string, qty, price float64) {
	logger.Info().
		Str("event", "trade_opened").
		Str("bot_id", botID).
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", qty).
		Float64("price", price).
		Msg("Trade opened")
}

// LogTradeClosed logs a position close.
func LogTradeClosed(logger zerolog.Logger, botID, tradeID, symbol, side string, exitPrice, pnl float64) {
	logger.Info().
		Str("event", "trade_closed").
		Str("bot_id", botID).
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("side", side).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Msg("Trade closed")
}

// LogBotDeactivated logs a balance-guard deactivation.
func LogBotDeactivated(logger zerolog.Logger, botID, symbol, reason string) {
	logger.Warn().
		Str("event", "bot_deactivated").
		Str("bot_id", botID).
		Str("symbol", symbol).
		Str("reason", reason).
		Msg("Bot deactivated")
}
