// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPositionCapReached = errors.New("open position cap reached")
	ErrTradeAlreadyClosed = errors.New("trade already closed")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrBotNotFound        = errors.New("bot not found")
	ErrBotInactive        = errors.New("bot is inactive")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// TradeError represents an error acting on a specific trade.
type TradeError struct {
	TradeID string
	BotID   string
	Symbol  string
	Action  string
	Err     error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("trade error [%s] %s %s bot=%s: %v", e.TradeID, e.Action, e.Symbol, e.BotID, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(tradeID, botID, symbol, action string, err error) *TradeError {
	return &TradeError{
		TradeID: tradeID,
		BotID:   botID,
		Symbol:  symbol,
		Action:  action,
		Err:     err,
	}
}

// DataError represents a market-data failure for a symbol.
type DataError struct {
	Symbol    string
	Timeframe string
	Message   string
	Err       error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s %s]: %s: %v", e.Symbol, e.Timeframe, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s %s]: %s", e.Symbol, e.Timeframe, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(symbol, timeframe, message string, err error) *DataError {
	return &DataError{
		Symbol:    symbol,
		Timeframe: timeframe,
		Message:   message,
		Err:       err,
	}
}

// RiskError represents a risk limit preventing an action.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
