// Package cli provides the command-line interface for the trading
// engine.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"botrader/internal/config"
	"botrader/internal/engine"
	"botrader/internal/logging"
	"botrader/internal/marketdata"
	"botrader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.Store
	Data   marketdata.Provider
	Engine *engine.Engine
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "botrader",
		Short: "botrader - automated trading-signal and position engine",
		Long: `botrader evaluates configured trading bots against live market
candles, opens and closes simulated positions under risk limits, and
keeps per-bot performance statistics consistent.

Use 'botrader run' to start the engine timers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return app.initDependencies()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Store != nil {
				app.Store.Close()
			}
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "config file path")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))

	return rootCmd
}

// initDependencies wires the store, market data provider and engine.
func (app *App) initDependencies() error {
	dataStore, err := store.NewSQLiteStore(app.Config.Storage.Path)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	app.Store = dataStore
	app.Logger.Debug().Str("path", app.Config.Storage.Path).Msg("SQLite store initialized")

	switch app.Config.MarketData.Provider {
	case "playback":
		app.Data = marketdata.NewPlaybackProvider()
	default:
		app.Data = marketdata.NewBinanceProvider(marketdata.BinanceConfig{
			APIKey:    app.Config.MarketData.APIKey,
			APISecret: app.Config.MarketData.APISecret,
			Testnet:   app.Config.MarketData.Testnet,
		})
	}
	app.Logger.Debug().Str("provider", app.Config.MarketData.Provider).Msg("market data provider initialized")

	app.Engine = engine.New(app.Store, app.Data, engine.Config{
		CandleLimit:    app.Config.Engine.CandleLimit,
		TouchTimeframe: app.Config.Engine.TouchTimeframe,
		MinBalance:     app.Config.Engine.MinBalance,
		MinQuantity:    app.Config.Engine.MinQuantity,
		InitialEquity:  app.Config.Engine.InitialEquity,
		Workers:        app.Config.Engine.Workers,
	}, engine.RealClock{}, app.Logger)

	return nil
}
