// Package config provides configuration management for the trading
// engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
}

// EngineConfig holds signal/position engine settings.
type EngineConfig struct {
	CandleLimit    int     `mapstructure:"candle_limit"`
	TouchTimeframe string  `mapstructure:"touch_timeframe"`
	MinBalance     float64 `mapstructure:"min_balance"`
	MinQuantity    float64 `mapstructure:"min_quantity"`
	InitialEquity  float64 `mapstructure:"initial_equity"`
	Workers        int     `mapstructure:"workers"`
}

// SchedulerConfig holds the timer cadences.
type SchedulerConfig struct {
	EvalInterval  time.Duration `mapstructure:"eval_interval"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	TouchInterval time.Duration `mapstructure:"touch_interval"`
}

// MarketDataConfig holds market data source settings.
type MarketDataConfig struct {
	Provider  string `mapstructure:"provider"` // "binance", "playback"
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botrader"
	}
	return filepath.Join(home, ".config", "botrader")
}

// Load reads configuration from the config file and environment,
// falling back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOTRADER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.candle_limit", 100)
	v.SetDefault("engine.touch_timeframe", "1m")
	v.SetDefault("engine.min_balance", 10.0)
	v.SetDefault("engine.min_quantity", 0.0001)
	v.SetDefault("engine.initial_equity", 10000.0)
	v.SetDefault("engine.workers", 4)

	v.SetDefault("scheduler.eval_interval", time.Minute)
	v.SetDefault("scheduler.stats_interval", 5*time.Minute)
	v.SetDefault("scheduler.touch_interval", 5*time.Second)

	v.SetDefault("market_data.provider", "binance")
	v.SetDefault("market_data.testnet", false)

	v.SetDefault("storage.path", filepath.Join(DefaultConfigDir(), "botrader.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.path", filepath.Join(DefaultConfigDir(), "logs", "botrader.log"))
}
