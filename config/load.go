package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at the given path on top of
// Default(), then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TRADEBOT_DATA_DIR"); v != "" {
		cfg.Backtest.DataDir = v
	}
	if v := os.Getenv("TRADEBOT_REPORT_DB"); v != "" {
		cfg.Backtest.ReportDB = v
	}
	if v := os.Getenv("TRADEBOT_SYMBOLS"); v != "" {
		cfg.Backtest.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TRADEBOT_STRATEGY"); v != "" {
		cfg.Strategy.Name = v
	}
	if v := os.Getenv("TRADEBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRADEBOT_INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADEBOT_INITIAL_CAPITAL: %w", err)
		}
		cfg.Backtest.InitialCapital = f
	}
	return nil
}

// FromEnv returns Default() with the environment overrides applied, for
// runs without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
