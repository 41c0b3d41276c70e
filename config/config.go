package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// RiskConfig holds the run-scoped risk thresholds. It is read once at run
// start and never mutated while a run is in progress.
type RiskConfig struct {
	MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`     // e.g. 0.02 = 2 % of balance
	MaxTotalRisk         float64 `yaml:"max_total_risk"`         // exposure / balance ceiling
	StopLossPercentage   float64 `yaml:"stop_loss_percentage"`   // e.g. 0.05 = 5 %
	TakeProfitPercentage float64 `yaml:"take_profit_percentage"` // e.g. 0.15 = 15 %
	TrailingPct          float64 `yaml:"trailing_pct"`           // optional, 0 = disabled
	MinimumBalance       float64 `yaml:"minimum_balance"`
	MaxConcurrentTrades  int     `yaml:"max_concurrent_trades"`
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error.
func (c *RiskConfig) Validate() error {
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("MaxRiskPerTrade (%f) must be in (0,1)", c.MaxRiskPerTrade)
	}
	if c.MaxTotalRisk <= 0 || c.MaxTotalRisk >= 1 {
		return fmt.Errorf("MaxTotalRisk (%f) must be in (0,1)", c.MaxTotalRisk)
	}
	if c.StopLossPercentage <= 0 || c.StopLossPercentage >= 1 {
		return fmt.Errorf("StopLossPercentage (%f) must be in (0,1)", c.StopLossPercentage)
	}
	if c.TakeProfitPercentage <= 0 || c.TakeProfitPercentage > 5 {
		return fmt.Errorf("TakeProfitPercentage (%f) out of realistic range", c.TakeProfitPercentage)
	}
	if c.TrailingPct < 0 || c.TrailingPct >= 1 {
		return fmt.Errorf("TrailingPct (%f) must be in [0,1)", c.TrailingPct)
	}
	if c.MinimumBalance < 0 {
		return errors.New("MinimumBalance cannot be negative")
	}
	if c.MaxConcurrentTrades <= 0 {
		return errors.New("MaxConcurrentTrades must be positive")
	}
	return nil
}

// StrategyConfig holds all tunable parameters for a strategy.
type StrategyConfig struct {
	Name string `yaml:"name"`

	// Indicator periods
	RSIPeriod     int `yaml:"rsi_period"`      // default 14
	FastEMAPeriod int `yaml:"fast_ema_period"` // default 9
	SlowEMAPeriod int `yaml:"slow_ema_period"` // default 21

	// Indicator thresholds
	RSIOverbought float64 `yaml:"rsi_overbought"` // default 70
	RSIOversold   float64 `yaml:"rsi_oversold"`   // default 30

	// WarmupBars is how many bars the goti based strategies wait before
	// trusting crossovers.
	WarmupBars int `yaml:"warmup_bars"`

	// Cooldown is the minimum time between two entry signals.
	Cooldown time.Duration `yaml:"cooldown"`
}

// LongestPeriod is the longest indicator period in use.
func (c *StrategyConfig) LongestPeriod() int {
	n := c.RSIPeriod
	if c.FastEMAPeriod > n {
		n = c.FastEMAPeriod
	}
	if c.SlowEMAPeriod > n {
		n = c.SlowEMAPeriod
	}
	return n
}

// Validate returns the first problem found in the strategy settings.
func (c *StrategyConfig) Validate() error {
	if c.RSIPeriod < 2 {
		return errors.New("RSIPeriod must be at least 2")
	}
	if c.FastEMAPeriod <= 0 || c.SlowEMAPeriod <= 0 {
		return errors.New("EMA periods must be positive")
	}
	if c.FastEMAPeriod >= c.SlowEMAPeriod {
		return fmt.Errorf("FastEMAPeriod (%d) must be below SlowEMAPeriod (%d)", c.FastEMAPeriod, c.SlowEMAPeriod)
	}
	if c.RSIOverbought <= c.RSIOversold {
		return errors.New("RSIOverbought must be greater than RSIOversold")
	}
	if c.WarmupBars < 0 {
		return errors.New("WarmupBars cannot be negative")
	}
	if c.Cooldown < 0 {
		return errors.New("Cooldown cannot be negative")
	}
	return nil
}

// BacktestConfig describes one replay run.
type BacktestConfig struct {
	Symbols        []string  `yaml:"symbols"`
	Timeframe      string    `yaml:"timeframe"`
	Start          time.Time `yaml:"start"`
	End            time.Time `yaml:"end"`
	InitialCapital float64   `yaml:"initial_capital"`
	QuoteAsset     string    `yaml:"quote_asset"`
	FeeRate        float64   `yaml:"fee_rate"`       // 0.001 = 0.1 % of notional
	RiskFreeRate   float64   `yaml:"risk_free_rate"` // per equity step
	DataDir        string    `yaml:"data_dir"`
	ReportDB       string    `yaml:"report_db"`
}

func (c *BacktestConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("InitialCapital (%f) must be positive", c.InitialCapital)
	}
	if c.QuoteAsset == "" {
		return errors.New("QuoteAsset is required")
	}
	if c.FeeRate < 0 || c.FeeRate >= 0.1 {
		return fmt.Errorf("FeeRate (%f) must be in [0,0.1)", c.FeeRate)
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start) {
		return errors.New("End must not be before Start")
	}
	return nil
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration.
type Config struct {
	Backtest BacktestConfig `yaml:"backtest"`
	Risk     RiskConfig     `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Logging  Logging        `yaml:"logging"`
}

// Validate reports every invalid section at once.
func (c *Config) Validate() error {
	var err error
	if e := c.Backtest.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("backtest: %w", e))
	}
	if e := c.Risk.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("risk: %w", e))
	}
	if e := c.Strategy.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("strategy: %w", e))
	}
	return err
}

// DefaultRisk returns the risk settings used when none are configured.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		MaxRiskPerTrade:      0.02,
		MaxTotalRisk:         0.1,
		StopLossPercentage:   0.05,
		TakeProfitPercentage: 0.15,
		MinimumBalance:       100,
		MaxConcurrentTrades:  3,
	}
}

// DefaultStrategy returns the reference RSI/EMA settings.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Name:          "rsi_ema",
		RSIPeriod:     14,
		FastEMAPeriod: 9,
		SlowEMAPeriod: 21,
		RSIOverbought: 70,
		RSIOversold:   30,
		WarmupBars:    10,
		Cooldown:      time.Hour,
	}
}

// Default returns a complete, valid configuration.
func Default() Config {
	return Config{
		Backtest: BacktestConfig{
			Symbols:        []string{"BTC/USD"},
			Timeframe:      "1h",
			InitialCapital: 10_000,
			QuoteAsset:     "USD",
			FeeRate:        0.001,
			DataDir:        "data",
		},
		Risk:     DefaultRisk(),
		Strategy: DefaultStrategy(),
		Logging:  Logging{Level: "info"},
	}
}
