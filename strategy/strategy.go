package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/executor"
	"github.com/evdnx/tradebot/indicator"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/metrics"
	"github.com/evdnx/tradebot/position"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/types"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNotInitialized  = errors.New("strategy not initialized")
	ErrMissingDeps     = errors.New("missing strategy dependency")
)

// Strategy is the contract every variant implements. Backtest, paper and
// live modes drive the same implementation.
type Strategy interface {
	Name() string
	// Initialize runs once before the first Run.
	Initialize(ctx context.Context) error
	// Run consumes the latest candle and may enter or exit a position.
	// Recoverable problems are logged, not returned.
	Run(ctx context.Context, c types.Candle) error
	IsInCooldown(now time.Time) bool
	SetLastSignalTime(t time.Time)
}

// Deps are the collaborators a strategy is bound to.
type Deps struct {
	Symbol     string
	Exec       executor.Executor
	Monitor    *position.Monitor
	Gate       *risk.Gate
	Indicators indicator.Source
	Log        logger.Logger
	Metrics    *metrics.Recorder
	// History is replayed into the strategy's rolling state during
	// Initialize without trading.
	History []types.Candle
}

// Constructor builds a strategy variant.
type Constructor func(cfg config.StrategyConfig, deps Deps) (Strategy, error)

var registry = map[string]Constructor{
	RSIEMAName:           NewRSIEMA,
	HMATrendName:         NewHMATrend,
	MeanReversionName:    NewMeanReversion,
	BreakoutMomentumName: NewBreakoutMomentum,
}

// New builds the strategy registered under name.
func New(name string, cfg config.StrategyConfig, deps Deps) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return ctor(cfg, deps)
}

// Known reports whether name is registered.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
