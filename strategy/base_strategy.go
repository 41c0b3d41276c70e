package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/executor"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/metrics"
	"github.com/evdnx/tradebot/position"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/types"
)

// BaseStrategy bundles the common dependencies and helpers.
type BaseStrategy struct {
	Exec    executor.Executor
	Monitor *position.Monitor
	Gate    *risk.Gate
	Log     logger.Logger
	Metrics *metrics.Recorder
	Cfg     config.StrategyConfig
	Symbol  string

	name        string
	history     []types.Candle
	prices      *priceBuffer
	seen        int
	lastSignal  time.Time
	initialized bool
}

// NewBaseStrategy validates the config and dependencies. All concrete
// strategies should call this from their own constructors.
func NewBaseStrategy(name string, cfg config.StrategyConfig, deps Deps) (*BaseStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Symbol == "":
		return nil, fmt.Errorf("%w: symbol", ErrMissingDeps)
	case deps.Exec == nil:
		return nil, fmt.Errorf("%w: executor", ErrMissingDeps)
	case deps.Monitor == nil:
		return nil, fmt.Errorf("%w: position monitor", ErrMissingDeps)
	case deps.Gate == nil:
		return nil, fmt.Errorf("%w: risk gate", ErrMissingDeps)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &BaseStrategy{
		Exec:    deps.Exec,
		Monitor: deps.Monitor,
		Gate:    deps.Gate,
		Log:     log,
		Metrics: deps.Metrics,
		Cfg:     cfg,
		Symbol:  deps.Symbol,
		name:    name,
		history: deps.History,
		prices:  newPriceBuffer(2 * cfg.LongestPeriod()),
	}, nil
}

func (b *BaseStrategy) Name() string { return b.name }

// IsInCooldown reports whether a new entry at now would come too soon after
// the last signal.
func (b *BaseStrategy) IsInCooldown(now time.Time) bool {
	if b.lastSignal.IsZero() {
		return false
	}
	return !b.Gate.ValidateCooldown(now, b.lastSignal, b.Cfg.Cooldown)
}

func (b *BaseStrategy) SetLastSignalTime(t time.Time) { b.lastSignal = t }

// preload replays the warm-up history through fn. Invalid candles are
// skipped the same way Run skips them.
func (b *BaseStrategy) preload(ctx context.Context, fn func(types.Candle)) error {
	for _, c := range b.history {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.accept(c) {
			continue
		}
		fn(c)
	}
	b.Log.Info("strategy_initialized",
		logger.String("strategy", b.name),
		logger.String("symbol", b.Symbol),
		logger.Int("preloaded", b.prices.Len()),
		logger.Int("window", b.prices.Cap()),
	)
	b.history = nil
	b.initialized = true
	return nil
}

// accept validates c and logs the reason when it has to be skipped.
func (b *BaseStrategy) accept(c types.Candle) bool {
	if err := c.Validate(); err != nil {
		b.Log.Warn("invalid_candle",
			logger.String("strategy", b.name),
			logger.String("symbol", b.Symbol),
			logger.Int64("ts", c.Timestamp),
			logger.Err(err),
		)
		return false
	}
	return true
}

func (b *BaseStrategy) recordPrice(close float64) {
	b.prices.Add(close)
	b.seen++
}

func (b *BaseStrategy) hasHistory(n int) bool {
	if n <= 0 {
		return true
	}
	return b.seen >= n
}

func (b *BaseStrategy) bullishFallback() bool {
	if b.prices.Len() < 3 {
		return false
	}
	return b.prices.Trend() > 0 && b.prices.Slope() > 0
}

func (b *BaseStrategy) bearishFallback() bool {
	if b.prices.Len() < 3 {
		return false
	}
	return b.prices.Trend() < 0 && b.prices.Slope() < 0
}

// canEnter applies the entry gates in order: one position per symbol,
// cooldown, concurrency limit and portfolio exposure.
func (b *BaseStrategy) canEnter(c types.Candle) bool {
	reason := ""
	equity := b.Exec.Equity()
	switch {
	case b.Monitor.Has(b.Symbol):
		reason = "position_open"
	case b.IsInCooldown(c.Time()):
		reason = "cooldown"
	case b.Monitor.Len() >= b.Gate.MaxConcurrentTrades(equity):
		reason = "max_concurrent_trades"
	case !b.Gate.CheckTotalRisk(b.Monitor.Positions(), equity):
		reason = "total_risk"
	}
	if reason == "" {
		return true
	}
	b.Log.Info("entry_suppressed",
		logger.String("strategy", b.name),
		logger.String("symbol", b.Symbol),
		logger.String("reason", reason),
		logger.Int64("ts", c.Timestamp),
	)
	return false
}

// enter submits an entry at the candle close and registers the position.
// A zero amount lets the executor size the trade.
func (b *BaseStrategy) enter(ctx context.Context, side types.PositionSide, c types.Candle, amount float64) bool {
	req := types.TradeRequest{
		Symbol: b.Symbol,
		Side:   side.EntrySide(),
		Amount: amount,
		Type:   types.Market,
		Price:  c.Close,
		Metadata: types.TradeMetadata{
			Strategy: b.name,
			Intent:   types.IntentEntry,
		},
	}
	trade, err := b.Exec.ExecuteTrade(ctx, req)
	if err != nil {
		b.Log.Warn("entry_failed",
			logger.String("strategy", b.name),
			logger.String("symbol", b.Symbol),
			logger.String("side", string(side)),
			logger.Err(err),
		)
		return false
	}
	pos, err := b.Monitor.Open(b.Symbol, side, trade.Price, trade.Amount, c.Timestamp)
	if err != nil {
		b.Log.Error("position_open_failed",
			logger.String("strategy", b.name),
			logger.String("trade_id", trade.ID),
			logger.Err(err),
		)
		return false
	}
	b.SetLastSignalTime(c.Time())
	b.Log.Info("position_opened",
		logger.String("strategy", b.name),
		logger.String("symbol", b.Symbol),
		logger.String("side", string(side)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("amount", pos.Amount),
		logger.Float64("stop_loss", pos.StopLossPrice),
		logger.Float64("take_profit", pos.TakeProfitPrice),
	)
	b.Metrics.SetPositionsOpen(b.name, b.Symbol, b.Monitor.Len())
	return true
}

// exit flattens the open position at the candle close.
func (b *BaseStrategy) exit(ctx context.Context, c types.Candle, intent types.Intent) bool {
	pos, ok := b.Monitor.Get(b.Symbol)
	if !ok {
		return false
	}
	req := types.TradeRequest{
		Symbol: b.Symbol,
		Side:   pos.Side.ExitSide(),
		Amount: pos.Amount,
		Type:   types.Market,
		Price:  c.Close,
		Metadata: types.TradeMetadata{
			Strategy: b.name,
			Intent:   intent,
		},
	}
	if _, err := b.Exec.ExecuteTrade(ctx, req); err != nil {
		b.Log.Warn("exit_failed",
			logger.String("strategy", b.name),
			logger.String("symbol", b.Symbol),
			logger.String("intent", string(intent)),
			logger.Err(err),
		)
		return false
	}
	b.Monitor.Close(b.Symbol)
	b.Log.Info("position_closed",
		logger.String("strategy", b.name),
		logger.String("symbol", b.Symbol),
		logger.String("intent", string(intent)),
		logger.Float64("price", c.Close),
	)
	b.Metrics.SetPositionsOpen(b.name, b.Symbol, b.Monitor.Len())
	return true
}
