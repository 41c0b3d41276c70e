// Package backtest replays historical candles through a strategy against a
// simulated exchange and reports the outcome.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/executor"
	"github.com/evdnx/tradebot/indicator"
	"github.com/evdnx/tradebot/ledger"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/metrics"
	"github.com/evdnx/tradebot/performance"
	"github.com/evdnx/tradebot/position"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/store"
	"github.com/evdnx/tradebot/strategy"
	"github.com/evdnx/tradebot/types"
)

// State is the lifecycle stage of an Engine.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoaded        State = "loaded"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

var (
	ErrMissingDateRange = errors.New("backtest date range is required")
	ErrInvalidDateRange = errors.New("backtest end is before start")
	ErrNoData           = errors.New("no historical data for range")
	ErrUnknownStrategy  = strategy.ErrUnknownStrategy
	ErrInvalidState     = errors.New("invalid engine state")
	ErrQuoteMismatch    = errors.New("symbol quote asset differs from the account currency")
)

// Request selects what one run replays.
type Request struct {
	Symbol    string
	Timeframe string
	Strategy  config.StrategyConfig
	Start     time.Time
	End       time.Time
	// Warmup loads this much history before Start into the strategy
	// without trading it.
	Warmup time.Duration
}

// Engine runs a single backtest. Each run gets its own ledger, executor
// and position monitor; an Engine is not reusable and not safe for
// concurrent use.
type Engine struct {
	source     store.CandleSource
	cfg        config.BacktestConfig
	risk       config.RiskConfig
	log        logger.Logger
	metrics    *metrics.Recorder
	indicators indicator.Source
	// wrapExec decorates the paper executor seen by the strategy and the
	// exit path.
	wrapExec func(executor.Executor) executor.Executor

	state   State
	err     error
	req     Request
	candles []types.Candle

	exec    *executor.PaperExecutor
	trader  executor.Executor
	monitor *position.Monitor
	strat   strategy.Strategy
	equity  []types.EquityPoint
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

// WithIndicators replaces the TA-Lib indicator source.
func WithIndicators(src indicator.Source) Option { return func(e *Engine) { e.indicators = src } }

func NewEngine(source store.CandleSource, cfg config.BacktestConfig, rc config.RiskConfig, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		cfg:        cfg,
		risk:       rc,
		log:        logger.Nop(),
		indicators: indicator.TALib{},
		state:      StateUninitialized,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) State() State { return e.state }

// Err is the error that moved the engine to StateFailed.
func (e *Engine) Err() error { return e.err }

// Initialize loads the candles for [Start, End] and wires a fresh ledger,
// executor, monitor and strategy. Any error leaves the engine failed.
func (e *Engine) Initialize(ctx context.Context, req Request) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: initialize in state %s", ErrInvalidState, e.state)
	}
	e.req = req

	switch {
	case req.Start.IsZero() || req.End.IsZero():
		return e.fail(ErrMissingDateRange)
	case req.End.Before(req.Start):
		return e.fail(fmt.Errorf("%w: %s < %s", ErrInvalidDateRange, req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339)))
	case req.Symbol == "":
		return e.fail(errors.New("symbol is required"))
	case !strategy.Known(req.Strategy.Name):
		return e.fail(fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy.Name))
	}
	if err := e.cfg.Validate(); err != nil {
		return e.fail(fmt.Errorf("backtest config: %w", err))
	}
	if err := e.risk.Validate(); err != nil {
		return e.fail(fmt.Errorf("risk config: %w", err))
	}
	if _, quote := types.SplitSymbol(req.Symbol, e.cfg.QuoteAsset); !strings.EqualFold(quote, e.cfg.QuoteAsset) {
		return e.fail(fmt.Errorf("%w: %s is quoted in %s, account holds %s", ErrQuoteMismatch, req.Symbol, quote, e.cfg.QuoteAsset))
	}

	candles, err := e.source.ReadCandles(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return e.fail(fmt.Errorf("loading candles: %w", err))
	}
	if len(candles) == 0 {
		return e.fail(fmt.Errorf("%w: %s %s %s..%s", ErrNoData, req.Symbol, req.Timeframe,
			req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339)))
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })

	var history []types.Candle
	if req.Warmup > 0 {
		history, err = e.source.ReadCandles(ctx, req.Symbol, req.Timeframe, req.Start.Add(-req.Warmup), req.Start.Add(-time.Millisecond))
		if err != nil {
			return e.fail(fmt.Errorf("loading warm-up candles: %w", err))
		}
		sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp < history[j].Timestamp })
	}

	gate := risk.NewGate(e.risk)
	book := ledger.New(map[string]float64{e.cfg.QuoteAsset: e.cfg.InitialCapital})
	e.exec = executor.NewPaperExecutor(book, gate, e.cfg.QuoteAsset, e.log,
		executor.WithFeeRate(e.cfg.FeeRate),
		executor.WithMetrics(e.metrics),
	)
	e.trader = e.exec
	if e.wrapExec != nil {
		e.trader = e.wrapExec(e.exec)
	}
	e.monitor = position.NewMonitor(gate)
	e.strat, err = strategy.New(req.Strategy.Name, req.Strategy, strategy.Deps{
		Symbol:     req.Symbol,
		Exec:       e.trader,
		Monitor:    e.monitor,
		Gate:       gate,
		Indicators: e.indicators,
		Log:        e.log,
		Metrics:    e.metrics,
		History:    history,
	})
	if err != nil {
		return e.fail(fmt.Errorf("building strategy: %w", err))
	}
	if err := e.strat.Initialize(ctx); err != nil {
		return e.fail(fmt.Errorf("initializing strategy: %w", err))
	}

	e.candles = candles
	e.state = StateLoaded
	e.log.Info("backtest_loaded",
		logger.String("symbol", req.Symbol),
		logger.String("timeframe", req.Timeframe),
		logger.String("strategy", req.Strategy.Name),
		logger.Int("candles", len(candles)),
		logger.Time("start", req.Start),
		logger.Time("end", req.End),
		logger.Int("warmup", len(history)),
	)
	return nil
}

// Run replays every loaded candle in order. Cancellation is honoured
// between candles only.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.state != StateLoaded {
		return nil, fmt.Errorf("%w: run in state %s", ErrInvalidState, e.state)
	}
	e.state = StateRunning
	runID := uuid.NewString()
	e.equity = make([]types.EquityPoint, 0, len(e.candles))

	for _, c := range e.candles {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(err)
		}
		if err := e.step(ctx, c); err != nil {
			return nil, e.fail(err)
		}
		balance := e.exec.Equity()
		e.equity = append(e.equity, types.EquityPoint{Timestamp: c.Timestamp, Balance: balance})
		e.metrics.SetEquity(e.req.Symbol, balance)
	}

	trades := e.exec.Trades()
	res := &Result{
		RunID:     runID,
		Symbol:    e.req.Symbol,
		Timeframe: e.req.Timeframe,
		Strategy:  e.strat.Name(),
		Start:     e.req.Start,
		End:       e.req.End,
		Trades:    trades,
		Equity:    e.equity,
		Metrics: performance.Analyze(performance.Input{
			InitialCapital: e.cfg.InitialCapital,
			Trades:         trades,
			Equity:         e.equity,
			RiskFreeRate:   e.cfg.RiskFreeRate,
		}),
		Balances:      e.exec.Balances(),
		OpenPositions: e.monitor.Positions(),
		MarkedValue:   e.exec.MarkToMarket(),
	}
	e.state = StateCompleted
	e.log.Info("backtest_completed",
		logger.String("run_id", runID),
		logger.String("symbol", res.Symbol),
		logger.Int("trades", res.Metrics.TotalTrades),
		logger.Float64("final_capital", res.Metrics.FinalCapital),
		logger.Float64("total_return", res.Metrics.TotalReturn),
		logger.Float64("marked_value", res.MarkedValue),
		logger.Bool("flat", len(res.OpenPositions) == 0),
	)
	return res, nil
}

// step processes one candle: exit check at the close, then the strategy.
func (e *Engine) step(ctx context.Context, c types.Candle) error {
	if err := c.Validate(); err != nil {
		e.log.Warn("invalid_candle",
			logger.String("symbol", e.req.Symbol),
			logger.Int64("ts", c.Timestamp),
			logger.Err(err),
		)
		return nil
	}
	e.exec.SetMarketPrice(e.req.Symbol, c.Close, c.Timestamp)

	if exit, ok := e.monitor.CheckExit(e.req.Symbol, c.Close); ok {
		e.closePosition(ctx, exit, c)
	}
	if err := e.strat.Run(ctx, c); err != nil {
		return fmt.Errorf("strategy %s at %d: %w", e.strat.Name(), c.Timestamp, err)
	}
	e.metrics.CandleProcessed(e.req.Symbol)
	return nil
}

// closePosition executes the exit the monitor asked for. The position is
// only cleared once the exit trade has filled.
func (e *Engine) closePosition(ctx context.Context, exit position.Exit, c types.Candle) {
	req := types.TradeRequest{
		Symbol: exit.Symbol,
		Side:   exit.Position.Side.ExitSide(),
		Amount: exit.Position.Amount,
		Type:   types.Market,
		Metadata: types.TradeMetadata{
			Strategy: e.strat.Name(),
			Intent:   exit.Intent,
		},
	}
	trade, err := e.trader.ExecuteTrade(ctx, req)
	if err != nil {
		e.log.Warn("exit_failed",
			logger.String("symbol", exit.Symbol),
			logger.String("intent", string(exit.Intent)),
			logger.Int64("ts", c.Timestamp),
			logger.Err(err),
		)
		return
	}
	e.monitor.Close(exit.Symbol)
	e.log.Info("position_exit",
		logger.String("symbol", exit.Symbol),
		logger.String("intent", string(exit.Intent)),
		logger.String("trade_id", trade.ID),
		logger.Float64("level", exit.Level),
		logger.Float64("price", trade.Price),
		logger.Int64("ts", c.Timestamp),
	)
	e.metrics.SetPositionsOpen(e.strat.Name(), e.req.Symbol, e.monitor.Len())
}

func (e *Engine) fail(err error) error {
	e.state = StateFailed
	e.err = err
	e.log.Error("backtest_failed",
		logger.String("symbol", e.req.Symbol),
		logger.String("strategy", e.req.Strategy.Name),
		logger.Err(err),
	)
	return err
}
