package strategy

import (
	"context"

	"github.com/evdnx/goti"
	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/types"
)

// suiteStrategy is the shared shape of the goti driven variants: every
// candle feeds the indicator suite, crossovers are OR-ed with the price
// trend fallback and the resulting direction is traded with a
// volatility-adjusted size.
type suiteStrategy struct {
	*BaseStrategy
	suite *goti.IndicatorSuite
	// feed pushes one bar into the suite; replaced in tests.
	feed func(high, low, close, volume float64) error
}

func newSuiteStrategy(name string, cfg config.StrategyConfig, deps Deps,
	suiteFactory func() (*goti.IndicatorSuite, error)) (*suiteStrategy, error) {

	base, err := NewBaseStrategy(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	suite, err := suiteFactory()
	if err != nil {
		return nil, err
	}
	return &suiteStrategy{BaseStrategy: base, suite: suite, feed: suite.Add}, nil
}

// Initialize replays the warm-up history into the suite.
func (s *suiteStrategy) Initialize(ctx context.Context) error {
	return s.preload(ctx, func(c types.Candle) { s.add(c) })
}

// add feeds c to the suite and the price window. A suite error is logged
// and the candle is left out of both.
func (s *suiteStrategy) add(c types.Candle) bool {
	if err := s.feed(c.High, c.Low, c.Close, c.Volume); err != nil {
		s.Log.Warn("indicator_update_failed",
			logger.String("strategy", s.name),
			logger.String("symbol", s.Symbol),
			logger.Int64("ts", c.Timestamp),
			logger.Err(err),
		)
		return false
	}
	s.recordPrice(c.Close)
	return true
}

// update runs the per-candle preamble and reports whether the strategy has
// enough history to evaluate c.
func (s *suiteStrategy) update(c types.Candle) (bool, error) {
	if !s.initialized {
		return false, ErrNotInitialized
	}
	if !s.accept(c) || !s.add(c) {
		return false, nil
	}
	return s.hasHistory(s.Cfg.WarmupBars), nil
}

func (s *suiteStrategy) bullish(cross func() (bool, error)) bool {
	if s.bullishFallback() {
		return true
	}
	ok, err := cross()
	return err == nil && ok
}

func (s *suiteStrategy) bearish(cross func() (bool, error)) bool {
	if s.bearishFallback() {
		return true
	}
	ok, err := cross()
	return err == nil && ok
}

// trade acts on a one-sided signal. An open position is closed on the
// opposite signal; otherwise a position is opened in the signalled
// direction when allow (if set) and the entry gates agree.
func (s *suiteStrategy) trade(ctx context.Context, c types.Candle, bull, bear bool, allow func(types.PositionSide) bool) {
	if bull == bear {
		return
	}
	if pos, open := s.Monitor.Get(s.Symbol); open {
		if (pos.Side == types.Long && bear) || (pos.Side == types.Short && bull) {
			s.exit(ctx, c, types.IntentExit)
		}
		return
	}
	side := types.Long
	if bear {
		side = types.Short
	}
	if allow != nil && !allow(side) {
		return
	}
	if !s.canEnter(c) {
		return
	}
	base := s.Gate.CalculateLotSize(s.Symbol, c.Close, s.Exec.Equity(), 0)
	amount := s.Gate.AdjustPositionForVolatility(s.prices.Values(), base)
	if amount <= 0 {
		s.Log.Info("entry_suppressed",
			logger.String("strategy", s.name),
			logger.String("symbol", s.Symbol),
			logger.String("reason", "zero_size"),
			logger.Int64("ts", c.Timestamp),
		)
		return
	}
	s.enter(ctx, side, c, amount)
}
