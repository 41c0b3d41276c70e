package strategy

import (
	"context"

	"github.com/evdnx/goti"
	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/types"
)

const BreakoutMomentumName = "breakout_momentum"

// BreakoutMomentum enters on a momentum burst: an HMA crossover confirmed by
// VWAO and ATSO crossovers.
type BreakoutMomentum struct {
	*suiteStrategy
}

func NewBreakoutMomentum(cfg config.StrategyConfig, deps Deps) (Strategy, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		return goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	}
	s, err := newSuiteStrategy(BreakoutMomentumName, cfg, deps, suiteFactory)
	if err != nil {
		return nil, err
	}
	return &BreakoutMomentum{suiteStrategy: s}, nil
}

func (bm *BreakoutMomentum) Run(ctx context.Context, c types.Candle) error {
	ready, err := bm.update(c)
	if !ready {
		return err
	}
	hma, vwao, atso := bm.suite.GetHMA(), bm.suite.GetVWAO(), bm.suite.GetATSO()

	long := bm.bullish(hma.IsBullishCrossover) &&
		bm.bullish(vwao.IsBullishCrossover) &&
		(bm.bullishFallback() || atso.IsBullishCrossover())
	short := bm.bearish(hma.IsBearishCrossover) &&
		bm.bearish(vwao.IsBearishCrossover) &&
		(bm.bearishFallback() || atso.IsBearishCrossover())

	bm.trade(ctx, c, long, short, nil)
	return nil
}
