package strategy

import (
	"context"

	"github.com/evdnx/goti"
	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/types"
)

const MeanReversionName = "mean_reversion"

// MeanReversion trades when the RSI, MFI and VWAO oscillators cross in the
// same direction on one candle. Each oscillator falls back to the price
// trend while it warms up.
type MeanReversion struct {
	*suiteStrategy
}

func NewMeanReversion(cfg config.StrategyConfig, deps Deps) (Strategy, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = 70
		ic.RSIOversold = 30
		ic.MFIOverbought = 80
		ic.MFIOversold = 20
		ic.VWAOStrongTrend = 70
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	s, err := newSuiteStrategy(MeanReversionName, cfg, deps, suiteFactory)
	if err != nil {
		return nil, err
	}
	return &MeanReversion{suiteStrategy: s}, nil
}

func (mr *MeanReversion) Run(ctx context.Context, c types.Candle) error {
	ready, err := mr.update(c)
	if !ready {
		return err
	}
	rsi, mfi, vwao := mr.suite.GetRSI(), mr.suite.GetMFI(), mr.suite.GetVWAO()

	long := mr.bullish(rsi.IsBullishCrossover) &&
		mr.bullish(mfi.IsBullishCrossover) &&
		mr.bullish(vwao.IsBullishCrossover)
	short := mr.bearish(rsi.IsBearishCrossover) &&
		mr.bearish(mfi.IsBearishCrossover) &&
		mr.bearish(vwao.IsBearishCrossover)

	mr.trade(ctx, c, long, short, nil)
	return nil
}
