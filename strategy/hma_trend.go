package strategy

import (
	"context"

	"github.com/evdnx/goti"
	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/types"
)

const HMATrendName = "hma_trend"

// HMATrend follows Hull moving average crossovers (falling back to the
// recent price trend while the HMA warms up), filtered by RSI so it does
// not buy an overbought market or sell an oversold one. The trade size
// comes from the risk gate and is shrunk in volatile conditions.
type HMATrend struct {
	*suiteStrategy
}

func NewHMATrend(cfg config.StrategyConfig, deps Deps) (Strategy, error) {
	s, err := newSuiteStrategy(HMATrendName, cfg, deps, newIndicatorSuite)
	if err != nil {
		return nil, err
	}
	return &HMATrend{suiteStrategy: s}, nil
}

// newIndicatorSuite builds the suite with production thresholds. The
// strategy applies its own configured RSI bounds on top.
func newIndicatorSuite() (*goti.IndicatorSuite, error) {
	ic := goti.DefaultConfig()
	ic.RSIOverbought = 70
	ic.RSIOversold = 30
	ic.MFIOverbought = 80
	ic.MFIOversold = 20
	return goti.NewIndicatorSuiteWithConfig(ic)
}

func (h *HMATrend) Run(ctx context.Context, c types.Candle) error {
	ready, err := h.update(c)
	if !ready {
		return err
	}
	hma := h.suite.GetHMA()
	bull := h.bullish(hma.IsBullishCrossover)
	bear := h.bearish(hma.IsBearishCrossover)
	h.trade(ctx, c, bull, bear, h.rsiAllows)
	return nil
}

// rsiAllows blocks longs above RSIOverbought and shorts below RSIOversold.
// RSI is advisory; an indicator that is not ready yet does not block.
func (h *HMATrend) rsiAllows(side types.PositionSide) bool {
	rsi, err := h.suite.GetRSI().Calculate()
	if err != nil {
		return true
	}
	if side == types.Long {
		return rsi <= h.Cfg.RSIOverbought
	}
	return rsi >= h.Cfg.RSIOversold
}
