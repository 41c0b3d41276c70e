package strategy

import (
	"context"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/indicator"
	"github.com/evdnx/tradebot/types"
)

const RSIEMAName = "rsi_ema"

// RSIEMA enters when an RSI threshold cross and an EMA crossover agree:
//   - long: RSI climbs back over the oversold level while the fast EMA
//     crosses above the slow EMA,
//   - short: RSI falls back under the overbought level while the fast EMA
//     crosses below the slow EMA.
//
// An open long is closed when the fast EMA crosses back below the slow one
// (and the reverse for a short). Stops and targets are handled by the
// position monitor.
type RSIEMA struct {
	*BaseStrategy
	ind indicator.Source
}

// NewRSIEMA builds the RSI/EMA confluence strategy. A nil indicator source
// defaults to the TA-Lib backed one.
func NewRSIEMA(cfg config.StrategyConfig, deps Deps) (Strategy, error) {
	base, err := NewBaseStrategy(RSIEMAName, cfg, deps)
	if err != nil {
		return nil, err
	}
	ind := deps.Indicators
	if ind == nil {
		ind = indicator.TALib{}
	}
	return &RSIEMA{BaseStrategy: base, ind: ind}, nil
}

func (s *RSIEMA) Initialize(ctx context.Context) error {
	return s.preload(ctx, func(c types.Candle) { s.recordPrice(c.Close) })
}

func (s *RSIEMA) Run(ctx context.Context, c types.Candle) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if !s.accept(c) {
		return nil
	}
	s.recordPrice(c.Close)
	if !s.hasHistory(s.Cfg.WarmupBars) {
		return nil
	}

	sig, ok := s.evaluate()
	if !ok {
		return nil
	}
	if pos, open := s.Monitor.Get(s.Symbol); open {
		if (pos.Side == types.Long && sig.crossDown) || (pos.Side == types.Short && sig.crossUp) {
			s.exit(ctx, c, types.IntentExit)
		}
		return nil
	}
	switch {
	case sig.long:
		if s.canEnter(c) {
			s.enter(ctx, types.Long, c, 0)
		}
	case sig.short:
		if s.canEnter(c) {
			s.enter(ctx, types.Short, c, 0)
		}
	}
	return nil
}

type confluence struct {
	long, short        bool
	crossUp, crossDown bool
}

// evaluate computes the signal from the two most recent indicator values.
// It reports false while any series is still warming up.
func (s *RSIEMA) evaluate() (confluence, bool) {
	closes := s.prices.Values()
	rPrev, rCur, ok := indicator.LastTwo(s.ind.RSI(closes, s.Cfg.RSIPeriod))
	if !ok {
		return confluence{}, false
	}
	fPrev, fCur, ok := indicator.LastTwo(s.ind.EMA(closes, s.Cfg.FastEMAPeriod))
	if !ok {
		return confluence{}, false
	}
	sPrev, sCur, ok := indicator.LastTwo(s.ind.EMA(closes, s.Cfg.SlowEMAPeriod))
	if !ok {
		return confluence{}, false
	}

	crossUp := fPrev <= sPrev && fCur > sCur
	crossDown := fPrev >= sPrev && fCur < sCur
	rsiUp := rPrev < s.Cfg.RSIOversold && rCur >= s.Cfg.RSIOversold
	rsiDown := rPrev > s.Cfg.RSIOverbought && rCur <= s.Cfg.RSIOverbought
	return confluence{
		long:      rsiUp && crossUp,
		short:     rsiDown && crossDown,
		crossUp:   crossUp,
		crossDown: crossDown,
	}, true
}
