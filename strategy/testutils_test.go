package strategy

import (
	"context"
	"testing"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/position"
	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/testutils"
	"github.com/evdnx/tradebot/types"
)

const testSymbol = "BTC/USD"

// signal is the pair of latest indicator values the scripted source hands
// back on the next evaluation.
type signal struct {
	rsi, fast, slow [2]float64
}

var (
	longSignal  = signal{rsi: [2]float64{25, 35}, fast: [2]float64{99, 101}, slow: [2]float64{100, 100}}
	shortSignal = signal{rsi: [2]float64{75, 65}, fast: [2]float64{101, 99}, slow: [2]float64{100, 100}}
	neutral     = signal{rsi: [2]float64{50, 50}, fast: [2]float64{100.5, 100.6}, slow: [2]float64{100, 100}}
	crossDown   = signal{rsi: [2]float64{50, 45}, fast: [2]float64{101, 99}, slow: [2]float64{100, 100}}
	crossUp     = signal{rsi: [2]float64{50, 55}, fast: [2]float64{99, 101}, slow: [2]float64{100, 100}}
	// rsiOnly has the RSI cross but no EMA crossover.
	rsiOnly = signal{rsi: [2]float64{25, 35}, fast: [2]float64{101, 102}, slow: [2]float64{100, 100}}
)

// scriptedSource is an indicator.Source whose output is set by the test
// before each candle.
type scriptedSource struct {
	fastPeriod int
	next       signal
	warm       bool
	calls      int
}

func (s *scriptedSource) set(sig signal) { s.next, s.warm = sig, true }

func (s *scriptedSource) RSI(_ []float64, _ int) []float64 {
	s.calls++
	if !s.warm {
		return nil
	}
	return []float64{s.next.rsi[0], s.next.rsi[1]}
}

func (s *scriptedSource) EMA(_ []float64, period int) []float64 {
	if !s.warm {
		return nil
	}
	if period == s.fastPeriod {
		return []float64{s.next.fast[0], s.next.fast[1]}
	}
	return []float64{s.next.slow[0], s.next.slow[1]}
}

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Name:          RSIEMAName,
		RSIPeriod:     5,
		FastEMAPeriod: 3,
		SlowEMAPeriod: 6,
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

type harness struct {
	exec    *testutils.MockExecutor
	log     *testutils.MockLogger
	monitor *position.Monitor
	src     *scriptedSource
	deps    Deps
}

func newHarness() *harness {
	gate := risk.NewGate(config.DefaultRisk())
	h := &harness{
		exec:    testutils.NewMockExecutor(10_000),
		log:     testutils.NewMockLogger(),
		monitor: position.NewMonitor(gate),
		src:     &scriptedSource{fastPeriod: 3},
	}
	h.deps = Deps{
		Symbol:     testSymbol,
		Exec:       h.exec,
		Monitor:    h.monitor,
		Gate:       gate,
		Indicators: h.src,
		Log:        h.log,
	}
	return h
}

func buildRSIEMA(t *testing.T, h *harness, cfg config.StrategyConfig) *RSIEMA {
	t.Helper()
	s, err := NewRSIEMA(cfg, h.deps)
	if err != nil {
		t.Fatalf("NewRSIEMA failed: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s.(*RSIEMA)
}

// bar builds a valid candle closing at close, hours after the epoch.
func bar(hour int, close float64) types.Candle {
	return types.Candle{
		Timestamp: int64(hour) * testutils.HourMs,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
	}
}

// step scripts sig and feeds one candle.
func step(t *testing.T, s Strategy, src *scriptedSource, hour int, sig signal) {
	t.Helper()
	src.set(sig)
	if err := s.Run(context.Background(), bar(hour, 100)); err != nil {
		t.Fatalf("Run at hour %d: %v", hour, err)
	}
}
