package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evdnx/tradebot/types"
)

func TestRSIEMA_LongEntry(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, neutral)
	step(t, s, h.src, 1, longSignal)

	reqs := h.exec.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.Side != types.Buy || r.Metadata.Intent != types.IntentEntry || r.Metadata.Strategy != RSIEMAName {
		t.Fatalf("unexpected request %+v", r)
	}
	if r.Amount != 0 {
		t.Fatalf("entry should leave sizing to the executor, got amount %f", r.Amount)
	}
	pos, ok := h.monitor.Get(testSymbol)
	if !ok || pos.Side != types.Long || pos.EntryPrice != 100 {
		t.Fatalf("expected long position at 100, got %+v (open=%v)", pos, ok)
	}
	if h.log.Count("position_opened") != 1 {
		t.Fatal("position_opened not logged")
	}
}

func TestRSIEMA_ShortEntry(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, shortSignal)

	reqs := h.exec.Requests()
	if len(reqs) != 1 || reqs[0].Side != types.Sell {
		t.Fatalf("expected one sell, got %+v", reqs)
	}
	pos, ok := h.monitor.Get(testSymbol)
	if !ok || pos.Side != types.Short {
		t.Fatalf("expected short position, got %+v", pos)
	}
	if pos.StopLossPrice <= pos.EntryPrice || pos.TakeProfitPrice >= pos.EntryPrice {
		t.Fatalf("short levels inverted: %+v", pos)
	}
}

func TestRSIEMA_RequiresConfluence(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, rsiOnly)
	step(t, s, h.src, 1, crossUp)

	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected no trades without confluence, got %d", n)
	}
}

func TestRSIEMA_NoPyramiding(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, longSignal)
	step(t, s, h.src, 1, longSignal)
	step(t, s, h.src, 2, longSignal)

	if n := len(h.exec.Requests()); n != 1 {
		t.Fatalf("expected a single entry, got %d requests", n)
	}
}

func TestRSIEMA_ExitOnCrossDown(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, longSignal)
	step(t, s, h.src, 1, neutral)
	step(t, s, h.src, 2, crossDown)

	reqs := h.exec.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected entry and exit, got %d", len(reqs))
	}
	exit := reqs[1]
	if exit.Side != types.Sell || exit.Metadata.Intent != types.IntentExit {
		t.Fatalf("unexpected exit request %+v", exit)
	}
	if exit.Amount != 1 {
		t.Fatalf("exit should close the full position, got %f", exit.Amount)
	}
	if h.monitor.Has(testSymbol) {
		t.Fatal("position should be closed")
	}
}

func TestRSIEMA_ShortExitOnCrossUp(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, shortSignal)
	step(t, s, h.src, 1, crossUp)

	reqs := h.exec.Requests()
	if len(reqs) != 2 || reqs[1].Side != types.Buy {
		t.Fatalf("expected covering buy, got %+v", reqs)
	}
	if h.monitor.Has(testSymbol) {
		t.Fatal("position should be closed")
	}
}

func TestRSIEMA_Cooldown(t *testing.T) {
	h := newHarness()
	cfg := testStrategyConfig()
	cfg.Cooldown = 2 * time.Hour
	s := buildRSIEMA(t, h, cfg)

	step(t, s, h.src, 0, longSignal)
	step(t, s, h.src, 1, crossDown)
	if !s.IsInCooldown(bar(1, 100).Time()) {
		t.Fatal("expected cooldown one hour after the entry")
	}

	step(t, s, h.src, 1, longSignal)
	if n := len(h.exec.Requests()); n != 2 {
		t.Fatalf("entry during cooldown should be suppressed, got %d requests", n)
	}
	if reason, _ := h.log.FieldString("entry_suppressed", "reason"); reason != "cooldown" {
		t.Fatalf("expected cooldown suppression, got %q", reason)
	}

	step(t, s, h.src, 3, longSignal)
	if n := len(h.exec.Requests()); n != 3 {
		t.Fatalf("entry after cooldown should go through, got %d requests", n)
	}
}

func TestRSIEMA_SetLastSignalTime(t *testing.T) {
	h := newHarness()
	cfg := testStrategyConfig()
	cfg.Cooldown = time.Hour
	s := buildRSIEMA(t, h, cfg)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if s.IsInCooldown(now) {
		t.Fatal("fresh strategy must not be in cooldown")
	}
	s.SetLastSignalTime(now.Add(-30 * time.Minute))
	if !s.IsInCooldown(now) {
		t.Fatal("expected cooldown 30 minutes after a signal")
	}
	s.SetLastSignalTime(now.Add(-time.Hour))
	if s.IsInCooldown(now) {
		t.Fatal("cooldown should end after exactly one hour")
	}
}

func TestRSIEMA_InvalidCandleSkipped(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())
	h.src.set(longSignal)

	bad := bar(0, 100)
	bad.High = 90
	if err := s.Run(context.Background(), bad); err != nil {
		t.Fatalf("invalid candle must not raise: %v", err)
	}
	nan := bar(1, math.NaN())
	if err := s.Run(context.Background(), nan); err != nil {
		t.Fatalf("NaN candle must not raise: %v", err)
	}

	if h.src.calls != 0 {
		t.Fatalf("indicators consulted for invalid candles (%d calls)", h.src.calls)
	}
	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected no trades, got %d", n)
	}
	if h.log.Count("invalid_candle") != 2 {
		t.Fatalf("expected two invalid_candle logs, got %d", h.log.Count("invalid_candle"))
	}
	if s.prices.Len() != 0 {
		t.Fatal("invalid candles must not enter the window")
	}
}

func TestRSIEMA_WarmupHoldsDecisions(t *testing.T) {
	h := newHarness()
	cfg := testStrategyConfig()
	cfg.WarmupBars = 3
	s := buildRSIEMA(t, h, cfg)

	// Indicators not ready: nothing happens.
	if err := s.Run(context.Background(), bar(0, 100)); err != nil {
		t.Fatal(err)
	}
	step(t, s, h.src, 1, longSignal) // only 2 bars seen
	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected no trades during warm-up, got %d", n)
	}
	step(t, s, h.src, 2, longSignal)
	if n := len(h.exec.Requests()); n != 1 {
		t.Fatalf("expected entry once warmed up, got %d", n)
	}
}

func TestRSIEMA_ConcurrencyGate(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	// Three other symbols already hold positions; the default limit is 3.
	for i, sym := range []string{"ETH/USD", "SOL/USD", "ADA/USD"} {
		if _, err := h.monitor.Open(sym, types.Long, 10, 1, int64(i)); err != nil {
			t.Fatal(err)
		}
	}
	step(t, s, h.src, 0, longSignal)

	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected entry to be blocked, got %d requests", n)
	}
	if reason, _ := h.log.FieldString("entry_suppressed", "reason"); reason != "max_concurrent_trades" {
		t.Fatalf("unexpected suppression reason %q", reason)
	}
}

func TestRSIEMA_TotalRiskGate(t *testing.T) {
	h := newHarness()
	s := buildRSIEMA(t, h, testStrategyConfig())

	// 2000 of exposure on 10000 equity breaches the 10% portfolio cap.
	if _, err := h.monitor.Open("ETH/USD", types.Long, 2000, 1, 0); err != nil {
		t.Fatal(err)
	}
	step(t, s, h.src, 0, longSignal)

	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected entry to be blocked, got %d requests", n)
	}
	if reason, _ := h.log.FieldString("entry_suppressed", "reason"); reason != "total_risk" {
		t.Fatalf("unexpected suppression reason %q", reason)
	}
}

func TestRSIEMA_RejectedEntryLeavesNoPosition(t *testing.T) {
	h := newHarness()
	h.exec.Reject = errors.New("insufficient funds")
	s := buildRSIEMA(t, h, testStrategyConfig())

	step(t, s, h.src, 0, longSignal)

	if h.monitor.Has(testSymbol) {
		t.Fatal("rejected entry must not open a position")
	}
	if h.log.Count("entry_failed") != 1 {
		t.Fatal("expected entry_failed log")
	}
	if s.IsInCooldown(bar(0, 100).Time()) {
		t.Fatal("a rejected entry must not start the cooldown")
	}
}

func TestRSIEMA_RunBeforeInitialize(t *testing.T) {
	h := newHarness()
	s, err := NewRSIEMA(testStrategyConfig(), h.deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background(), bar(0, 100)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestRSIEMA_PreloadHistory(t *testing.T) {
	h := newHarness()
	for i := 0; i < 20; i++ {
		h.deps.History = append(h.deps.History, bar(i, 100+float64(i)))
	}
	s := buildRSIEMA(t, h, testStrategyConfig())

	// Window is twice the longest period (6).
	if got := s.prices.Len(); got != 12 {
		t.Fatalf("expected a full window of 12, got %d", got)
	}
	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("preloading must not trade, got %d requests", n)
	}
}

func TestRSIEMA_WithTALib(t *testing.T) {
	h := newHarness()
	h.deps.Indicators = nil
	s := buildRSIEMA(t, h, testStrategyConfig())

	// A steady rise never crosses back over the oversold level.
	for i := 0; i < 30; i++ {
		if err := s.Run(context.Background(), bar(i, 100+float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(h.exec.Requests()); n != 0 {
		t.Fatalf("expected no trades on a monotonic rise, got %d", n)
	}
	if s.prices.Len() != 12 {
		t.Fatalf("window should stay bounded at 12, got %d", s.prices.Len())
	}
}
