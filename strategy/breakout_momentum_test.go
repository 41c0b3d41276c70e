package strategy

import (
	"context"
	"testing"

	"github.com/evdnx/tradebot/types"
)

func buildBreakoutMomentum(t *testing.T, h *harness) *BreakoutMomentum {
	t.Helper()
	cfg := permissiveConfig()
	cfg.Name = BreakoutMomentumName
	s, err := NewBreakoutMomentum(cfg, h.deps)
	if err != nil {
		t.Fatalf("NewBreakoutMomentum failed: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s.(*BreakoutMomentum)
}

func TestBreakoutMomentum_LongEntry(t *testing.T) {
	h := newHarness()
	s := buildBreakoutMomentum(t, h)

	feed(t, s, ramp(100, 1, 15))

	reqs := h.exec.Requests()
	if len(reqs) == 0 {
		t.Fatal("expected a long entry on a breakout")
	}
	r := reqs[0]
	if r.Side != types.Buy || r.Metadata.Intent != types.IntentEntry || r.Metadata.Strategy != BreakoutMomentumName {
		t.Fatalf("unexpected request %+v", r)
	}
	if limit := 10_000 * 0.02 / r.Price; r.Amount <= 0 || r.Amount > limit+1e-9 {
		t.Fatalf("size %f outside (0, %f]", r.Amount, limit)
	}
	for _, o := range reqs {
		if o.Side == types.Sell && o.Metadata.Intent == types.IntentEntry {
			t.Fatalf("opened a short on a breakout: %+v", o)
		}
	}
}

func TestBreakoutMomentum_ShortEntry(t *testing.T) {
	h := newHarness()
	s := buildBreakoutMomentum(t, h)

	feed(t, s, ramp(200, -1, 15))

	reqs := h.exec.Requests()
	if len(reqs) == 0 || reqs[0].Side != types.Sell || reqs[0].Metadata.Intent != types.IntentEntry {
		t.Fatalf("expected a short entry first, got %+v", reqs)
	}
	for _, o := range reqs {
		if o.Side == types.Buy && o.Metadata.Intent == types.IntentEntry {
			t.Fatalf("opened a long on a breakdown: %+v", o)
		}
	}
}

func TestBreakoutMomentum_NoPyramiding(t *testing.T) {
	h := newHarness()
	s := buildBreakoutMomentum(t, h)

	feed(t, s, ramp(100, 1, 30))

	entries := 0
	for _, r := range h.exec.Requests() {
		if r.Metadata.Intent == types.IntentEntry {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("expected a single entry while the position is open, got %d", entries)
	}
}
