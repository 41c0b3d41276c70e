package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/tradebot/types"
)

var (
	_ CandleSource = (*MemorySource)(nil)
	_ CandleWriter = (*MemorySource)(nil)
)

// MemorySource keeps candles in memory. It backs tests and synthetic runs.
type MemorySource struct {
	mu      sync.RWMutex
	candles map[string][]types.Candle
}

func NewMemorySource() *MemorySource {
	return &MemorySource{candles: make(map[string][]types.Candle)}
}

func memKey(symbol, timeframe string) string { return symbolDir(symbol) + "|" + timeframe }

// WriteCandles merges candles into the set, newest write wins per
// timestamp.
func (m *MemorySource) WriteCandles(_ context.Context, symbol, timeframe string, candles []types.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(symbol, timeframe)
	m.candles[k] = mergeCandles(m.candles[k], candles)
	return nil
}

func (m *MemorySource) ReadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Candle
	for _, c := range m.candles[memKey(symbol, timeframe)] {
		if inRange(c.Timestamp, start, end) {
			out = append(out, c)
		}
	}
	return out, nil
}

// mergeCandles deduplicates by timestamp, preferring incoming candles, and
// returns them sorted ascending.
func mergeCandles(existing, incoming []types.Candle) []types.Candle {
	seen := make(map[int64]types.Candle, len(existing)+len(incoming))
	for _, c := range existing {
		seen[c.Timestamp] = c
	}
	for _, c := range incoming {
		seen[c.Timestamp] = c
	}
	merged := make([]types.Candle, 0, len(seen))
	for _, c := range seen {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged
}
