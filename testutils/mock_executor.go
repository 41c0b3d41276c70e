package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdnx/tradebot/types"
)

// MockExecutor implements the Executor interface in‑memory. Every request
// fills in full; a zero amount fills DefaultAmount.
type MockExecutor struct {
	mu            sync.RWMutex
	equity        float64
	DefaultAmount float64
	// Reject makes every request fail with this error when set.
	Reject   error
	requests []types.TradeRequest
	trades   []types.Trade
}

// NewMockExecutor creates a fresh executor with the supplied starting equity.
func NewMockExecutor(startEquity float64) *MockExecutor {
	return &MockExecutor{equity: startEquity, DefaultAmount: 1}
}

// ExecuteTrade records the request and returns a filled trade.
func (m *MockExecutor) ExecuteTrade(_ context.Context, req types.TradeRequest) (*types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.Reject != nil {
		return nil, m.Reject
	}
	amount := req.Amount
	if amount <= 0 {
		amount = m.DefaultAmount
	}
	tr := types.Trade{
		ID:       fmt.Sprintf("mock-%d", len(m.trades)+1),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Amount:   amount,
		Price:    req.Price,
		Status:   types.StatusFilled,
		Metadata: req.Metadata,
	}
	m.trades = append(m.trades, tr)
	return &tr, nil
}

// Equity returns the configured cash balance.
func (m *MockExecutor) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// SetEquity changes the reported balance.
func (m *MockExecutor) SetEquity(v float64) {
	m.mu.Lock()
	m.equity = v
	m.mu.Unlock()
}

// Requests returns a copy of every request received, filled or not.
func (m *MockExecutor) Requests() []types.TradeRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.TradeRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Trades returns a copy of all filled trades (useful for assertions).
func (m *MockExecutor) Trades() []types.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}
