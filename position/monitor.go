// Package position tracks the single open position per symbol and decides
// when a stop-loss or take-profit exit fires.
package position

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/evdnx/tradebot/risk"
	"github.com/evdnx/tradebot/types"
)

var (
	ErrPositionOpen    = errors.New("position already open")
	ErrInvalidPosition = errors.New("invalid position")
)

// Exit is the action a price tick triggers on an open position.
type Exit struct {
	Symbol   string
	Intent   types.Intent // IntentStopLoss or IntentTakeProfit
	Level    float64      // the stop or target that was crossed
	Position types.Position
}

// Monitor is the single source of truth for open positions. It is owned by
// one run and is not safe for concurrent use.
type Monitor struct {
	gate      *risk.Gate
	positions map[string]*types.Position
}

func NewMonitor(gate *risk.Gate) *Monitor {
	return &Monitor{gate: gate, positions: make(map[string]*types.Position)}
}

// Open records a new position and derives its stop and target through the
// risk gate.
func (m *Monitor) Open(symbol string, side types.PositionSide, entryPrice, amount float64, openedAt int64) (types.Position, error) {
	if _, ok := m.positions[symbol]; ok {
		return types.Position{}, fmt.Errorf("%w: %s", ErrPositionOpen, symbol)
	}
	if entryPrice <= 0 || amount <= 0 || math.IsNaN(entryPrice) || math.IsNaN(amount) {
		return types.Position{}, fmt.Errorf("%w: %s entry %.8f amount %.8f", ErrInvalidPosition, symbol, entryPrice, amount)
	}
	if side != types.Long && side != types.Short {
		return types.Position{}, fmt.Errorf("%w: unknown side %q", ErrInvalidPosition, side)
	}
	p := &types.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entryPrice,
		Amount:          amount,
		StopLossPrice:   m.gate.CalculateStopLoss(entryPrice, side, 0),
		TakeProfitPrice: m.gate.CalculateTakeProfit(entryPrice, side, 0),
		OpenedAt:        openedAt,
	}
	m.positions[symbol] = p
	return *p, nil
}

// CheckExit evaluates currentPrice against the open position. The position
// stays open until Close is called.
func (m *Monitor) CheckExit(symbol string, currentPrice float64) (Exit, bool) {
	return m.CheckExitRange(symbol, currentPrice, currentPrice)
}

// CheckExitRange evaluates a bar whose prices spanned [low, high]. On a
// gapping bar that breaches both the stop and the target the stop wins.
func (m *Monitor) CheckExitRange(symbol string, low, high float64) (Exit, bool) {
	p, ok := m.positions[symbol]
	if !ok || low <= 0 || high < low {
		return Exit{}, false
	}

	var stopHit, targetHit bool
	if p.Side == types.Long {
		m.trail(p, low)
		stopHit = low <= p.StopLossPrice
		targetHit = high >= p.TakeProfitPrice
	} else {
		m.trail(p, high)
		stopHit = high >= p.StopLossPrice
		targetHit = low <= p.TakeProfitPrice
	}
	switch {
	case stopHit:
		return Exit{Symbol: symbol, Intent: types.IntentStopLoss, Level: p.StopLossPrice, Position: *p}, true
	case targetHit:
		return Exit{Symbol: symbol, Intent: types.IntentTakeProfit, Level: p.TakeProfitPrice, Position: *p}, true
	}
	return Exit{}, false
}

// trail ratchets the stop toward price when a trailing distance is set.
// The stop never moves against the position.
func (m *Monitor) trail(p *types.Position, price float64) {
	pct := m.gate.Config().TrailingPct
	if pct <= 0 {
		return
	}
	if p.Side == types.Long {
		if lvl := price * (1 - pct); lvl > p.StopLossPrice {
			p.StopLossPrice = lvl
		}
		return
	}
	if lvl := price * (1 + pct); lvl < p.StopLossPrice {
		p.StopLossPrice = lvl
	}
}

// Close clears the position once its exit trade has been executed.
func (m *Monitor) Close(symbol string) (types.Position, bool) {
	p, ok := m.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	delete(m.positions, symbol)
	return *p, true
}

// Get returns a copy of the open position for symbol.
func (m *Monitor) Get(symbol string) (types.Position, bool) {
	p, ok := m.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

func (m *Monitor) Has(symbol string) bool {
	_, ok := m.positions[symbol]
	return ok
}

func (m *Monitor) Len() int { return len(m.positions) }

// Positions returns copies of all open positions sorted by symbol.
func (m *Monitor) Positions() []types.Position {
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
