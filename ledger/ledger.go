// Package ledger keeps per-asset balances for simulated trading.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Delta is a signed change to one asset balance.
type Delta struct {
	Asset  string
	Amount float64
}

// Ledger holds cash and asset balances. Balances are never negative: a
// batch of deltas is applied completely or not at all.
//
// A Ledger is owned by a single run and is not safe for concurrent use.
type Ledger struct {
	balances map[string]decimal.Decimal
}

// New seeds a ledger with the given balances.
func New(initial map[string]float64) *Ledger {
	l := &Ledger{balances: make(map[string]decimal.Decimal, len(initial))}
	for asset, amt := range initial {
		l.balances[normalize(asset)] = decimal.NewFromFloat(amt)
	}
	return l
}

// Balance returns the balance of asset, 0 when unknown.
func (l *Ledger) Balance(asset string) float64 {
	return l.balances[normalize(asset)].InexactFloat64()
}

// Balances returns a copy of every non-zero balance.
func (l *Ledger) Balances() map[string]float64 {
	out := make(map[string]float64, len(l.balances))
	for asset, amt := range l.balances {
		if amt.IsZero() {
			continue
		}
		out[asset] = amt.InexactFloat64()
	}
	return out
}

// Assets lists the assets with a non-zero balance in sorted order.
func (l *Ledger) Assets() []string {
	out := make([]string, 0, len(l.balances))
	for asset, amt := range l.balances {
		if !amt.IsZero() {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}

// Apply adds every delta atomically. If any resulting balance would be
// negative nothing is changed and ErrInsufficientBalance is returned.
func (l *Ledger) Apply(deltas ...Delta) error {
	next := make(map[string]decimal.Decimal, len(deltas))
	for _, d := range deltas {
		asset := normalize(d.Asset)
		cur, ok := next[asset]
		if !ok {
			cur = l.balances[asset]
		}
		next[asset] = cur.Add(decimal.NewFromFloat(d.Amount))
	}
	for asset, amt := range next {
		if amt.IsNegative() {
			return fmt.Errorf("%w: %s would be %s", ErrInsufficientBalance, asset, amt.String())
		}
	}
	for asset, amt := range next {
		l.balances[asset] = amt
	}
	return nil
}

func normalize(asset string) string { return strings.ToUpper(strings.TrimSpace(asset)) }
