package performance

import (
	"github.com/evdnx/tradebot/types"
)

// lotEpsilon absorbs float residue when a lot is consumed exactly.
const lotEpsilon = 1e-12

// Lot is an open quantity waiting to be matched.
type Lot struct {
	TradeID  string
	Symbol   string
	Side     types.PositionSide
	Price    float64
	Amount   float64
	OpenedAt int64
}

// RoundTrip is one lot (or part of one) closed by an exit trade.
type RoundTrip struct {
	Symbol     string
	Side       types.PositionSide
	EntryID    string
	ExitID     string
	EntryPrice float64
	ExitPrice  float64
	Amount     float64
	PnL        float64
	OpenedAt   int64
	ClosedAt   int64
}

// Close is the realized result of a single exit trade, summed over every
// lot it consumed.
type Close struct {
	TradeID string
	Symbol  string
	PnL     float64
}

// Pairing is the outcome of matching a trade log.
type Pairing struct {
	RoundTrips []RoundTrip
	Closes     []Close
	// Open holds the lots still unmatched at the end of the log.
	Open []Lot
}

// PairTrades matches trades FIFO per symbol. A trade against the side of
// the oldest open lots closes them; any remainder opens a new lot on the
// trade's own side, so both long and short round trips are recognised.
func PairTrades(trades []types.Trade) Pairing {
	var out Pairing
	queues := make(map[string][]Lot)
	var order []string

	for _, t := range trades {
		if t.Amount <= 0 || t.Price <= 0 {
			continue
		}
		q, seen := queues[t.Symbol]
		if !seen {
			order = append(order, t.Symbol)
		}
		closing := types.Short
		if t.Side == types.Sell {
			closing = types.Long
		}

		remaining := t.Amount
		realized, matched := 0.0, false
		for remaining > lotEpsilon && len(q) > 0 && q[0].Side == closing {
			lot := &q[0]
			amt := min(lot.Amount, remaining)
			pnl := (t.Price - lot.Price) * amt
			if lot.Side == types.Short {
				pnl = -pnl
			}
			out.RoundTrips = append(out.RoundTrips, RoundTrip{
				Symbol:     t.Symbol,
				Side:       lot.Side,
				EntryID:    lot.TradeID,
				ExitID:     t.ID,
				EntryPrice: lot.Price,
				ExitPrice:  t.Price,
				Amount:     amt,
				PnL:        pnl,
				OpenedAt:   lot.OpenedAt,
				ClosedAt:   t.Timestamp,
			})
			realized += pnl
			matched = true
			lot.Amount -= amt
			remaining -= amt
			if lot.Amount <= lotEpsilon {
				q = q[1:]
			}
		}
		if matched {
			out.Closes = append(out.Closes, Close{TradeID: t.ID, Symbol: t.Symbol, PnL: realized})
		}
		if remaining > lotEpsilon {
			q = append(q, Lot{
				TradeID:  t.ID,
				Symbol:   t.Symbol,
				Side:     closing.Opposite(),
				Price:    t.Price,
				Amount:   remaining,
				OpenedAt: t.Timestamp,
			})
		}
		queues[t.Symbol] = q
	}

	for _, sym := range order {
		out.Open = append(out.Open, queues[sym]...)
	}
	return out
}
