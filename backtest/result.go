package backtest

import (
	"time"

	"github.com/evdnx/tradebot/performance"
	"github.com/evdnx/tradebot/store"
	"github.com/evdnx/tradebot/types"
)

// Result is the outcome of a completed run.
type Result struct {
	RunID     string
	Symbol    string
	Timeframe string
	Strategy  string
	Start     time.Time
	End       time.Time
	Trades    []types.Trade
	Equity    []types.EquityPoint
	Metrics   performance.Metrics
	// Balances are the final ledger balances per asset.
	Balances map[string]float64
	// OpenPositions are positions still open after the last candle.
	OpenPositions []types.Position
	// MarkedValue is every balance valued at the last close.
	MarkedValue float64
}

// Report converts the result into its persisted form.
func (r *Result) Report(createdAt time.Time) store.Report {
	return store.Report{
		RunID:     r.RunID,
		Strategy:  r.Strategy,
		Symbol:    r.Symbol,
		Timeframe: r.Timeframe,
		Start:     r.Start,
		End:       r.End,
		CreatedAt: createdAt,
		Metrics:   r.Metrics,
		Trades:    r.Trades,
		Equity:    r.Equity,
	}
}
