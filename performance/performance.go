// Package performance derives run statistics from a trade log and an
// equity curve.
package performance

import (
	"math"

	"github.com/evdnx/tradebot/types"
)

// Metrics is the summary reported for a finished run.
type Metrics struct {
	InitialCapital float64 `json:"initialCapital"`
	FinalCapital   float64 `json:"finalCapital"`
	TotalReturn    float64 `json:"totalReturn"`
	// ProfitFactor is +Inf when there are no losing trades but some profit.
	ProfitFactor float64 `json:"profitFactor"`
	// SharpeRatio is +Inf for a positive, perfectly steady curve.
	SharpeRatio   float64 `json:"sharpeRatio"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	TotalFees     float64 `json:"totalFees"`
	RealizedPnL   float64 `json:"realizedPnL"`
}

// Input is everything Analyze needs.
type Input struct {
	InitialCapital float64
	Trades         []types.Trade
	Equity         []types.EquityPoint
	// RiskFreeRate is subtracted from every per-step return.
	RiskFreeRate float64
}

// Analyze computes the run metrics. TotalTrades counts every filled trade;
// the win/loss figures are per exit trade after FIFO pairing and use gross
// PnL. Fees are only summed into TotalFees.
func Analyze(in Input) Metrics {
	final := in.InitialCapital
	if n := len(in.Equity); n > 0 {
		final = in.Equity[n-1].Balance
	}
	m := Metrics{
		InitialCapital: in.InitialCapital,
		FinalCapital:   final,
		TotalReturn:    TotalReturn(in.InitialCapital, final),
		SharpeRatio:    SharpeRatio(in.Equity, in.RiskFreeRate),
		MaxDrawdown:    MaxDrawdown(in.Equity),
		TotalTrades:    len(in.Trades),
	}
	for _, t := range in.Trades {
		m.TotalFees += t.Fee
	}

	var grossProfit, grossLoss float64
	for _, c := range PairTrades(in.Trades).Closes {
		m.RealizedPnL += c.PnL
		switch {
		case c.PnL > 0:
			m.WinningTrades++
			grossProfit += c.PnL
		case c.PnL < 0:
			m.LosingTrades++
			grossLoss -= c.PnL
		}
	}
	if decided := m.WinningTrades + m.LosingTrades; decided > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(decided)
	}
	m.ProfitFactor = ProfitFactor(grossProfit, grossLoss)
	return m
}

// TotalReturn is (final-initial)/initial, or 0 for a zero initial value.
func TotalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// ProfitFactor is gross profit over gross loss.
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the
// running peak.
func MaxDrawdown(curve []types.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Balance
	maxDD := 0.0
	for _, p := range curve {
		if p.Balance > peak {
			peak = p.Balance
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Balance) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SharpeRatio is mean(excess)/stddev(excess) over per-step returns, using
// the population standard deviation. A zero deviation yields +Inf for a
// positive mean and 0 otherwise.
func SharpeRatio(curve []types.EquityPoint, riskFree float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	excess := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		r := 0.0
		if prev := curve[i-1].Balance; prev != 0 {
			r = (curve[i].Balance - prev) / prev
		}
		excess = append(excess, r-riskFree)
	}

	mean := 0.0
	for _, r := range excess {
		mean += r
	}
	mean /= float64(len(excess))
	variance := 0.0
	for _, r := range excess {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(excess)))
	if std < 1e-12 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return mean / std
}
