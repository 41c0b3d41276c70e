package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder groups the bot's prometheus collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	TradesExecuted   *prometheus.CounterVec
	TradesRejected   *prometheus.CounterVec
	CandlesProcessed *prometheus.CounterVec
	PositionsOpen    *prometheus.GaugeVec
	Equity           *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_trades_executed_total",
				Help: "Total number of filled trades (by strategy and intent).",
			},
			[]string{"strategy", "intent"},
		),
		TradesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_trades_rejected_total",
				Help: "Trade attempts that ended as a no-op (by reason).",
			},
			[]string{"reason"},
		),
		CandlesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebot_candles_processed_total",
				Help: "Candles replayed by the backtest engine (by symbol).",
			},
			[]string{"symbol"},
		),
		PositionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradebot_positions_open",
				Help: "Current number of open positions (by strategy and symbol).",
			},
			[]string{"strategy", "symbol"},
		),
		Equity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradebot_equity",
				Help: "Current cash balance of the executor (by symbol run).",
			},
			[]string{"symbol"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.TradesExecuted, r.TradesRejected, r.CandlesProcessed, r.PositionsOpen, r.Equity)
	}
	return r
}

func (r *Recorder) TradeExecuted(strategy, intent string) {
	if r == nil {
		return
	}
	r.TradesExecuted.WithLabelValues(strategy, intent).Inc()
}

func (r *Recorder) TradeRejected(reason string) {
	if r == nil {
		return
	}
	r.TradesRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) CandleProcessed(symbol string) {
	if r == nil {
		return
	}
	r.CandlesProcessed.WithLabelValues(symbol).Inc()
}

func (r *Recorder) SetPositionsOpen(strategy, symbol string, n int) {
	if r == nil {
		return
	}
	r.PositionsOpen.WithLabelValues(strategy, symbol).Set(float64(n))
}

func (r *Recorder) SetEquity(symbol string, v float64) {
	if r == nil {
		return
	}
	r.Equity.WithLabelValues(symbol).Set(v)
}
