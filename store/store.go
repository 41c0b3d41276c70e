// Package store defines where historical candles come from and where
// finished backtest reports go.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/evdnx/tradebot/performance"
	"github.com/evdnx/tradebot/types"
)

var ErrRunNotFound = errors.New("run not found")

// CandleSource supplies historical candles.
type CandleSource interface {
	// ReadCandles returns the candles of symbol within [start, end] in
	// ascending timestamp order.
	ReadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Candle, error)
}

// CandleWriter persists candles, replacing any stored candle with the same
// timestamp.
type CandleWriter interface {
	WriteCandles(ctx context.Context, symbol, timeframe string, candles []types.Candle) error
}

// Report is a finished backtest as it is persisted.
type Report struct {
	RunID     string
	Strategy  string
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
	Metrics   performance.Metrics
	Trades    []types.Trade
	Equity    []types.EquityPoint
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID     string
	Strategy  string
	Symbol    string
	Timeframe string
	CreatedAt time.Time
	Metrics   performance.Metrics
}

// ReportStore keeps finished reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r Report) error
	// ListRuns returns the newest runs first, at most limit (0 = all).
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	LoadReport(ctx context.Context, runID string) (*Report, error)
}

// symbolDir turns a trading pair into a path-safe directory name.
func symbolDir(symbol string) string {
	return strings.NewReplacer("/", "-", "\\", "-", " ", "").Replace(strings.ToUpper(strings.TrimSpace(symbol)))
}

func inRange(ts int64, start, end time.Time) bool {
	return ts >= start.UnixMilli() && ts <= end.UnixMilli()
}
