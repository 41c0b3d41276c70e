package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/evdnx/tradebot/performance"
	"github.com/evdnx/tradebot/testutils"
	"github.com/evdnx/tradebot/types"
)

var day = time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)

// yearEndCandles spans the new year so writes land in two files.
func yearEndCandles() []types.Candle {
	return testutils.CandlesFromCloses(day.UnixMilli(), 100, 101, 102, 103, 104, 105, 106, 107)
}

func TestMemorySource_RangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	candles := yearEndCandles()
	if err := src.WriteCandles(ctx, "btc/usd", "1h", candles); err != nil {
		t.Fatal(err)
	}

	got, err := src.ReadCandles(ctx, "BTC/USD", "1h", candles[2].Time(), candles[5].Time())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].Timestamp != candles[2].Timestamp || got[3].Timestamp != candles[5].Timestamp {
		t.Fatalf("unexpected range %+v", got)
	}

	if got, _ := src.ReadCandles(ctx, "BTC/USD", "4h", candles[0].Time(), candles[7].Time()); len(got) != 0 {
		t.Fatalf("other timeframe should be empty, got %d", len(got))
	}
}

func TestMemorySource_OverwriteAndSort(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	candles := yearEndCandles()
	// Write out of order, then replace one candle.
	_ = src.WriteCandles(ctx, "BTC/USD", "1h", []types.Candle{candles[3], candles[1], candles[2]})
	repl := candles[2]
	repl.Close, repl.High = 150, 150.5
	_ = src.WriteCandles(ctx, "BTC/USD", "1h", []types.Candle{repl})

	got, _ := src.ReadCandles(ctx, "BTC/USD", "1h", candles[0].Time(), candles[7].Time())
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatal("candles not sorted")
		}
	}
	if got[1].Close != 150 {
		t.Fatalf("newest write should win, got close %f", got[1].Close)
	}
}

func TestParquetStore_RoundTripAcrossYears(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewParquetStore(dir)
	candles := yearEndCandles()

	if err := s.WriteCandles(ctx, "BTC/USD", "1h", candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}
	for _, year := range []string{"2024", "2025"} {
		path := filepath.Join(dir, "1h", "BTC-USD", year+".parquet")
		if _, err := readCandleFile(path); err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
	}

	got, err := s.ReadCandles(ctx, "BTC/USD", "1h", candles[0].Time(), candles[len(candles)-1].Time())
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != len(candles) {
		t.Fatalf("expected %d candles, got %d", len(candles), len(got))
	}
	for i := range got {
		if got[i] != candles[i] {
			t.Fatalf("candle %d: got %+v want %+v", i, got[i], candles[i])
		}
	}

	// Rewriting merges rather than duplicating.
	if err := s.WriteCandles(ctx, "BTC/USD", "1h", candles[:3]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ReadCandles(ctx, "BTC/USD", "1h", candles[0].Time(), candles[len(candles)-1].Time())
	if len(got) != len(candles) {
		t.Fatalf("expected %d candles after merge, got %d", len(candles), len(got))
	}
}

func TestParquetStore_MissingData(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	got, err := s.ReadCandles(context.Background(), "ETH/USD", "1h", day, day.Add(48*time.Hour))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %d candles, err %v", len(got), err)
	}
}

func sampleReport(id string, created time.Time) Report {
	return Report{
		RunID:     id,
		Strategy:  "rsi_ema",
		Symbol:    "BTC/USD",
		Timeframe: "1h",
		Start:     day,
		End:       day.Add(24 * time.Hour),
		CreatedAt: created,
		Metrics: performance.Metrics{
			InitialCapital: 10000,
			FinalCapital:   10100,
			TotalReturn:    0.01,
			ProfitFactor:   math.Inf(1),
			SharpeRatio:    1.5,
			MaxDrawdown:    0.02,
			TotalTrades:    2,
			WinningTrades:  1,
			WinRate:        1,
			TotalFees:      0.4,
			RealizedPnL:    100,
		},
		Trades: []types.Trade{
			{ID: "bt-000001", Symbol: "BTC/USD", Side: types.Buy, Type: types.Market, Amount: 2, Price: 100, Status: types.StatusFilled, Fee: 0.2, Timestamp: 1,
				Metadata: types.TradeMetadata{Strategy: "rsi_ema", Intent: types.IntentEntry}},
			{ID: "bt-000002", Symbol: "BTC/USD", Side: types.Sell, Type: types.Market, Amount: 2, Price: 150, Status: types.StatusFilled, Fee: 0.3, Timestamp: 2,
				Metadata: types.TradeMetadata{Strategy: "rsi_ema", Intent: types.IntentTakeProfit}},
		},
		Equity: []types.EquityPoint{{Timestamp: 1, Balance: 9799.8}, {Timestamp: 2, Balance: 10099.5}},
	}
}

func TestSQLiteReportStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteReportStore(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	older := sampleReport("run-a", day)
	newer := sampleReport("run-b", day.Add(time.Hour))
	newer.Metrics.SharpeRatio = math.Inf(1)
	for _, r := range []Report{older, newer} {
		if err := s.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport %s: %v", r.RunID, err)
		}
	}
	// Saving again replaces rather than duplicating trades.
	if err := s.SaveReport(ctx, older); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-b" {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	if !math.IsInf(runs[0].Metrics.SharpeRatio, 1) || !math.IsInf(runs[1].Metrics.ProfitFactor, 1) {
		t.Fatal("infinite ratios should survive the round trip")
	}
	if runs[1].Metrics.SharpeRatio != 1.5 {
		t.Fatalf("finite Sharpe changed: %f", runs[1].Metrics.SharpeRatio)
	}
	if limited, _ := s.ListRuns(ctx, 1); len(limited) != 1 {
		t.Fatalf("limit ignored, got %d", len(limited))
	}

	r, err := s.LoadReport(ctx, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Trades) != 2 || r.Trades[1].Metadata.Intent != types.IntentTakeProfit || r.Trades[0].ID != "bt-000001" {
		t.Fatalf("unexpected trades %+v", r.Trades)
	}
	if len(r.Equity) != 2 || r.Equity[1].Balance != 10099.5 {
		t.Fatalf("unexpected equity %+v", r.Equity)
	}
	if !r.Start.Equal(day) || r.Metrics.TotalTrades != 2 {
		t.Fatalf("unexpected report header %+v", r)
	}

	if _, err := s.LoadReport(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
