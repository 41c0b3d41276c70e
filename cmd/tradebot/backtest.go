package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/evdnx/tradebot/backtest"
	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/metrics"
	"github.com/evdnx/tradebot/store"
	"github.com/evdnx/tradebot/strategy"
)

func newBacktestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored candles through a strategy",
		Example: `  tradebot backtest --symbols BTC/USD,ETH/USD --start 2024-01-01 --end 2024-06-30
  tradebot backtest --config tradebot.yaml --strategy hma_trend --report-db runs.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if err := applyBacktestFlags(cmd, a, cfg); err != nil {
				return err
			}
			if len(cfg.Backtest.Symbols) == 0 {
				return errors.New("no symbols to replay")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBacktests(cmd, a, cfg)
		},
	}
	f := cmd.Flags()
	f.StringSlice("symbols", nil, "symbols to replay (overrides config)")
	f.String("strategy", "", "strategy name ("+strings.Join(strategy.Names(), ", ")+")")
	f.String("timeframe", "", "candle timeframe, e.g. 1h")
	f.String("start", "", "first candle, RFC3339 or YYYY-MM-DD")
	f.String("end", "", "last candle, RFC3339 or YYYY-MM-DD (inclusive)")
	f.Float64("capital", 0, "initial capital in the quote asset")
	f.String("data-dir", "", "parquet candle directory")
	f.String("report-db", "", "SQLite file to store reports in")
	f.Duration("warmup", 0, "history before --start used to prime indicators")
	f.Int("concurrency", 4, "symbols replayed in parallel")
	f.String("metrics-file", "", "write prometheus metrics to this textfile")
	return cmd
}

// applyBacktestFlags layers explicitly set flags over the loaded config.
func applyBacktestFlags(cmd *cobra.Command, a *app, cfg *config.Config) error {
	v := a.v
	if cmd.Flags().Changed("symbols") {
		syms, err := cmd.Flags().GetStringSlice("symbols")
		if err != nil {
			return err
		}
		cfg.Backtest.Symbols = syms
	}
	if s := v.GetString("strategy"); s != "" {
		cfg.Strategy.Name = s
	}
	if s := v.GetString("timeframe"); s != "" {
		cfg.Backtest.Timeframe = s
	}
	if s := v.GetString("data-dir"); s != "" {
		cfg.Backtest.DataDir = s
	}
	if s := v.GetString("report-db"); s != "" {
		cfg.Backtest.ReportDB = s
	}
	if c := v.GetFloat64("capital"); c > 0 {
		cfg.Backtest.InitialCapital = c
	}
	for _, d := range []struct {
		flag string
		dst  *time.Time
	}{{"start", &cfg.Backtest.Start}, {"end", &cfg.Backtest.End}} {
		s := v.GetString(d.flag)
		if s == "" {
			continue
		}
		t, err := parseDate(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", d.flag, err)
		}
		*d.dst = t
	}
	// A date-only end covers that whole day.
	if s := v.GetString("end"); len(s) == len(time.DateOnly) {
		cfg.Backtest.End = cfg.Backtest.End.Add(24*time.Hour - time.Millisecond)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func runBacktests(cmd *cobra.Command, a *app, cfg *config.Config) error {
	ctx := cmd.Context()
	src := store.NewParquetStore(cfg.Backtest.DataDir)
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	reqs := make([]backtest.Request, 0, len(cfg.Backtest.Symbols))
	for _, sym := range cfg.Backtest.Symbols {
		reqs = append(reqs, backtest.Request{
			Symbol:    sym,
			Timeframe: cfg.Backtest.Timeframe,
			Strategy:  cfg.Strategy,
			Start:     cfg.Backtest.Start,
			End:       cfg.Backtest.End,
			Warmup:    a.v.GetDuration("warmup"),
		})
	}
	results, err := backtest.RunMany(ctx, reqs, func(backtest.Request) *backtest.Engine {
		return backtest.NewEngine(src, cfg.Backtest, cfg.Risk,
			backtest.WithLogger(a.log),
			backtest.WithMetrics(rec),
		)
	}, a.v.GetInt("concurrency"))
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), results)

	if path := cfg.Backtest.ReportDB; path != "" {
		reports, err := store.NewSQLiteReportStore(path)
		if err != nil {
			return err
		}
		defer reports.Close()
		now := time.Now().UTC()
		for _, r := range results {
			if err := reports.SaveReport(ctx, r.Report(now)); err != nil {
				return err
			}
			a.log.Info("report_saved", logger.String("run_id", r.RunID), logger.String("db", path))
		}
	}
	if path := a.v.GetString("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func printResults(w io.Writer, results []*backtest.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSYMBOL\tSTRATEGY\tTRADES\tWIN RATE\tRETURN\tMAX DD\tSHARPE\tPROFIT FACTOR\tFINAL\tMARKED")
	for _, r := range results {
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%.2f%%\t%.2f%%\t%s\t%s\t%.2f\t%.2f\n",
			r.RunID[:8], r.Symbol, r.Strategy, m.TotalTrades, m.WinRate*100, m.TotalReturn*100,
			m.MaxDrawdown*100, ratio(m.SharpeRatio), ratio(m.ProfitFactor), m.FinalCapital, r.MarkedValue)
	}
	tw.Flush()
}

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}
