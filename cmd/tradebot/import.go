package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evdnx/tradebot/logger"
	"github.com/evdnx/tradebot/store"
	"github.com/evdnx/tradebot/types"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load OHLCV candles from CSV into the parquet store",
		Long: `Reads rows of timestamp,open,high,low,close,volume (timestamp in epoch
milliseconds, an optional header row is skipped) and merges them into the
candle store. Rows that fail validation are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := a.v.GetString("symbol")
			if symbol == "" {
				return errors.New("--symbol is required")
			}
			timeframe := a.v.GetString("timeframe")
			if timeframe == "" {
				timeframe = a.cfg.Backtest.Timeframe
			}
			dir := a.v.GetString("data-dir")
			if dir == "" {
				dir = a.cfg.Backtest.DataDir
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			candles, skipped, err := readCandlesCSV(f, a.log)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := store.NewParquetStore(dir).WriteCandles(cmd.Context(), symbol, timeframe, candles); err != nil {
				return err
			}
			a.log.Info("candles_imported",
				logger.String("symbol", symbol),
				logger.String("timeframe", timeframe),
				logger.Int("rows", len(candles)),
				logger.Int("skipped", skipped),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d candles for %s (%d skipped)\n", len(candles), symbol, skipped)
			return nil
		},
	}
	cmd.Flags().String("symbol", "", "symbol the candles belong to, e.g. BTC/USD")
	cmd.Flags().String("timeframe", "", "candle timeframe (defaults to config)")
	cmd.Flags().String("data-dir", "", "parquet candle directory (defaults to config)")
	return cmd
}

// readCandlesCSV parses rows into candles, skipping a header and any row
// that does not form a valid candle.
func readCandlesCSV(r io.Reader, log logger.Logger) ([]types.Candle, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	var (
		out     []types.Candle
		skipped int
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, err
		}
		c, err := parseCandleRow(rec)
		if err != nil {
			if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "timestamp") {
				continue
			}
			skipped++
			log.Warn("csv_row_skipped", logger.Int("line", line), logger.Err(err))
			continue
		}
		if err := c.Validate(); err != nil {
			skipped++
			log.Warn("csv_row_skipped", logger.Int("line", line), logger.Err(err))
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

func parseCandleRow(rec []string) (types.Candle, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	var v [5]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64); err != nil {
			return types.Candle{}, fmt.Errorf("column %d: %w", i+2, err)
		}
	}
	return types.Candle{Timestamp: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}
