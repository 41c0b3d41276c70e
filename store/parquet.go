package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/evdnx/tradebot/types"
)

var (
	_ CandleSource = (*ParquetStore)(nil)
	_ CandleWriter = (*ParquetStore)(nil)
)

// ParquetStore keeps candles in Parquet files, one per symbol and year:
//
//	<DataDir>/<timeframe>/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the on-disk schema.
type CandleRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (s *ParquetStore) WriteCandles(ctx context.Context, symbol, timeframe string, candles []types.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	byYear := make(map[int][]types.Candle)
	for _, c := range candles {
		y := c.Time().Year()
		byYear[y] = append(byYear[y], c)
	}
	for year, batch := range byYear {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.candlePath(symbol, timeframe, year)
		existing, err := readCandleFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeCandles(existing, batch)
		if err := writeCandleFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

func (s *ParquetStore) ReadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Candle, error) {
	var out []types.Candle
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := readCandleFile(s.candlePath(symbol, timeframe, year))
		if err != nil {
			return nil, err
		}
		for _, c := range candles {
			if inRange(c.Timestamp, start, end) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// candlePath returns the file holding symbol's candles for year.
func (s *ParquetStore) candlePath(symbol, timeframe string, year int) string {
	return filepath.Join(s.DataDir, timeframe, symbolDir(symbol), strconv.Itoa(year)+".parquet")
}

func writeCandleFile(path string, candles []types.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	records := make([]CandleRecord, len(candles))
	for i, c := range candles {
		records[i] = CandleRecord{
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	return parquet.WriteFile(path, records)
}

// readCandleFile returns nothing, without error, for a missing file.
func readCandleFile(path string) ([]types.Candle, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	records, err := parquet.ReadFile[CandleRecord](path)
	if err != nil {
		return nil, err
	}
	out := make([]types.Candle, len(records))
	for i, r := range records {
		out[i] = types.Candle{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return out, nil
}
