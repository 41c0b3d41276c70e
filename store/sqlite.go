package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/evdnx/tradebot/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ ReportStore = (*SQLiteReportStore)(nil)

const reportSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	start_ms INTEGER NOT NULL,
	end_ms INTEGER NOT NULL,
	created_ms INTEGER NOT NULL,
	initial_capital REAL NOT NULL,
	final_capital REAL NOT NULL,
	total_return REAL NOT NULL,
	profit_factor REAL,
	sharpe_ratio REAL,
	max_drawdown REAL NOT NULL,
	total_trades INTEGER NOT NULL,
	winning_trades INTEGER NOT NULL,
	losing_trades INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	total_fees REAL NOT NULL,
	realized_pnl REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_ms);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	trade_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	price REAL NOT NULL,
	status TEXT NOT NULL,
	fee REAL NOT NULL,
	ts INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	intent TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	ts INTEGER NOT NULL,
	balance REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteReportStore keeps backtest reports in a SQLite database. Infinite
// ratios (profit factor, Sharpe) are stored as NULL and read back as +Inf.
type SQLiteReportStore struct {
	db *sql.DB
}

// NewSQLiteReportStore opens (or creates) the database at dbPath and makes
// sure the schema exists.
func NewSQLiteReportStore(dbPath string) (*SQLiteReportStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(reportSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating report schema: %w", err)
	}
	return &SQLiteReportStore{db: db}, nil
}

func (s *SQLiteReportStore) Close() error {
	return s.db.Close()
}

// SaveReport writes the run, its trades and its equity curve in one
// transaction. Saving the same run id twice replaces the earlier copy.
func (s *SQLiteReportStore) SaveReport(ctx context.Context, r Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{
		`DELETE FROM trades WHERE run_id = ?`,
		`DELETE FROM equity WHERE run_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, q, r.RunID); err != nil {
			return err
		}
	}

	m := r.Metrics
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs (run_id, strategy, symbol, timeframe, start_ms, end_ms, created_ms,
		initial_capital, final_capital, total_return, profit_factor, sharpe_ratio, max_drawdown,
		total_trades, winning_trades, losing_trades, win_rate, total_fees, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Strategy, r.Symbol, r.Timeframe, r.Start.UnixMilli(), r.End.UnixMilli(), r.CreatedAt.UnixMilli(),
		m.InitialCapital, m.FinalCapital, m.TotalReturn, nullable(m.ProfitFactor), nullable(m.SharpeRatio), m.MaxDrawdown,
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate, m.TotalFees, m.RealizedPnL)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}

	for i, t := range r.Trades {
		_, err = tx.ExecContext(ctx, `INSERT INTO trades (run_id, seq, trade_id, symbol, side, type, amount, price, status, fee, ts, strategy, intent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, t.ID, t.Symbol, string(t.Side), string(t.Type), t.Amount, t.Price, string(t.Status), t.Fee, t.Timestamp,
			t.Metadata.Strategy, string(t.Metadata.Intent))
		if err != nil {
			return fmt.Errorf("saving trade %s: %w", t.ID, err)
		}
	}
	for i, p := range r.Equity {
		if _, err = tx.ExecContext(ctx, `INSERT INTO equity (run_id, seq, ts, balance) VALUES (?, ?, ?, ?)`,
			r.RunID, i, p.Timestamp, p.Balance); err != nil {
			return fmt.Errorf("saving equity point %d: %w", i, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, strategy, symbol, timeframe, created_ms, initial_capital, final_capital, total_return,
	profit_factor, sharpe_ratio, max_drawdown, total_trades, winning_trades, losing_trades, win_rate, total_fees, realized_pnl`

func (s *SQLiteReportStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY created_ms DESC, run_id ASC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		sum, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		sum       RunSummary
		createdMs int64
		pf, sr    sql.NullFloat64
	)
	m := &sum.Metrics
	if err := row.Scan(&sum.RunID, &sum.Strategy, &sum.Symbol, &sum.Timeframe, &createdMs,
		&m.InitialCapital, &m.FinalCapital, &m.TotalReturn, &pf, &sr, &m.MaxDrawdown,
		&m.TotalTrades, &m.WinningTrades, &m.LosingTrades, &m.WinRate, &m.TotalFees, &m.RealizedPnL); err != nil {
		return RunSummary{}, fmt.Errorf("failed to scan run row: %w", err)
	}
	sum.CreatedAt = time.UnixMilli(createdMs).UTC()
	m.ProfitFactor = fromNullable(pf)
	m.SharpeRatio = fromNullable(sr)
	return sum, nil
}

// LoadReport reads a full report back, trades and equity in their
// original order.
func (s *SQLiteReportStore) LoadReport(ctx context.Context, runID string) (*Report, error) {
	var startMs, endMs int64
	row := s.db.QueryRowContext(ctx, `SELECT start_ms, end_ms, `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	sum, err := scanRun(prefixScanner{row: row, prefix: []any{&startMs, &endMs}})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	r := &Report{
		RunID:     sum.RunID,
		Strategy:  sum.Strategy,
		Symbol:    sum.Symbol,
		Timeframe: sum.Timeframe,
		Start:     time.UnixMilli(startMs).UTC(),
		End:       time.UnixMilli(endMs).UTC(),
		CreatedAt: sum.CreatedAt,
		Metrics:   sum.Metrics,
	}

	trows, err := s.db.QueryContext(ctx, `SELECT trade_id, symbol, side, type, amount, price, status, fee, ts, strategy, intent
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var (
			t                         types.Trade
			side, typ, status, intent string
		)
		if err := trows.Scan(&t.ID, &t.Symbol, &side, &typ, &t.Amount, &t.Price, &status, &t.Fee, &t.Timestamp,
			&t.Metadata.Strategy, &intent); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		t.Side = types.Side(side)
		t.Type = types.OrderType(typ)
		t.Status = types.OrderStatus(status)
		t.Metadata.Intent = types.Intent(intent)
		r.Trades = append(r.Trades, t)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.db.QueryContext(ctx, `SELECT ts, balance FROM equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var p types.EquityPoint
		if err := erows.Scan(&p.Timestamp, &p.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan equity row: %w", err)
		}
		r.Equity = append(r.Equity, p)
	}
	return r, erows.Err()
}

// prefixScanner scans leading columns into prefix before handing the rest
// to the run scanner.
type prefixScanner struct {
	row    *sql.Row
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
