package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/evdnx/tradebot/store"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored backtest reports, or show the trades of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.v.GetString("report-db")
			if path == "" {
				path = a.cfg.Backtest.ReportDB
			}
			if path == "" {
				return errors.New("no report database: set --report-db or backtest.report_db")
			}
			reports, err := store.NewSQLiteReportStore(path)
			if err != nil {
				return err
			}
			defer reports.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 1 {
				r, err := reports.LoadReport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "ID\tTIME\tSIDE\tAMOUNT\tPRICE\tFEE\tINTENT")
				for _, t := range r.Trades {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.8f\t%.2f\t%.4f\t%s\n", t.ID,
						time.UnixMilli(t.Timestamp).UTC().Format(time.RFC3339), t.Side, t.Amount, t.Price, t.Fee, t.Metadata.Intent)
				}
				return nil
			}

			runs, err := reports.ListRuns(cmd.Context(), a.v.GetInt("limit"))
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tCREATED\tSYMBOL\tSTRATEGY\tTRADES\tRETURN\tSHARPE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f%%\t%s\n", r.RunID, r.CreatedAt.Format(time.RFC3339),
					r.Symbol, r.Strategy, r.Metrics.TotalTrades, r.Metrics.TotalReturn*100, ratio(r.Metrics.SharpeRatio))
			}
			return nil
		},
	}
	cmd.Flags().String("report-db", "", "SQLite report file (overrides config)")
	cmd.Flags().Int("limit", 20, "number of runs to list, 0 for all")
	return cmd
}
