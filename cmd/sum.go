package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sunledger/core/ledger"
)

var sumOpts struct {
	from, to string
}

var sumCmd = &cobra.Command{
	Use:   "sum",
	Short: "Print cost and savings totals for stored days",
	RunE:  runSum,
}

func init() {
	f := sumCmd.Flags()
	f.StringVar(&sumOpts.from, "from", "", "first day (YYYY-MM-DD), default --to")
	f.StringVar(&sumOpts.to, "to", "today", "last day (YYYY-MM-DD)")
	rootCmd.AddCommand(sumCmd)
}

func runSum(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	to, err := parseDate(sumOpts.to, time.Now())
	if err != nil {
		return err
	}
	from, err := parseDate(sumOpts.from, to)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	days, err := ledger.LoadDays(cmd.Context(), store, from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var all []*ledger.ReadingRecord
	for _, d := range days {
		t := ledger.Sum(d.Readings)
		if err := printTotals(out, d.Date, t); err != nil {
			return err
		}
		all = append(all, d.Readings...)
	}
	if len(days) > 1 {
		return printTotals(out, "total", ledger.Sum(all))
	}
	if len(days) == 0 {
		_, err = fmt.Fprintln(out, "no stored days in range")
	}
	return err
}

func printTotals(w io.Writer, label string, t ledger.Totals) error {
	_, err := fmt.Fprintf(w, "%-10s import %.2f kWh cost %.2f (cheap %.2f, expensive %.2f) saved %.2f (pv %.2f, battery %.2f) windows %d/%d anomalies %d\n",
		label, t.Import, t.ImportCost(), t.ImportCostCheap, t.ImportCostExpensive,
		t.Savings(), t.PVSavings, t.ImportSavings, t.Recorded, t.Recorded+t.Missing, t.Anomalies)
	return err
}
