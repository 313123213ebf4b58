package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sunledger/core/backtest"
	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/forecast"
	"github.com/kilianp07/sunledger/infra/logger"
)

var backtestOpts struct {
	from, to   string
	prices     string
	initialKWh float64
	format     string
	output     string
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay stored days against the optimizer and the all-balance baseline",
	RunE:  runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&backtestOpts.from, "from", "", "first day (YYYY-MM-DD), default history_days ago")
	f.StringVar(&backtestOpts.to, "to", "yesterday", "last day (YYYY-MM-DD)")
	f.StringVar(&backtestOpts.prices, "prices", "", "price file, overrides planner.price_file")
	f.Float64Var(&backtestOpts.initialKWh, "initial-kwh", 0, "battery energy at the start of the first day")
	f.StringVarP(&backtestOpts.format, "format", "f", "text", "output format: text or json")
	f.StringVarP(&backtestOpts.output, "output", "o", "", "output file, default stdout")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	to, err := parseDate(backtestOpts.to, time.Now())
	if err != nil {
		return err
	}
	from, err := parseDate(backtestOpts.from, to.AddDate(0, 0, 1-cfg.Planner.HistoryDays))
	if err != nil {
		return err
	}
	if backtestOpts.format != "text" && backtestOpts.format != "json" {
		return fmt.Errorf("unknown format %q", backtestOpts.format)
	}

	pricePath := cfg.Planner.PriceFile
	if backtestOpts.prices != "" {
		pricePath = backtestOpts.prices
	}
	prices, err := forecast.NewPriceSource(pricePath, cfg.Planner.FlatPrice)
	if err != nil {
		return err
	}
	sim, err := cfg.Battery.Simulator()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := backtest.Run(cmd.Context(), backtest.Config{
		Simulator:  sim,
		Prices:     prices,
		From:       from,
		To:         to,
		InitialKWh: backtestOpts.initialKWh,
		MaxPasses:  cfg.Planner.MaxPasses,
		Log:        logger.New("backtest"),
	}, backtest.StoreSource{Store: store})
	if err != nil {
		return err
	}

	w, closeOut, err := output(backtestOpts.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if backtestOpts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	} else {
		err = writeReport(w, rep)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func writeReport(w io.Writer, rep backtest.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tstart kWh\timports\texports\tplanned\trealized\tbaseline\tgreedy\tsavings\t")
	for _, d := range rep.Days {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			d.Date, d.StartKWh, d.Plan.Count(battery.Import), d.Plan.Count(battery.Export),
			d.PlannedCost, d.RealizedCost, d.BaselineCost, d.GreedyCost, d.Savings)
	}
	fmt.Fprintf(tw, "total\t\t\t\t\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
		rep.TotalRealized, rep.TotalBaseline, rep.TotalGreedy, rep.TotalSavings)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "saved %.1f%% over %d days, %d skipped, %d slots missing\n",
		rep.SavedPercent, len(rep.Days), len(rep.SkippedDays), rep.MissingSlots)
	return err
}
