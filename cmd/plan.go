package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/forecast"
	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/core/planner"
	"github.com/kilianp07/sunledger/infra/logger"
	"github.com/kilianp07/sunledger/pkg/export"
)

var planOpts struct {
	date       string
	prices     string
	initialKWh float64
	format     string
	greedy     bool
	output     string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the dispatch plan for a day",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planOpts.date, "date", "tomorrow", "day to plan (YYYY-MM-DD, today, tomorrow)")
	f.StringVar(&planOpts.prices, "prices", "", "price file, overrides planner.price_file")
	f.Float64Var(&planOpts.initialKWh, "initial-kwh", -1, "battery energy at the start of the day, default from the last stored level")
	f.StringVarP(&planOpts.format, "format", "f", "json", "output format: json or csv")
	f.BoolVar(&planOpts.greedy, "greedy", false, "include the greedy baseline")
	f.StringVarP(&planOpts.output, "output", "o", "", "output file, default stdout")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("plan")
	day, err := parseDate(planOpts.date, time.Now())
	if err != nil {
		return err
	}
	if planOpts.format != "json" && planOpts.format != "csv" {
		return fmt.Errorf("unknown format %q", planOpts.format)
	}

	pricePath := cfg.Planner.PriceFile
	if planOpts.prices != "" {
		pricePath = planOpts.prices
	}
	src, err := forecast.NewPriceSource(pricePath, cfg.Planner.FlatPrice)
	if err != nil {
		return err
	}
	price := src.Day(day)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	days, err := ledger.LoadDays(cmd.Context(), store, day.AddDate(0, 0, -cfg.Planner.HistoryDays), day.AddDate(0, 0, -1))
	if err != nil {
		return err
	}
	profile := forecast.DailyProfile(days)
	log.Infof("consumption profile from %d days, %d slots missing", len(days), len(profile.MissingSlots()))

	sim, err := cfg.Battery.Simulator()
	if err != nil {
		return err
	}
	initial := planOpts.initialKWh
	if initial < 0 {
		initial = planner.LevelKWh(lastLevel(days), sim.CapacityKWh())
	}

	dp, err := planner.PlanDay(sim, initial, profile, price, cfg.Planner.MaxPasses)
	if err != nil {
		return err
	}
	if !dp.Converged {
		log.Warnf("search stopped after %d passes without converging", dp.Passes)
	}

	var greedy *battery.Plan
	if planOpts.greedy {
		greedy = &dp.Greedy
	}
	rows := export.PlanRows(day, dp.Plan, dp.Result, price, profile, greedy)

	w, closeOut, err := output(planOpts.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if planOpts.format == "csv" {
		err = export.WritePlanCSV(w, rows)
	} else {
		doc := export.PlanDoc{
			Day:        ledger.DayKey(day),
			InitialKWh: initial,
			Cost:       dp.Result.TotalCost,
			FinalKWh:   dp.Result.FinalKWh,
			Fitness:    dp.Fitness,
			Passes:     dp.Passes,
			Converged:  dp.Converged,
			Missing:    dp.Result.MissingSlots,
			Slots:      rows,
		}
		if planOpts.greedy {
			g := dp.GreedyResult.TotalCost
			doc.GreedyCost = &g
		}
		err = export.WritePlanJSON(w, doc)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

// lastLevel returns the most recent stored battery percentage, 0 if none.
func lastLevel(days []ledger.DayRecord) float64 {
	for i := len(days) - 1; i >= 0; i-- {
		rs := days[i].Readings
		for j := len(rs) - 1; j >= 0; j-- {
			if rs[j] != nil && rs[j].BatteryLevel != nil {
				return *rs[j].BatteryLevel
			}
		}
	}
	return 0
}
