// Package backtest replays stored history day by day: each day is planned
// against the average consumption profile and the chosen plan is then
// evaluated against the consumption actually recorded.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/forecast"
	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/core/logger"
	"github.com/kilianp07/sunledger/core/planner"
)

// DaySource yields stored day records.
type DaySource interface {
	Day(ctx context.Context, day time.Time) (ledger.DayRecord, bool, error)
}

// StoreSource reads days from a ledger store.
type StoreSource struct {
	Store ledger.Store
}

func (s StoreSource) Day(ctx context.Context, day time.Time) (ledger.DayRecord, bool, error) {
	rec, err := s.Store.Read(ctx, ledger.KindReadings, ledger.DayKey(day))
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.DayRecord{}, false, nil
	}
	if err != nil {
		return ledger.DayRecord{}, false, err
	}
	return rec, true, nil
}

// Evaluation compares a plan with the all-Balance plan on the same inputs.
type Evaluation struct {
	RealizedCost float64 `json:"realized_cost"`
	BaselineCost float64 `json:"baseline_cost"`
	Savings      float64 `json:"savings"`
	FinalKWh     float64 `json:"final_kwh"`
	MissingSlots []int   `json:"missing_slots,omitempty"`
}

// Evaluate simulates plan against actual consumption and reports the saving
// over doing nothing but balancing.
func Evaluate(sim *battery.Simulator, initialKWh float64, actual, price battery.Profile, plan battery.Plan) (Evaluation, error) {
	res, err := sim.Simulate(initialKWh, actual, price, plan)
	if err != nil {
		return Evaluation{}, err
	}
	base, err := sim.Simulate(initialKWh, actual, price, battery.Plan{})
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		RealizedCost: res.TotalCost,
		BaselineCost: base.TotalCost,
		Savings:      base.TotalCost - res.TotalCost,
		FinalKWh:     res.FinalKWh,
		MissingSlots: res.MissingSlots,
	}, nil
}

// Config drives a backtest.
type Config struct {
	Simulator  *battery.Simulator
	Prices     forecast.PriceSource
	From, To   time.Time
	InitialKWh float64
	MaxPasses  int
	Log        logger.Logger
}

// DayReport is the outcome of one simulated day.
type DayReport struct {
	Date        string       `json:"date"`
	Plan        battery.Plan `json:"plan"`
	Passes      int          `json:"passes"`
	StartKWh    float64      `json:"start_kwh"`
	PlannedCost float64      `json:"planned_cost"`
	GreedyCost  float64      `json:"greedy_cost"`
	Evaluation
}

// Report aggregates a backtest.
type Report struct {
	Days          []DayReport `json:"days"`
	SkippedDays   []string    `json:"skipped_days,omitempty"`
	TotalRealized float64     `json:"total_realized"`
	TotalBaseline float64     `json:"total_baseline"`
	TotalGreedy   float64     `json:"total_greedy"`
	TotalSavings  float64     `json:"total_savings"`
	SavedPercent  float64     `json:"saved_percent"`
	MissingSlots  int         `json:"missing_slots"`
}

// Run backtests every day from cfg.From to cfg.To inclusive. The battery
// level carries over from one day to the next; days without a record or
// without prices are skipped and leave it unchanged.
func Run(ctx context.Context, cfg Config, src DaySource) (Report, error) {
	var rep Report
	if cfg.Simulator == nil || cfg.Prices == nil {
		return rep, errors.New("backtest needs a simulator and a price source")
	}
	if cfg.To.Before(cfg.From) {
		return rep, fmt.Errorf("backtest range ends %s before it starts %s", ledger.DayKey(cfg.To), ledger.DayKey(cfg.From))
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop{}
	}
	if err := cfg.Simulator.CheckInitial(cfg.InitialKWh); err != nil {
		return rep, err
	}

	var days []ledger.DayRecord
	var dates []time.Time
	for d := ledger.StartOfDay(cfg.From); !d.After(ledger.StartOfDay(cfg.To)); d = d.AddDate(0, 0, 1) {
		rec, ok, err := src.Day(ctx, d)
		if err != nil {
			return rep, fmt.Errorf("load %s: %w", ledger.DayKey(d), err)
		}
		if !ok {
			rep.SkippedDays = append(rep.SkippedDays, ledger.DayKey(d))
			log.Warnf("no readings for %s, skipping", ledger.DayKey(d))
			continue
		}
		days = append(days, rec)
		dates = append(dates, d)
	}
	profile := forecast.DailyProfile(days)

	level := cfg.InitialKWh
	for i, rec := range days {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		date := dates[i]
		price := cfg.Prices.Day(date)
		if _, n := price.Mean(); n == 0 {
			rep.SkippedDays = append(rep.SkippedDays, rec.Date)
			log.Warnf("no prices for %s, skipping", rec.Date)
			continue
		}
		dr, err := runDay(cfg, level, profile, price, rec)
		if err != nil {
			return rep, fmt.Errorf("day %s: %w", rec.Date, err)
		}
		if len(dr.MissingSlots) > 0 {
			log.Warnf("%s: %d slots without price or consumption excluded", rec.Date, len(dr.MissingSlots))
		}
		level = dr.FinalKWh
		rep.Days = append(rep.Days, dr)
		rep.TotalRealized += dr.RealizedCost
		rep.TotalBaseline += dr.BaselineCost
		rep.TotalGreedy += dr.GreedyCost
		rep.TotalSavings += dr.Savings
		rep.MissingSlots += len(dr.MissingSlots)
	}
	if rep.TotalBaseline != 0 {
		rep.SavedPercent = rep.TotalSavings / rep.TotalBaseline * 100
	}
	return rep, nil
}

func runDay(cfg Config, level float64, profile, price battery.Profile, rec ledger.DayRecord) (DayReport, error) {
	sim := cfg.Simulator
	out, err := planner.Optimize(sim, level, profile, price, cfg.MaxPasses)
	if err != nil {
		return DayReport{}, err
	}
	actual := forecast.DayProfile(rec)
	ev, err := Evaluate(sim, level, actual, price, out.Plan)
	if err != nil {
		return DayReport{}, err
	}
	greedy, err := planner.GreedyCharge(level, sim.CapacityKWh(), sim.MaxPowerKW(), price)
	if err != nil {
		return DayReport{}, err
	}
	g, err := sim.Simulate(level, actual, price, greedy)
	if err != nil {
		return DayReport{}, err
	}
	return DayReport{
		Date:        rec.Date,
		Plan:        out.Plan,
		Passes:      out.Passes,
		StartKWh:    level,
		PlannedCost: out.Result.TotalCost,
		GreedyCost:  g.TotalCost,
		Evaluation:  ev,
	}, nil
}
