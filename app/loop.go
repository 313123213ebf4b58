package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sunledger/api"
	"github.com/kilianp07/sunledger/core/backtest"
	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/forecast"
	"github.com/kilianp07/sunledger/core/ledger"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/core/monitoring"
	"github.com/kilianp07/sunledger/core/odometer"
	"github.com/kilianp07/sunledger/core/planner"
)

type activePlan struct {
	id      string
	day     string
	date    time.Time
	price   battery.Profile
	profile battery.Profile
	plan    planner.DayPlan
}

// Step runs one iteration of the control loop: poll the inverter when the
// poll interval has elapsed, advance the ledger clock and plan a new day
// once the battery level is known.
func (s *Service) Step(ctx context.Context) {
	now := s.now()
	if s.lastPoll.IsZero() || now.Sub(s.lastPoll) >= s.cfg.Loop.PollInterval() {
		s.lastPoll = now
		s.poll(ctx, now)
	}

	day := s.ledger.Day()
	rec, err := s.ledger.Tick(ctx, now, s.lastPct)
	if err != nil {
		s.log.Errorf("close window: %v", err)
		monitoring.CaptureError("ledger", err)
	}
	if rec != nil {
		s.bus.Publish(coremetrics.ReadingEvent{Day: s.ledger.Day(), Record: *rec, Totals: s.ledger.Totals(), Time: now})
	}
	if rec != nil || day != s.ledger.Day() {
		s.publishDays()
	}

	if s.ledger.Day() != s.planned && s.lastPct != nil {
		s.rollover(ctx, now)
	}
}

func (s *Service) poll(ctx context.Context, now time.Time) {
	snap, err := s.poller.Poll(ctx)
	if err != nil {
		s.log.Warnf("poll inverter: %v", err)
		return
	}
	deltas := s.tracker.Observe(snap)
	s.ledger.Accumulate(deltas)
	for _, a := range deltas.Anomalies {
		s.bus.Publish(coremetrics.AnomalyEvent{Anomaly: a, Time: now})
	}
	if n := len(deltas.Anomalies); n > 0 {
		s.status.AddAnomalies(n)
	}
	if pct, ok := snap.Value(odometer.RegBatteryChargeLevel); ok {
		s.lastPct = &pct
	}
	s.status.SetInstant(snap)
	s.bus.Publish(coremetrics.StateEvent{Registers: snap, Time: now})
}

func (s *Service) publishDays() {
	y := ledger.DayRecord{Readings: s.ledger.Yesterday()}
	if d, err := time.Parse(ledger.DateLayout, s.ledger.Day()); err == nil {
		y.Date = ledger.DayKey(d.AddDate(0, 0, -1))
	}
	s.status.SetDays(s.ledger.TodayRecord(), y, s.ledger.Totals())
}

// rollover evaluates the plan of the day that just ended and plans the new
// day. It runs once per day even when planning fails.
func (s *Service) rollover(ctx context.Context, now time.Time) {
	day := s.ledger.Day()
	s.planned = day
	if s.current != nil && s.current.day != day {
		s.evaluate(s.current, now)
	}
	if s.prices == nil {
		return
	}
	date, err := time.Parse(ledger.DateLayout, day)
	if err != nil {
		s.log.Errorf("bad ledger day %q: %v", day, err)
		return
	}
	ap, err := s.plan(ctx, date)
	if err != nil {
		s.log.Warnf("plan %s: %v", day, err)
		if !errors.Is(err, errNoHistory) {
			monitoring.CaptureError("planner", err)
		}
		s.current = nil
		return
	}
	s.current = ap
	s.status.SetPlan(planStatus(ap, now))
	s.bus.Publish(coremetrics.PlanEvent{
		PlanID:       ap.id,
		Day:          ap.day,
		InitialKWh:   ap.plan.InitialKWh,
		Outcome:      ap.plan.Outcome,
		Price:        ap.price,
		Consumption:  ap.profile,
		GreedyCost:   ap.plan.GreedyResult.TotalCost,
		MissingSlots: ap.plan.Result.MissingSlots,
		Time:         now,
	})
}

var errNoHistory = errors.New("no consumption history")

func (s *Service) plan(ctx context.Context, date time.Time) (*activePlan, error) {
	price := s.prices.Day(date)
	if _, n := price.Mean(); n == 0 {
		return nil, errors.New("no prices for the day")
	}
	from := date.AddDate(0, 0, -s.cfg.Planner.HistoryDays)
	days, err := ledger.LoadDays(ctx, s.store, from, date.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	profile := forecast.DailyProfile(days)
	if len(profile.MissingSlots()) == battery.SlotsPerDay {
		return nil, errNoHistory
	}
	initial := planner.LevelKWh(*s.lastPct, s.sim.CapacityKWh())
	dp, err := planner.PlanDay(s.sim, initial, profile, price, s.cfg.Planner.MaxPasses)
	if err != nil {
		return nil, err
	}
	if n := len(dp.Result.MissingSlots); n > 0 {
		s.log.Warnf("%s: %d slots without price or consumption excluded from the plan", ledger.DayKey(date), n)
	}
	s.log.Infof("planned %s: cost %.2f, greedy %.2f, %d imports, %d exports after %d passes",
		ledger.DayKey(date), dp.Result.TotalCost, dp.GreedyResult.TotalCost,
		dp.Plan.Count(battery.Import), dp.Plan.Count(battery.Export), dp.Passes)
	return &activePlan{id: uuid.NewString(), day: ledger.DayKey(date), date: date, price: price, profile: profile, plan: dp}, nil
}

// evaluate replays a finished day's plan on the consumption recorded that day.
func (s *Service) evaluate(ap *activePlan, now time.Time) {
	if want := ledger.DayKey(ap.date.AddDate(0, 0, 1)); want != s.ledger.Day() {
		s.log.Warnf("plan %s not evaluated: ledger moved on to %s", ap.day, s.ledger.Day())
		return
	}
	actual := forecast.DayProfile(ledger.DayRecord{Date: ap.day, Readings: s.ledger.Yesterday()})
	ev, err := backtest.Evaluate(s.sim, ap.plan.InitialKWh, actual, ap.price, ap.plan.Plan)
	if err != nil {
		s.log.Warnf("evaluate plan %s: %v", ap.day, err)
		monitoring.CaptureError("planner", err)
		return
	}
	s.log.Infof("plan %s: planned %.2f, realized %.2f, baseline %.2f", ap.day, ap.plan.Result.TotalCost, ev.RealizedCost, ev.BaselineCost)
	s.bus.Publish(coremetrics.EvaluationEvent{
		PlanID:      ap.id,
		Day:         ap.day,
		PlannedCost: ap.plan.Result.TotalCost,
		Evaluation:  ev,
		Time:        now,
	})
}

func planStatus(ap *activePlan, now time.Time) api.PlanStatus {
	ps := api.PlanStatus{
		PlanID:     ap.id,
		Day:        ap.day,
		InitialKWh: ap.plan.InitialKWh,
		Modes:      ap.plan.Plan,
		Cost:       ap.plan.Result.TotalCost,
		GreedyCost: ap.plan.GreedyResult.TotalCost,
		Generated:  now,
	}
	for i, tr := range ap.plan.Result.Trace {
		ps.BatteryKWh[i] = tr.BatteryKWh
	}
	return ps
}
