package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/sunledger/core/battery"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/core/odometer"
)

// PromSink exposes ledger and planner events as Prometheus metrics.
type PromSink struct {
	energy    *prometheus.CounterVec
	cost      *prometheus.CounterVec
	savings   *prometheus.CounterVec
	battery   prometheus.Gauge
	cheap     prometheus.Gauge
	registers *prometheus.GaugeVec
	anomalies *prometheus.CounterVec
	planCost  prometheus.Gauge
	planSlots *prometheus.GaugeVec
	passes    prometheus.Gauge
	realized  *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		energy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunledger_energy_kwh_total",
			Help: "Energy recorded in closed ledger windows",
		}, []string{"counter"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunledger_import_cost_total",
			Help: "Grid import cost by tariff",
		}, []string{"tariff"}),
		savings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunledger_savings_total",
			Help: "Battery savings by kind",
		}, []string{"kind"}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunledger_battery_level_percent",
			Help: "Battery charge level at the last window end",
		}),
		cheap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunledger_cheap_rate",
			Help: "1 when the last closed window was on the cheap tariff",
		}),
		registers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunledger_register_value",
			Help: "Last decoded inverter register value",
		}, []string{"register"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunledger_odometer_anomalies_total",
			Help: "Cumulative registers seen going backwards",
		}, []string{"counter"}),
		planCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunledger_plan_expected_cost",
			Help: "Simulated cost of the current day's plan",
		}),
		planSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunledger_plan_slots",
			Help: "Planning slots per dispatch mode in the current plan",
		}, []string{"mode"}),
		passes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunledger_plan_search_passes",
			Help: "Local search passes used by the current plan",
		}),
		realized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunledger_plan_evaluation",
			Help: "Evaluation of the previous day's plan against actual consumption",
		}, []string{"value"}),
	}
	var err error
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, s.cost); err != nil {
		return nil, err
	}
	if s.savings, err = register(reg, s.savings); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.cheap, err = register(reg, s.cheap); err != nil {
		return nil, err
	}
	if s.registers, err = register(reg, s.registers); err != nil {
		return nil, err
	}
	if s.anomalies, err = register(reg, s.anomalies); err != nil {
		return nil, err
	}
	if s.planCost, err = register(reg, s.planCost); err != nil {
		return nil, err
	}
	if s.planSlots, err = register(reg, s.planSlots); err != nil {
		return nil, err
	}
	if s.passes, err = register(reg, s.passes); err != nil {
		return nil, err
	}
	if s.realized, err = register(reg, s.realized); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func addPositive(c prometheus.Counter, v float64) {
	if v > 0 {
		c.Add(v)
	}
}

// RecordReading accumulates the window's energy, cost and savings.
func (s *PromSink) RecordReading(ev coremetrics.ReadingEvent) error {
	r := ev.Record
	for _, c := range []odometer.Counter{odometer.PV, odometer.House, odometer.Import, odometer.Export, odometer.BatteryCharge, odometer.BatteryDischarge} {
		addPositive(s.energy.WithLabelValues(string(c)), r.Get(c))
	}
	addPositive(s.cost.WithLabelValues("cheap"), r.ImportCostCheap)
	addPositive(s.cost.WithLabelValues("expensive"), r.ImportCostExpensive)
	addPositive(s.savings.WithLabelValues("pv"), r.PVSavings)
	addPositive(s.savings.WithLabelValues("import"), r.ImportSavings)
	if r.BatteryLevel != nil {
		s.battery.Set(*r.BatteryLevel)
	}
	if r.Cheap {
		s.cheap.Set(1)
	} else {
		s.cheap.Set(0)
	}
	return nil
}

// RecordState mirrors the latest register values.
func (s *PromSink) RecordState(ev coremetrics.StateEvent) error {
	for name, r := range ev.Registers {
		s.registers.WithLabelValues(name).Set(r.Value)
	}
	return nil
}

// RecordAnomaly counts a clamped counter decrease.
func (s *PromSink) RecordAnomaly(ev coremetrics.AnomalyEvent) error {
	s.anomalies.WithLabelValues(string(ev.Anomaly.Counter)).Inc()
	return nil
}

// RecordPlan exposes the current plan summary.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.planCost.Set(ev.Outcome.Result.TotalCost)
	s.passes.Set(float64(ev.Outcome.Passes))
	for _, m := range battery.Modes {
		s.planSlots.WithLabelValues(m.String()).Set(float64(ev.Outcome.Plan.Count(m)))
	}
	return nil
}

// RecordEvaluation exposes the previous day's realized plan outcome.
func (s *PromSink) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	s.realized.WithLabelValues("planned_cost").Set(ev.PlannedCost)
	s.realized.WithLabelValues("realized_cost").Set(ev.RealizedCost)
	s.realized.WithLabelValues("baseline_cost").Set(ev.BaselineCost)
	s.realized.WithLabelValues("savings").Set(ev.Savings)
	return nil
}
