package metrics

import (
	"time"

	"github.com/kilianp07/sunledger/core/backtest"
	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/core/odometer"
	"github.com/kilianp07/sunledger/core/planner"
)

// Event is implemented by every event published by the control loop.
type Event interface {
	EventTime() time.Time
}

// ReadingEvent is emitted when a ledger window closes.
type ReadingEvent struct {
	Day    string
	Record ledger.ReadingRecord
	Totals ledger.Totals
	Time   time.Time
}

// StateEvent carries the register values after a poll.
type StateEvent struct {
	Registers odometer.Snapshot
	Time      time.Time
}

// AnomalyEvent reports a cumulative register that went backwards.
type AnomalyEvent struct {
	Anomaly odometer.Anomaly
	Time    time.Time
}

// PlanEvent is emitted when a day's dispatch plan is computed.
type PlanEvent struct {
	PlanID       string
	Day          string
	InitialKWh   float64
	Outcome      planner.Outcome
	Price        battery.Profile
	Consumption  battery.Profile
	GreedyCost   float64
	MissingSlots []int
	Time         time.Time
}

// EvaluationEvent compares a finished day's plan with what it would have
// cost on the consumption actually recorded.
type EvaluationEvent struct {
	PlanID      string
	Day         string
	PlannedCost float64
	backtest.Evaluation
	Time time.Time
}

func (e ReadingEvent) EventTime() time.Time    { return e.Time }
func (e StateEvent) EventTime() time.Time      { return e.Time }
func (e AnomalyEvent) EventTime() time.Time    { return e.Time }
func (e PlanEvent) EventTime() time.Time       { return e.Time }
func (e EvaluationEvent) EventTime() time.Time { return e.Time }

// MetricsSink records closed ledger windows.
type MetricsSink interface {
	RecordReading(ev ReadingEvent) error
}

// StateRecorder records instantaneous register values.
type StateRecorder interface {
	RecordState(ev StateEvent) error
}

// AnomalyRecorder records odometer anomalies.
type AnomalyRecorder interface {
	RecordAnomaly(ev AnomalyEvent) error
}

// PlanRecorder records computed dispatch plans.
type PlanRecorder interface {
	RecordPlan(ev PlanEvent) error
}

// EvaluationRecorder records plan evaluations.
type EvaluationRecorder interface {
	RecordEvaluation(ev EvaluationEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordReading(ReadingEvent) error       { return nil }
func (NopSink) RecordState(StateEvent) error           { return nil }
func (NopSink) RecordAnomaly(AnomalyEvent) error       { return nil }
func (NopSink) RecordPlan(PlanEvent) error             { return nil }
func (NopSink) RecordEvaluation(EvaluationEvent) error { return nil }

// Record dispatches ev to the matching method of sink, ignoring events the
// sink does not record.
func Record(sink MetricsSink, ev Event) error {
	switch e := ev.(type) {
	case ReadingEvent:
		return sink.RecordReading(e)
	case StateEvent:
		if r, ok := sink.(StateRecorder); ok {
			return r.RecordState(e)
		}
	case AnomalyEvent:
		if r, ok := sink.(AnomalyRecorder); ok {
			return r.RecordAnomaly(e)
		}
	case PlanEvent:
		if r, ok := sink.(PlanRecorder); ok {
			return r.RecordPlan(e)
		}
	case EvaluationEvent:
		if r, ok := sink.(EvaluationRecorder); ok {
			return r.RecordEvaluation(e)
		}
	}
	return nil
}
