package metrics

import "errors"

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// forward delivers ev to every sink. A failing sink does not prevent delivery
// to the others; all errors are joined.
func (m *MultiSink) forward(ev Event) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := Record(s, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordReading(ev ReadingEvent) error       { return m.forward(ev) }
func (m *MultiSink) RecordState(ev StateEvent) error           { return m.forward(ev) }
func (m *MultiSink) RecordAnomaly(ev AnomalyEvent) error       { return m.forward(ev) }
func (m *MultiSink) RecordPlan(ev PlanEvent) error             { return m.forward(ev) }
func (m *MultiSink) RecordEvaluation(ev EvaluationEvent) error { return m.forward(ev) }

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
