package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/core/odometer"
	"github.com/kilianp07/sunledger/core/planner"
)

func TestPromSinkRecordsReadings(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	level := 80.0
	r := ledger.ReadingRecord{Cheap: true, BatteryLevel: &level, ImportCostCheap: 0.3, ImportSavings: 0.1}
	r.PV = 1.5
	r.Import = 2
	for i := 0; i < 2; i++ {
		require.NoError(t, sink.RecordReading(coremetrics.ReadingEvent{Record: r}))
	}
	assert.InDelta(t, 3, testutil.ToFloat64(sink.energy.WithLabelValues("pv")), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(sink.energy.WithLabelValues("import")), 1e-9)
	assert.InDelta(t, 0.6, testutil.ToFloat64(sink.cost.WithLabelValues("cheap")), 1e-9)
	assert.InDelta(t, 0.2, testutil.ToFloat64(sink.savings.WithLabelValues("import")), 1e-9)
	assert.Equal(t, 80.0, testutil.ToFloat64(sink.battery))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.cheap))
}

func TestPromSinkStateAnomalyAndPlan(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordState(coremetrics.StateEvent{Registers: odometer.Snapshot{
		odometer.RegPVPower: {Value: 2500, At: time.Now()},
	}}))
	assert.Equal(t, 2500.0, testutil.ToFloat64(sink.registers.WithLabelValues(odometer.RegPVPower)))

	require.NoError(t, sink.RecordAnomaly(coremetrics.AnomalyEvent{Anomaly: odometer.Anomaly{Counter: odometer.Import}}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.anomalies.WithLabelValues("import")))

	var plan battery.Plan
	plan[0] = battery.Import
	plan[1] = battery.Import
	plan[40] = battery.Export
	out := planner.Outcome{Plan: plan, Passes: 4, Result: battery.Result{TotalCost: 123}}
	require.NoError(t, sink.RecordPlan(coremetrics.PlanEvent{Outcome: out}))
	assert.Equal(t, 123.0, testutil.ToFloat64(sink.planCost))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.passes))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.planSlots.WithLabelValues("import")))
	assert.Equal(t, 45.0, testutil.ToFloat64(sink.planSlots.WithLabelValues("balance")))

	require.NoError(t, sink.RecordEvaluation(coremetrics.EvaluationEvent{PlannedCost: 10}))
	assert.Equal(t, 10.0, testutil.ToFloat64(sink.realized.WithLabelValues("planned_cost")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	first.energy.WithLabelValues("pv").Add(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.energy.WithLabelValues("pv")))
}
