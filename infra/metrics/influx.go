package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/sunledger/core/battery"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/infra/logger"
)

// InfluxSink writes ledger windows, plans and evaluations to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordReading writes one point per closed window, timestamped at its end.
func (s *InfluxSink) RecordReading(ev coremetrics.ReadingEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := ev.Record
	p := write.NewPointWithMeasurement("ledger_reading").
		AddTag("day", ev.Day).
		AddTag("tariff", tariffTag(r.Cheap)).
		AddField("window", r.Window).
		AddField("pv_kwh", round3(r.PV)).
		AddField("house_kwh", round3(r.House)).
		AddField("import_kwh", round3(r.Import)).
		AddField("export_kwh", round3(r.Export)).
		AddField("battery_charge_kwh", round3(r.BatteryCharge)).
		AddField("battery_discharge_kwh", round3(r.BatteryDischarge)).
		AddField("self_consumption_kwh", round3(r.SelfConsumption)).
		AddField("import_cost", round3(r.ImportCostCheap+r.ImportCostExpensive)).
		AddField("pv_savings", round3(r.PVSavings)).
		AddField("import_savings", round3(r.ImportSavings))
	if r.BatteryLevel != nil {
		p = p.AddField("battery_level", round3(*r.BatteryLevel))
	}
	p = p.SetTime(r.End)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAnomaly writes a counter decrease.
func (s *InfluxSink) RecordAnomaly(ev coremetrics.AnomalyEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("odometer_anomaly").
		AddTag("counter", string(ev.Anomaly.Counter)).
		AddTag("register", ev.Anomaly.Register).
		AddField("previous", round3(ev.Anomaly.Previous)).
		AddField("current", round3(ev.Anomaly.Current)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes one point per planning slot, timestamped at the slot
// start. Missing inputs are left out of the point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start, err := time.Parse("2006-01-02", ev.Day)
	if err != nil {
		return err
	}
	points := make([]*write.Point, 0, battery.SlotsPerDay)
	for i, tr := range ev.Outcome.Result.Trace {
		p := write.NewPointWithMeasurement("dispatch_plan").
			AddTag("plan_id", ev.PlanID).
			AddTag("mode", ev.Outcome.Plan[i].String()).
			AddField("slot", i).
			AddField("battery_kwh", round3(tr.BatteryKWh)).
			AddField("grid_kwh", round3(tr.GridKWh)).
			AddField("cost", round3(tr.Cost))
		p = addFinite(p, "price", ev.Price[i])
		p = addFinite(p, "consumption_kwh", ev.Consumption[i])
		points = append(points, p.SetTime(start.Add(time.Duration(i)*battery.SlotDuration)))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordEvaluation writes the realized outcome of a day's plan.
func (s *InfluxSink) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("plan_evaluation").
		AddTag("plan_id", ev.PlanID).
		AddTag("day", ev.Day).
		AddField("planned_cost", round3(ev.PlannedCost)).
		AddField("realized_cost", round3(ev.RealizedCost)).
		AddField("baseline_cost", round3(ev.BaselineCost)).
		AddField("savings", round3(ev.Savings)).
		AddField("missing_slots", len(ev.MissingSlots)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func addFinite(p *write.Point, name string, v float64) *write.Point {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return p
	}
	return p.AddField(name, round3(v))
}

func tariffTag(cheap bool) string {
	if cheap {
		return "cheap"
	}
	return "expensive"
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
