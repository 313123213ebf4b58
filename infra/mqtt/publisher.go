package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
)

// Client is the publish side of PahoClient.
type Client interface {
	Publish(kind, topic string, retained bool, payload []byte) error
}

// Publisher turns ledger and planner events into MQTT messages below a
// topic prefix. It implements the metrics recorder interfaces so it can be
// fed by the event collector.
type Publisher struct {
	cli    Client
	prefix string
}

// NewPublisher creates a Publisher writing below prefix.
func NewPublisher(cli Client, prefix string) *Publisher {
	return &Publisher{cli: cli, prefix: strings.TrimSuffix(prefix, "/")}
}

func (p *Publisher) topic(parts ...string) string {
	return p.prefix + "/" + strings.Join(parts, "/")
}

type readingPayload struct {
	Day    string               `json:"day"`
	Record ledger.ReadingRecord `json:"record"`
	Totals ledger.Totals        `json:"totals"`
}

// RecordReading publishes a closed window to <prefix>/reading, retained.
func (p *Publisher) RecordReading(ev coremetrics.ReadingEvent) error {
	b, err := json.Marshal(readingPayload{Day: ev.Day, Record: ev.Record, Totals: ev.Totals})
	if err != nil {
		return err
	}
	return p.cli.Publish("reading", p.topic("reading"), true, b)
}

// RecordState publishes every register to <prefix>/state/<name>.
func (p *Publisher) RecordState(ev coremetrics.StateEvent) error {
	for name, r := range ev.Registers {
		if err := p.cli.Publish("state", p.topic("state", Slug(name)), false, []byte(formatFloat(r.Value))); err != nil {
			return err
		}
	}
	return nil
}

type planPayload struct {
	PlanID       string                       `json:"plan_id"`
	Day          string                       `json:"day"`
	InitialKWh   float64                      `json:"initial_kwh"`
	Modes        battery.Plan                 `json:"modes"`
	Fitness      float64                      `json:"fitness"`
	Cost         float64                      `json:"cost"`
	FinalKWh     float64                      `json:"final_kwh"`
	Passes       int                          `json:"passes"`
	Converged    bool                         `json:"converged"`
	GreedyCost   float64                      `json:"greedy_cost"`
	Battery      [battery.SlotsPerDay]float64 `json:"battery_kwh"`
	MissingSlots []int                        `json:"missing_slots,omitempty"`
	Generated    time.Time                    `json:"generated"`
}

// RecordPlan publishes the day's plan to <prefix>/plan, retained.
func (p *Publisher) RecordPlan(ev coremetrics.PlanEvent) error {
	pl := planPayload{
		PlanID:       ev.PlanID,
		Day:          ev.Day,
		InitialKWh:   ev.InitialKWh,
		Modes:        ev.Outcome.Plan,
		Fitness:      finite(ev.Outcome.Fitness),
		Cost:         ev.Outcome.Result.TotalCost,
		FinalKWh:     ev.Outcome.Result.FinalKWh,
		Passes:       ev.Outcome.Passes,
		Converged:    ev.Outcome.Converged,
		GreedyCost:   finite(ev.GreedyCost),
		MissingSlots: ev.MissingSlots,
		Generated:    ev.Time,
	}
	for i, s := range ev.Outcome.Result.Trace {
		pl.Battery[i] = s.BatteryKWh
	}
	b, err := json.Marshal(pl)
	if err != nil {
		return err
	}
	return p.cli.Publish("plan", p.topic("plan"), true, b)
}

type evaluationPayload struct {
	PlanID       string  `json:"plan_id"`
	Day          string  `json:"day"`
	PlannedCost  float64 `json:"planned_cost"`
	RealizedCost float64 `json:"realized_cost"`
	BaselineCost float64 `json:"baseline_cost"`
	Savings      float64 `json:"savings"`
	MissingSlots int     `json:"missing_slots"`
}

// RecordEvaluation publishes yesterday's evaluation to <prefix>/evaluation.
func (p *Publisher) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	b, err := json.Marshal(evaluationPayload{
		PlanID:       ev.PlanID,
		Day:          ev.Day,
		PlannedCost:  ev.PlannedCost,
		RealizedCost: ev.RealizedCost,
		BaselineCost: ev.BaselineCost,
		Savings:      ev.Savings,
		MissingSlots: len(ev.MissingSlots),
	})
	if err != nil {
		return err
	}
	return p.cli.Publish("evaluation", p.topic("evaluation"), true, b)
}

// Slug turns a register name into a topic segment: "PV Power" -> "pv_power".
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func formatFloat(v float64) string {
	b, _ := json.Marshal(finite(v))
	return string(b)
}
