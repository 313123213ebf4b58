package planner

import (
	"math"

	"github.com/kilianp07/sunledger/core/battery"
)

// DayPlan is an optimised plan together with the greedy baseline for the
// same inputs.
type DayPlan struct {
	Outcome
	InitialKWh   float64        `json:"initial_kwh"`
	Greedy       battery.Plan   `json:"greedy"`
	GreedyResult battery.Result `json:"greedy_result"`
}

// PlanDay runs the optimizer and the greedy heuristic on the same day.
func PlanDay(sim *battery.Simulator, initialKWh float64, consumption, price battery.Profile, maxPasses int) (DayPlan, error) {
	out, err := Optimize(sim, initialKWh, consumption, price, maxPasses)
	if err != nil {
		return DayPlan{}, err
	}
	greedy, err := GreedyCharge(initialKWh, sim.CapacityKWh(), sim.MaxPowerKW(), price)
	if err != nil {
		return DayPlan{}, err
	}
	g := sim.Run(initialKWh, &consumption, &price, &greedy)
	return DayPlan{Outcome: out, InitialKWh: initialKWh, Greedy: greedy, GreedyResult: g}, nil
}

// LevelKWh converts a battery percentage into stored energy, clamped to the
// battery's range.
func LevelKWh(percent, capacityKWh float64) float64 {
	if math.IsNaN(percent) {
		return 0
	}
	return math.Max(0, math.Min(capacityKWh, percent/100*capacityKWh))
}
