// Package planner searches for a day-ahead battery dispatch plan.
//
// The production planner is a single-slot steepest-ascent local search that
// uses the battery simulator as its fitness oracle. The result is a local
// optimum only. GreedyCharge is a baseline for comparison.
package planner

import (
	"fmt"

	"github.com/kilianp07/sunledger/core/battery"
)

// Candidate is a plan differing from its origin in exactly one slot.
type Candidate struct {
	Slot int
	Mode battery.Mode
	Plan battery.Plan
}

// Neighbors returns every single-slot change of plan, slot by slot in
// ascending order and, per slot, in battery.Modes order.
func Neighbors(plan battery.Plan) []Candidate {
	out := make([]Candidate, 0, battery.SlotsPerDay*(len(battery.Modes)-1))
	for slot := range plan {
		for _, m := range battery.Modes {
			if plan[slot] == m {
				continue
			}
			next := plan
			next[slot] = m
			out = append(out, Candidate{Slot: slot, Mode: m, Plan: next})
		}
	}
	return out
}

// Evaluator scores a plan, higher is better.
type Evaluator func(battery.Plan) float64

// Fitness returns the evaluator used by Optimize: the net battery gain valued
// at the day's average price, minus the simulated cost of the day.
func Fitness(sim *battery.Simulator, initialKWh float64, consumption, price battery.Profile) (Evaluator, error) {
	if err := sim.CheckInitial(initialKWh); err != nil {
		return nil, err
	}
	avg, n := price.Mean()
	if n == 0 {
		return nil, fmt.Errorf("%w: no prices available", battery.ErrPrecondition)
	}
	return func(p battery.Plan) float64 {
		res := sim.Run(initialKWh, &consumption, &price, &p)
		return (res.FinalKWh-initialKWh)*avg - res.TotalCost
	}, nil
}

// Outcome is the result of a search.
type Outcome struct {
	Plan      battery.Plan   `json:"plan"`
	Fitness   float64        `json:"fitness"`
	Passes    int            `json:"passes"`
	Converged bool           `json:"converged"`
	Result    battery.Result `json:"result"`
}

// Search runs steepest ascent from start. Each pass applies the single best
// strictly improving neighbour, the first one found winning ties. It stops
// when a pass finds no improvement or after maxPasses passes.
func Search(start battery.Plan, eval Evaluator, maxPasses int) (battery.Plan, float64, int, bool) {
	best := start
	bestFit := eval(best)
	passes := 0
	for passes < maxPasses {
		passes++
		pick := -1
		pickFit := bestFit
		cands := Neighbors(best)
		for i := range cands {
			if f := eval(cands[i].Plan); f > pickFit {
				pick, pickFit = i, f
			}
		}
		if pick < 0 {
			return best, bestFit, passes, true
		}
		best, bestFit = cands[pick].Plan, pickFit
	}
	return best, bestFit, passes, false
}

// Optimize plans a day starting from the all-Balance plan.
func Optimize(sim *battery.Simulator, initialKWh float64, consumption, price battery.Profile, maxPasses int) (Outcome, error) {
	if maxPasses < 0 {
		return Outcome{}, fmt.Errorf("%w: max passes must not be negative", battery.ErrPrecondition)
	}
	eval, err := Fitness(sim, initialKWh, consumption, price)
	if err != nil {
		return Outcome{}, err
	}
	var start battery.Plan
	plan, fit, passes, converged := Search(start, eval, maxPasses)
	res, err := sim.Simulate(initialKWh, consumption, price, plan)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Plan: plan, Fitness: fit, Passes: passes, Converged: converged, Result: res}, nil
}
