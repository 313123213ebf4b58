// Package battery replays a half-hourly dispatch plan against consumption and
// price profiles, producing the cost of the day and the battery trace.
package battery

import (
	"errors"
	"fmt"
	"math"
)

// ErrPrecondition marks invalid simulator or planner inputs.
var ErrPrecondition = errors.New("precondition violated")

// SlotTrace is the simulated outcome of one slot.
type SlotTrace struct {
	Mode Mode `json:"mode"`
	// BatteryKWh is the stored energy at the end of the slot.
	BatteryKWh float64 `json:"battery_kwh"`
	// FlowKWh is positive when charging and negative when discharging.
	FlowKWh float64 `json:"flow_kwh"`
	// GridKWh is negative on net export.
	GridKWh float64 `json:"grid_kwh"`
	Cost    float64 `json:"cost"`
	Missing bool    `json:"missing,omitempty"`
}

// Result summarises a simulated day.
type Result struct {
	TotalCost    float64                `json:"total_cost"`
	FinalKWh     float64                `json:"final_kwh"`
	Trace        [SlotsPerDay]SlotTrace `json:"trace"`
	MissingSlots []int                  `json:"missing_slots,omitempty"`
}

// Simulator models a battery with a capacity and a symmetric power limit.
// It holds no state between calls.
type Simulator struct {
	capacity float64
	maxPower float64
	reserve  float64
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithReserve keeps kWh in the battery that Export and Balance never use.
func WithReserve(kWh float64) Option {
	return func(s *Simulator) { s.reserve = kWh }
}

// NewSimulator validates the battery parameters.
func NewSimulator(capacityKWh, maxPowerKW float64, opts ...Option) (*Simulator, error) {
	s := &Simulator{capacity: capacityKWh, maxPower: maxPowerKW}
	for _, o := range opts {
		o(s)
	}
	if !(capacityKWh > 0) {
		return nil, fmt.Errorf("%w: capacity must be positive, got %v", ErrPrecondition, capacityKWh)
	}
	if !(maxPowerKW > 0) {
		return nil, fmt.Errorf("%w: max power must be positive, got %v", ErrPrecondition, maxPowerKW)
	}
	if s.reserve < 0 || s.reserve > capacityKWh {
		return nil, fmt.Errorf("%w: reserve %v outside [0, %v]", ErrPrecondition, s.reserve, capacityKWh)
	}
	return s, nil
}

// CapacityKWh returns the usable battery capacity.
func (s *Simulator) CapacityKWh() float64 { return s.capacity }

// MaxPowerKW returns the inverter power limit.
func (s *Simulator) MaxPowerKW() float64 { return s.maxPower }

// ReserveKWh returns the discharge floor.
func (s *Simulator) ReserveKWh() float64 { return s.reserve }

// SlotLimit is the most energy moved in or out during one slot.
func (s *Simulator) SlotLimit() float64 { return s.maxPower * SlotDuration.Hours() }

// CheckInitial validates a starting charge.
func (s *Simulator) CheckInitial(initialKWh float64) error {
	if math.IsNaN(initialKWh) || initialKWh < 0 || initialKWh > s.capacity {
		return fmt.Errorf("%w: initial charge %v outside [0, %v]", ErrPrecondition, initialKWh, s.capacity)
	}
	return nil
}

// Simulate replays plan from initialKWh. Slots with a missing consumption or
// price are skipped: the battery is left unchanged, nothing is added to the
// total and the slot is listed in MissingSlots.
func (s *Simulator) Simulate(initialKWh float64, consumption, price Profile, plan Plan) (Result, error) {
	if err := s.CheckInitial(initialKWh); err != nil {
		return Result{}, err
	}
	for i, m := range plan {
		if m != Import && m != Export && m != Balance {
			return Result{}, fmt.Errorf("%w: slot %d has invalid mode %d", ErrPrecondition, i, m)
		}
	}
	return s.run(initialKWh, &consumption, &price, &plan), nil
}

// Run is Simulate without input validation, for callers that validated once
// and evaluate many plans.
func (s *Simulator) Run(initialKWh float64, consumption, price *Profile, plan *Plan) Result {
	return s.run(initialKWh, consumption, price, plan)
}

func (s *Simulator) run(initialKWh float64, consumption, price *Profile, plan *Plan) Result {
	var res Result
	limit := s.SlotLimit()
	level := initialKWh
	for i := 0; i < SlotsPerDay; i++ {
		mode := plan[i]
		use, p := consumption[i], price[i]
		if math.IsNaN(use) || math.IsNaN(p) {
			res.Trace[i] = SlotTrace{Mode: mode, BatteryKWh: level, Missing: true}
			res.MissingSlots = append(res.MissingSlots, i)
			continue
		}
		avail := math.Max(0, level-s.reserve)
		var flow float64
		switch mode {
		case Import:
			flow = math.Min(limit, s.capacity-level)
		case Export:
			flow = -math.Min(limit, avail)
		default:
			flow = -math.Max(0, math.Min(math.Min(limit, avail), use))
		}
		level += flow
		grid := use + flow
		cost := grid * p
		res.TotalCost += cost
		res.Trace[i] = SlotTrace{Mode: mode, BatteryKWh: level, FlowKWh: flow, GridKWh: grid, Cost: cost}
	}
	res.FinalKWh = level
	return res
}
