package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/sunledger/core/battery"
)

// GreedySlots is the number of full-rate slots needed to fill the battery.
func GreedySlots(initialKWh, capacityKWh, maxPowerKW float64) int {
	n := int(math.Ceil((capacityKWh - initialKWh) * 2 / maxPowerKW))
	if n < 0 {
		return 0
	}
	if n > battery.SlotsPerDay {
		return battery.SlotsPerDay
	}
	return n
}

// GreedyCharge imports in the cheapest slots needed to fill the battery and
// balances elsewhere. Ties go to the earliest slot. Slots without a price are
// never chosen, so fewer slots may be selected when prices are missing.
func GreedyCharge(initialKWh, capacityKWh, maxPowerKW float64, price battery.Profile) (battery.Plan, error) {
	var plan battery.Plan
	if !(capacityKWh > 0) || !(maxPowerKW > 0) {
		return plan, fmt.Errorf("%w: capacity and power must be positive", battery.ErrPrecondition)
	}
	if math.IsNaN(initialKWh) || initialKWh < 0 || initialKWh > capacityKWh {
		return plan, fmt.Errorf("%w: initial charge %v outside [0, %v]", battery.ErrPrecondition, initialKWh, capacityKWh)
	}
	idx := make([]int, 0, battery.SlotsPerDay)
	for i := range price {
		if !price.Missing(i) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return price[idx[a]] < price[idx[b]] })
	n := GreedySlots(initialKWh, capacityKWh, maxPowerKW)
	if n > len(idx) {
		n = len(idx)
	}
	for _, slot := range idx[:n] {
		plan[slot] = battery.Import
	}
	return plan, nil
}
