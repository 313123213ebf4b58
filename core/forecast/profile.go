// Package forecast builds the half-hourly inputs of the dispatch planner:
// consumption profiles derived from ledger history and price tables.
package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
)

// DayProfile sums house consumption of one day into half-hour slots. The
// readings list is the fixed-length window list of the day, so a reading's
// position gives its slot. A slot is present only when every window in it was
// recorded; a partly recorded half-hour is missing, never completed with
// zeros. Windows longer than a slot are spread evenly over their slots.
func DayProfile(day ledger.DayRecord) battery.Profile {
	p := battery.MissingProfile()
	n := len(day.Readings)
	switch {
	case n == 0:
		return p
	case n%battery.SlotsPerDay == 0:
		per := n / battery.SlotsPerDay
		for slot := range p {
			sum := 0.0
			complete := true
			for _, r := range day.Readings[slot*per : (slot+1)*per] {
				if r == nil {
					complete = false
					break
				}
				sum += r.House
			}
			if complete {
				p[slot] = sum
			}
		}
	case battery.SlotsPerDay%n == 0:
		span := battery.SlotsPerDay / n
		for i, r := range day.Readings {
			if r == nil {
				continue
			}
			for j := 0; j < span; j++ {
				p[i*span+j] = r.House / float64(span)
			}
		}
	}
	return p
}

// DailyProfile averages the half-hour consumption of several days. Each slot
// averages only the days where it is complete; a slot complete in no
// day is missing.
func DailyProfile(days []ledger.DayRecord) battery.Profile {
	per := make([][]float64, battery.SlotsPerDay)
	for _, d := range days {
		dp := DayProfile(d)
		for i, v := range dp {
			if !math.IsNaN(v) {
				per[i] = append(per[i], v)
			}
		}
	}
	p := battery.MissingProfile()
	for i, vals := range per {
		if len(vals) > 0 {
			p[i] = stat.Mean(vals, nil)
		}
	}
	return p
}
