package battery

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	// SlotsPerDay is the number of half-hour planning slots in a day.
	SlotsPerDay = 48
	// SlotDuration is the length of one planning slot.
	SlotDuration = 30 * time.Minute
)

// Profile is a half-hourly series for one planning day: kWh per slot for
// consumption, price per kWh for prices. NaN marks a missing value.
type Profile [SlotsPerDay]float64

// NewProfile validates the length of values and converts them.
func NewProfile(values []float64) (Profile, error) {
	var p Profile
	if len(values) != SlotsPerDay {
		return p, fmt.Errorf("%w: expected %d slots, got %d", ErrPrecondition, SlotsPerDay, len(values))
	}
	copy(p[:], values)
	return p, nil
}

// FlatProfile returns a profile holding v in every slot.
func FlatProfile(v float64) Profile {
	var p Profile
	for i := range p {
		p[i] = v
	}
	return p
}

// MissingProfile returns a profile with every slot missing.
func MissingProfile() Profile {
	return FlatProfile(math.NaN())
}

// Missing reports whether slot i has no value.
func (p Profile) Missing(i int) bool { return math.IsNaN(p[i]) }

// MissingSlots returns the indices without a value.
func (p Profile) MissingSlots() []int {
	var out []int
	for i := range p {
		if p.Missing(i) {
			out = append(out, i)
		}
	}
	return out
}

// Mean averages the present values and returns how many were used. It is
// NaN when every slot is missing.
func (p Profile) Mean() (float64, int) {
	vals := make([]float64, 0, SlotsPerDay)
	for _, v := range p {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), 0
	}
	return stat.Mean(vals, nil), len(vals)
}
