package battery

import (
	"fmt"
	"strings"
)

// Mode is the battery directive for one planning slot.
type Mode int8

const (
	// Export discharges at full rate regardless of house demand.
	Export Mode = -1
	// Balance discharges only to cover the house, never below empty.
	Balance Mode = 0
	// Import charges from the grid at full rate.
	Import Mode = 1
)

// Modes lists every mode in neighbour scan order.
var Modes = [...]Mode{Import, Export, Balance}

func (m Mode) String() string {
	switch m {
	case Import:
		return "import"
	case Export:
		return "export"
	case Balance:
		return "balance"
	}
	return fmt.Sprintf("mode(%d)", int8(m))
}

// ParseMode accepts the names produced by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "import":
		return Import, nil
	case "export":
		return Export, nil
	case "balance":
		return Balance, nil
	}
	return Balance, fmt.Errorf("unknown dispatch mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case Import, Export, Balance:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("invalid dispatch mode %d", int8(m))
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Plan holds one mode per half-hour slot. The zero value is all Balance.
type Plan [SlotsPerDay]Mode

// Count returns how many slots use mode m.
func (p Plan) Count(m Mode) int {
	n := 0
	for _, v := range p {
		if v == m {
			n++
		}
	}
	return n
}

// Slots returns the indices using mode m in ascending order.
func (p Plan) Slots(m Mode) []int {
	var out []int
	for i, v := range p {
		if v == m {
			out = append(out, i)
		}
	}
	return out
}
