// Package odometer turns successive inverter register snapshots into energy
// deltas for the current ledger window.
package odometer

import (
	"time"
)

// Register names published by the inverter poller.
const (
	RegBatteryChargePower    = "Battery Charge Power"
	RegBatteryChargeLevel    = "Battery Charge Level"
	RegGridPower             = "Grid Power"
	RegHouseConsumption      = "House Consumption"
	RegPVPower               = "PV Power"
	RegDailyGeneration       = "Daily Generation"
	RegDailyExport           = "Daily Export"
	RegDailyImport           = "Daily Import"
	RegDailyHouseConsumption = "Daily House Consumption"
)

// Counter identifies one of the per-window odometers.
type Counter string

const (
	PV               Counter = "pv"
	House            Counter = "house"
	Import           Counter = "import"
	Export           Counter = "export"
	BatteryPercent   Counter = "battery_percent"
	BatteryCharge    Counter = "battery_charge"
	BatteryDischarge Counter = "battery_discharge"
)

// Register is a single decoded inverter value together with its sample time.
type Register struct {
	Value float64   `json:"value"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Snapshot maps register names to their most recent decoded value.
type Snapshot map[string]Register

// Value returns the named register value and whether it is present.
func (s Snapshot) Value(name string) (float64, bool) {
	r, ok := s[name]
	return r.Value, ok
}

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type mapping struct {
	counter  Counter
	register string
	// signed counters may legitimately go down.
	signed bool
}

// daily cumulative registers feeding the differenced counters.
var mappings = []mapping{
	{counter: PV, register: RegDailyGeneration},
	{counter: House, register: RegDailyHouseConsumption},
	{counter: Import, register: RegDailyImport},
	{counter: Export, register: RegDailyExport},
	{counter: BatteryPercent, register: RegBatteryChargeLevel, signed: true},
}

// Energy holds one value per counter. Energy values are kWh, BatteryPercent is
// percentage points.
type Energy struct {
	PV               float64 `json:"pv"`
	House            float64 `json:"house"`
	Import           float64 `json:"import"`
	Export           float64 `json:"export"`
	BatteryPercent   float64 `json:"battery_percent"`
	BatteryCharge    float64 `json:"battery_charge"`
	BatteryDischarge float64 `json:"battery_discharge"`
}

// Add accumulates o into e.
func (e *Energy) Add(o Energy) {
	e.PV += o.PV
	e.House += o.House
	e.Import += o.Import
	e.Export += o.Export
	e.BatteryPercent += o.BatteryPercent
	e.BatteryCharge += o.BatteryCharge
	e.BatteryDischarge += o.BatteryDischarge
}

// Get returns the value of a single counter.
func (e Energy) Get(c Counter) float64 {
	switch c {
	case PV:
		return e.PV
	case House:
		return e.House
	case Import:
		return e.Import
	case Export:
		return e.Export
	case BatteryPercent:
		return e.BatteryPercent
	case BatteryCharge:
		return e.BatteryCharge
	case BatteryDischarge:
		return e.BatteryDischarge
	}
	return 0
}

func (e *Energy) set(c Counter, v float64) {
	switch c {
	case PV:
		e.PV = v
	case House:
		e.House = v
	case Import:
		e.Import = v
	case Export:
		e.Export = v
	case BatteryPercent:
		e.BatteryPercent = v
	case BatteryCharge:
		e.BatteryCharge = v
	case BatteryDischarge:
		e.BatteryDischarge = v
	}
}

// Anomaly records a cumulative register that moved backwards.
type Anomaly struct {
	Counter  Counter `json:"counter"`
	Register string  `json:"register"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// Deltas is the change in every counter between two snapshots.
type Deltas struct {
	Energy
	Anomalies []Anomaly
}

// Reconcile derives counter deltas from prev to cur.
//
// A counter whose register is missing from either snapshot contributes zero.
// Unsigned counters that decrease are clamped to zero and reported as an
// anomaly. Battery charge and discharge energy integrate the latest charge
// power over elapsed; callers pass zero when the power register was not
// resampled between the snapshots.
func Reconcile(prev, cur Snapshot, elapsed time.Duration) Deltas {
	var d Deltas
	for _, m := range mappings {
		p, okP := prev.Value(m.register)
		c, okC := cur.Value(m.register)
		if !okP || !okC {
			continue
		}
		diff := c - p
		if diff < 0 && !m.signed {
			d.Anomalies = append(d.Anomalies, Anomaly{Counter: m.counter, Register: m.register, Previous: p, Current: c})
			continue
		}
		d.set(m.counter, diff)
	}
	if elapsed > 0 {
		if w, ok := cur.Value(RegBatteryChargePower); ok {
			kwh := w / 1000 * elapsed.Hours()
			if kwh > 0 {
				d.BatteryCharge = kwh
			} else {
				d.BatteryDischarge = -kwh
			}
		}
	}
	return d
}

// Set is the collection of odometers accumulating the open window.
type Set struct {
	totals    Energy
	anomalies int
}

// Add accumulates a reconciliation result.
func (s *Set) Add(d Deltas) {
	s.totals.Add(d.Energy)
	s.anomalies += len(d.Anomalies)
}

// Totals returns the accumulated counters.
func (s *Set) Totals() Energy { return s.totals }

// Anomalies returns how many clamped decreases were seen since the last reset.
func (s *Set) Anomalies() int { return s.anomalies }

// Reset zeroes every odometer.
func (s *Set) Reset() {
	s.totals = Energy{}
	s.anomalies = 0
}
