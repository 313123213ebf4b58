package ledger

import (
	"time"

	"github.com/kilianp07/sunledger/core/odometer"
)

// DateLayout formats the UTC day keys under which day records are stored.
const DateLayout = "2006-01-02"

// KindReadings is the store kind holding one DayRecord per UTC day.
const KindReadings = "readings"

// ReadingRecord is the accounting result of one closed window. Records are
// immutable once appended to a day.
type ReadingRecord struct {
	Window int       `json:"window"`
	End    time.Time `json:"end"`

	odometer.Energy

	// BatteryLevel is the instantaneous charge level at window end, nil when
	// the inverter had not reported it yet.
	BatteryLevel *float64 `json:"battery_level"`
	Cheap        bool     `json:"cheap_rate"`

	ImportCostCheap     float64 `json:"import_cost_cheap"`
	ImportCostExpensive float64 `json:"import_cost_expensive"`
	SelfConsumption     float64 `json:"self_consumption"`
	PVSavings           float64 `json:"pv_savings"`
	ImportSavings       float64 `json:"import_savings"`
	Anomalies           int     `json:"anomalies,omitempty"`
}

// Settings is the configuration snapshot stored alongside a day's readings.
type Settings struct {
	WindowMinutes     int     `json:"window_minutes"`
	CheapStart        string  `json:"cheap_start"`
	CheapEnd          string  `json:"cheap_end"`
	TimeZone          string  `json:"time_zone"`
	UnitCostCheap     float64 `json:"unit_cost_cheap"`
	UnitCostExpensive float64 `json:"unit_cost_expensive"`
}

// DayRecord is the persisted unit: one UTC day of readings, indexed by window
// number. Unrecorded windows are nil.
type DayRecord struct {
	Date     string           `json:"date"`
	Settings Settings         `json:"settings"`
	Readings []*ReadingRecord `json:"readings"`
}

// Totals aggregates the recorded windows of a day. Missing windows are
// excluded from every sum and counted in Missing.
type Totals struct {
	odometer.Energy
	ImportCostCheap     float64 `json:"import_cost_cheap"`
	ImportCostExpensive float64 `json:"import_cost_expensive"`
	SelfConsumption     float64 `json:"self_consumption"`
	PVSavings           float64 `json:"pv_savings"`
	ImportSavings       float64 `json:"import_savings"`
	Anomalies           int     `json:"anomalies"`
	Recorded            int     `json:"recorded"`
	Missing             int     `json:"missing"`
}

// ImportCost returns the total import cost across both tariffs.
func (t Totals) ImportCost() float64 { return t.ImportCostCheap + t.ImportCostExpensive }

// Savings returns PV and import-shifting savings combined.
func (t Totals) Savings() float64 { return t.PVSavings + t.ImportSavings }

// Sum aggregates a day's readings.
func Sum(readings []*ReadingRecord) Totals {
	var t Totals
	for _, r := range readings {
		if r == nil {
			t.Missing++
			continue
		}
		t.Recorded++
		t.Energy.Add(r.Energy)
		t.ImportCostCheap += r.ImportCostCheap
		t.ImportCostExpensive += r.ImportCostExpensive
		t.SelfConsumption += r.SelfConsumption
		t.PVSavings += r.PVSavings
		t.ImportSavings += r.ImportSavings
		t.Anomalies += r.Anomalies
	}
	return t
}

// DayKey returns the UTC date key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// StartOfDay returns UTC midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
