// Package export writes plans and ledger readings as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
)

// PlanRow is one half-hour slot of an exported plan. Price and consumption
// are nil when the input had no value for the slot.
type PlanRow struct {
	Slot        int           `json:"slot"`
	Start       time.Time     `json:"start"`
	Mode        battery.Mode  `json:"mode"`
	Price       *float64      `json:"price"`
	Consumption *float64      `json:"consumption_kwh"`
	BatteryKWh  float64       `json:"battery_kwh"`
	GridKWh     float64       `json:"grid_kwh"`
	Cost        float64       `json:"cost"`
	GreedyMode  *battery.Mode `json:"greedy_mode,omitempty"`
}

// PlanDoc is the JSON document written by WritePlanJSON.
type PlanDoc struct {
	Day        string    `json:"day"`
	InitialKWh float64   `json:"initial_kwh"`
	Cost       float64   `json:"cost"`
	FinalKWh   float64   `json:"final_kwh"`
	Fitness    float64   `json:"fitness"`
	Passes     int       `json:"passes"`
	Converged  bool      `json:"converged"`
	GreedyCost *float64  `json:"greedy_cost,omitempty"`
	Missing    []int     `json:"missing_slots,omitempty"`
	Slots      []PlanRow `json:"slots"`
}

// PlanRows lays a simulated plan out slot by slot starting at day's UTC
// midnight. greedy may be nil.
func PlanRows(day time.Time, plan battery.Plan, res battery.Result, price, consumption battery.Profile, greedy *battery.Plan) []PlanRow {
	start := ledger.StartOfDay(day)
	rows := make([]PlanRow, battery.SlotsPerDay)
	for i := range rows {
		tr := res.Trace[i]
		rows[i] = PlanRow{
			Slot:        i,
			Start:       start.Add(time.Duration(i) * battery.SlotDuration),
			Mode:        plan[i],
			Price:       present(price[i]),
			Consumption: present(consumption[i]),
			BatteryKWh:  tr.BatteryKWh,
			GridKWh:     tr.GridKWh,
			Cost:        tr.Cost,
		}
		if greedy != nil {
			m := greedy[i]
			rows[i].GreedyMode = &m
		}
	}
	return rows
}

func present(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// WritePlanJSON writes doc as indented JSON.
func WritePlanJSON(w io.Writer, doc PlanDoc) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WritePlanCSV writes one line per slot.
func WritePlanCSV(w io.Writer, rows []PlanRow) error {
	cw := csv.NewWriter(w)
	header := []string{"slot", "start", "mode", "price", "consumption_kwh", "battery_kwh", "grid_kwh", "cost"}
	withGreedy := len(rows) > 0 && rows[0].GreedyMode != nil
	if withGreedy {
		header = append(header, "greedy_mode")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Slot),
			r.Start.Format(time.RFC3339),
			r.Mode.String(),
			optFloat(r.Price),
			optFloat(r.Consumption),
			formatFloat(r.BatteryKWh),
			formatFloat(r.GridKWh),
			formatFloat(r.Cost),
		}
		if withGreedy {
			g := ""
			if r.GreedyMode != nil {
				g = r.GreedyMode.String()
			}
			rec = append(rec, g)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var readingHeader = []string{
	"date", "window", "end",
	"pv", "house", "import", "export",
	"battery_percent", "battery_charge", "battery_discharge", "battery_level",
	"cheap_rate", "import_cost_cheap", "import_cost_expensive",
	"self_consumption", "pv_savings", "import_savings", "anomalies",
}

// WriteReadingsCSV writes every recorded window of days, in day then window
// order. Unrecorded windows are skipped.
func WriteReadingsCSV(w io.Writer, days []ledger.DayRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(readingHeader); err != nil {
		return err
	}
	for _, d := range days {
		for _, r := range d.Readings {
			if r == nil {
				continue
			}
			rec := []string{
				d.Date,
				strconv.Itoa(r.Window),
				r.End.UTC().Format(time.RFC3339),
				formatFloat(r.PV),
				formatFloat(r.House),
				formatFloat(r.Import),
				formatFloat(r.Export),
				formatFloat(r.BatteryPercent),
				formatFloat(r.BatteryCharge),
				formatFloat(r.BatteryDischarge),
				optFloat(r.BatteryLevel),
				strconv.FormatBool(r.Cheap),
				formatFloat(r.ImportCostCheap),
				formatFloat(r.ImportCostExpensive),
				formatFloat(r.SelfConsumption),
				formatFloat(r.PVSavings),
				formatFloat(r.ImportSavings),
				strconv.Itoa(r.Anomalies),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
