package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/factory"
	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/core/tariff"
)

// BatteryConfig describes the home battery.
type BatteryConfig struct {
	CapacityKWh float64 `json:"capacity_kwh"`
	MaxPowerKW  float64 `json:"max_power_kw"`
	// MinPercent is a reserve below which the battery is never discharged.
	MinPercent float64 `json:"min_percent"`
}

func (c *BatteryConfig) SetDefaults() {
	if c.CapacityKWh == 0 {
		c.CapacityKWh = 12
	}
	if c.MaxPowerKW == 0 {
		c.MaxPowerKW = 7
	}
}

func (c BatteryConfig) Validate() error {
	if c.CapacityKWh <= 0 {
		return errors.New("battery.capacity_kwh must be > 0")
	}
	if c.MaxPowerKW <= 0 {
		return errors.New("battery.max_power_kw must be > 0")
	}
	if c.MinPercent < 0 || c.MinPercent >= 100 {
		return errors.New("battery.min_percent must be in [0, 100)")
	}
	return nil
}

// ReserveKWh converts MinPercent to energy.
func (c BatteryConfig) ReserveKWh() float64 {
	return c.CapacityKWh * c.MinPercent / 100
}

// Simulator builds the battery simulator for this battery.
func (c BatteryConfig) Simulator() (*battery.Simulator, error) {
	return battery.NewSimulator(c.CapacityKWh, c.MaxPowerKW, battery.WithReserve(c.ReserveKWh()))
}

// TariffConfig holds the two-rate electricity tariff.
type TariffConfig struct {
	CheapStart        string  `json:"cheap_start"`
	CheapEnd          string  `json:"cheap_end"`
	UnitCostCheap     float64 `json:"unit_cost_cheap"`
	UnitCostExpensive float64 `json:"unit_cost_expensive"`
	// TimeZone is an IANA name; the cheap window is wall-clock time there.
	TimeZone string `json:"time_zone"`
}

func (c *TariffConfig) SetDefaults() {
	if c.CheapStart == "" {
		c.CheapStart = "00:30"
	}
	if c.CheapEnd == "" {
		c.CheapEnd = "04:30"
	}
	if c.TimeZone == "" {
		c.TimeZone = "Local"
	}
}

func (c TariffConfig) Validate() error {
	if _, err := c.Window(); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}
	if c.UnitCostCheap < 0 || c.UnitCostExpensive < 0 {
		return errors.New("tariff unit costs must be >= 0")
	}
	return nil
}

// Window parses the cheap-rate window in the configured time zone.
func (c TariffConfig) Window() (tariff.Window, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return tariff.Window{}, err
	}
	return tariff.NewWindow(c.CheapStart, c.CheapEnd, loc)
}

// LedgerConfig controls the window ledger and its persistence.
type LedgerConfig struct {
	WindowMinutes int                  `json:"window_minutes"`
	Store         factory.ModuleConfig `json:"store"`
}

func (c *LedgerConfig) SetDefaults() {
	if c.WindowMinutes == 0 {
		c.WindowMinutes = int(ledger.DefaultWindow / time.Minute)
	}
	if c.Store.Type == "" {
		c.Store.Type = "file"
	}
	if c.Store.Type == "file" && c.Store.Conf == nil {
		c.Store.Conf = map[string]any{"dir": "data"}
	}
}

func (c LedgerConfig) Validate() error {
	if c.WindowMinutes <= 0 || (24*60)%c.WindowMinutes != 0 {
		return fmt.Errorf("ledger.window_minutes must divide a day, got %d", c.WindowMinutes)
	}
	return nil
}

// Build returns the ledger configuration for the given tariff.
func (c LedgerConfig) Build(t TariffConfig) (ledger.Config, error) {
	w, err := t.Window()
	if err != nil {
		return ledger.Config{}, err
	}
	return ledger.Config{
		Window:            time.Duration(c.WindowMinutes) * time.Minute,
		Tariff:            w,
		UnitCostCheap:     t.UnitCostCheap,
		UnitCostExpensive: t.UnitCostExpensive,
	}, nil
}

// PlannerConfig controls the dispatch optimizer.
type PlannerConfig struct {
	MaxPasses   int     `json:"max_passes"`
	PriceFile   string  `json:"price_file"`
	FlatPrice   float64 `json:"flat_price"`
	HistoryDays int     `json:"history_days"`
}

func (c *PlannerConfig) SetDefaults() {
	if c.MaxPasses == 0 {
		c.MaxPasses = 10000
	}
	if c.HistoryDays == 0 {
		c.HistoryDays = 28
	}
}

func (c PlannerConfig) Validate() error {
	if c.MaxPasses < 0 {
		return errors.New("planner.max_passes must be >= 0")
	}
	if c.HistoryDays < 1 {
		return errors.New("planner.history_days must be >= 1")
	}
	if c.FlatPrice < 0 {
		return errors.New("planner.flat_price must be >= 0")
	}
	return nil
}

// LoopConfig controls the control loop timing.
type LoopConfig struct {
	PollIntervalMS int `json:"poll_interval_ms"`
	SleepQuantumMS int `json:"sleep_quantum_ms"`
}

func (c *LoopConfig) SetDefaults() {
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 1000
	}
	if c.SleepQuantumMS == 0 {
		c.SleepQuantumMS = 50
	}
}

func (c LoopConfig) Validate() error {
	if c.PollIntervalMS <= 0 || c.SleepQuantumMS <= 0 {
		return errors.New("loop intervals must be > 0")
	}
	return nil
}

func (c LoopConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c LoopConfig) SleepQuantum() time.Duration {
	return time.Duration(c.SleepQuantumMS) * time.Millisecond
}
