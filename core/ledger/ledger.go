// Package ledger accumulates odometer deltas into fixed-duration accounting
// windows, attributes them to a tariff and keeps the day's record list.
//
// A Ledger is owned by a single control loop and performs no locking.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/sunledger/core/logger"
	"github.com/kilianp07/sunledger/core/odometer"
	"github.com/kilianp07/sunledger/core/tariff"
)

// ErrWindowOccupied is returned when a closed window maps to an index that
// already holds a record.
var ErrWindowOccupied = errors.New("window already recorded")

// DefaultWindow is the accounting window used when none is configured.
const DefaultWindow = 5 * time.Minute

// Config holds the accounting parameters.
type Config struct {
	Window            time.Duration
	Tariff            tariff.Window
	UnitCostCheap     float64
	UnitCostExpensive float64
}

// WindowsPerDay is the fixed length of a day's record list.
func (c Config) WindowsPerDay() int {
	return int(24 * time.Hour / c.Window)
}

// Settings returns the configuration snapshot persisted with each day.
func (c Config) Settings() Settings {
	tz := ""
	if c.Tariff.Loc != nil {
		tz = c.Tariff.Loc.String()
	}
	return Settings{
		WindowMinutes:     int(c.Window / time.Minute),
		CheapStart:        c.Tariff.Start.String(),
		CheapEnd:          c.Tariff.End.String(),
		TimeZone:          tz,
		UnitCostCheap:     c.UnitCostCheap,
		UnitCostExpensive: c.UnitCostExpensive,
	}
}

func (c Config) validate() error {
	if c.Window <= 0 || c.Window > 24*time.Hour {
		return fmt.Errorf("window duration %v out of range", c.Window)
	}
	if (24*time.Hour)%c.Window != 0 {
		return fmt.Errorf("window duration %v does not divide a day", c.Window)
	}
	if c.UnitCostCheap < 0 || c.UnitCostExpensive < 0 {
		return errors.New("unit costs must not be negative")
	}
	return nil
}

// Ledger owns the live odometers and the current and previous day's records.
type Ledger struct {
	cfg   Config
	store Store
	log   logger.Logger

	live      odometer.Set
	day       string
	today     []*ReadingRecord
	yesterday []*ReadingRecord

	openedAt time.Time
	primed   bool
}

// New creates a ledger. A nil store keeps records in memory only.
func New(cfg Config, store Store, log logger.Logger) (*Ledger, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	l := &Ledger{cfg: cfg, store: store, log: log}
	l.today = l.emptyDay()
	return l, nil
}

func (l *Ledger) emptyDay() []*ReadingRecord {
	return make([]*ReadingRecord, l.cfg.WindowsPerDay())
}

// Config returns the accounting parameters.
func (l *Ledger) Config() Config { return l.cfg }

// Day returns the UTC date key of the current day list, empty before the first
// tick or restore.
func (l *Ledger) Day() string { return l.day }

// Today returns the current day's records indexed by window.
func (l *Ledger) Today() []*ReadingRecord { return l.today }

// Yesterday returns the previous day's records, nil if none are known.
func (l *Ledger) Yesterday() []*ReadingRecord { return l.yesterday }

// Totals sums the current day's recorded windows.
func (l *Ledger) Totals() Totals { return Sum(l.today) }

// Live returns the counters of the window currently open.
func (l *Ledger) Live() odometer.Energy { return l.live.Totals() }

// TodayRecord returns the current day as a persistable record.
func (l *Ledger) TodayRecord() DayRecord {
	return DayRecord{Date: l.day, Settings: l.cfg.Settings(), Readings: l.today}
}

// WindowIndex maps a window end time to its slot in the day list.
func (l *Ledger) WindowIndex(end time.Time) int {
	idx := int(end.Sub(StartOfDay(end)) / l.cfg.Window)
	if idx >= l.cfg.WindowsPerDay() {
		idx = l.cfg.WindowsPerDay() - 1
	}
	return idx
}

// Restore loads today's and yesterday's records from the store so a restart
// keeps the day's history.
func (l *Ledger) Restore(ctx context.Context, now time.Time) error {
	l.day = DayKey(now)
	l.today = l.emptyDay()
	l.yesterday = nil
	if l.store == nil {
		return nil
	}
	today, err := l.load(ctx, l.day)
	if err != nil {
		return err
	}
	if today != nil {
		l.today = today
	}
	y, err := l.load(ctx, DayKey(now.AddDate(0, 0, -1)))
	if err != nil {
		return err
	}
	l.yesterday = y
	return nil
}

func (l *Ledger) load(ctx context.Context, key string) ([]*ReadingRecord, error) {
	ok, err := l.store.Exists(ctx, KindReadings, key)
	if err != nil {
		return nil, fmt.Errorf("check day %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := l.store.Read(ctx, KindReadings, key)
	if err != nil {
		return nil, fmt.Errorf("read day %s: %w", key, err)
	}
	readings := l.emptyDay()
	if len(rec.Readings) != len(readings) {
		l.log.Warnf("day %s has %d windows, expected %d", key, len(rec.Readings), len(readings))
	}
	copy(readings, rec.Readings)
	l.log.Infof("restored day %s with %d recorded windows", key, Sum(readings).Recorded)
	return readings, nil
}

// Accumulate adds reconciled deltas to the open window.
func (l *Ledger) Accumulate(d odometer.Deltas) {
	l.live.Add(d)
	for _, a := range d.Anomalies {
		l.log.Warnf("counter %s went backwards (%s %.3f -> %.3f), clamped to zero", a.Counter, a.Register, a.Previous, a.Current)
	}
}

// Tick advances the ledger clock. It rotates the day list on a UTC date change
// and closes the open window once its duration has elapsed, returning the
// appended record. The first window after start is discarded as partial.
func (l *Ledger) Tick(ctx context.Context, now time.Time, batteryPct *float64) (*ReadingRecord, error) {
	if l.day == "" {
		l.day = DayKey(now)
	}
	if key := DayKey(now); key != l.day {
		l.Rotate(key)
	}
	if l.openedAt.IsZero() {
		l.openedAt = now
		return nil, nil
	}
	if now.Sub(l.openedAt) < l.cfg.Window {
		return nil, nil
	}
	if !l.primed {
		l.primed = true
		l.log.Debugf("discarding partial first window opened at %s", l.openedAt.Format(time.RFC3339))
		l.live.Reset()
		l.openedAt = now
		return nil, nil
	}
	l.openedAt = now
	return l.CloseWindow(ctx, now, batteryPct)
}

// CloseWindow turns the open odometers into a record for the window ending at
// end, appends it to the day list and resets the odometers. A window is never
// split: it belongs entirely to the day containing its end time. A store
// failure is returned after the record has been appended.
func (l *Ledger) CloseWindow(ctx context.Context, end time.Time, batteryPct *float64) (*ReadingRecord, error) {
	if key := DayKey(end); key != l.day {
		l.Rotate(key)
	}
	idx := l.WindowIndex(end)
	if l.today[idx] != nil {
		l.live.Reset()
		l.log.Warnf("window %d of %s already recorded, dropping", idx, l.day)
		return nil, fmt.Errorf("%w: %s window %d", ErrWindowOccupied, l.day, idx)
	}
	rec := l.record(idx, end, batteryPct)
	l.today[idx] = rec
	l.live.Reset()
	l.log.Debugw("window closed", map[string]any{
		"day": l.day, "window": idx, "cheap": rec.Cheap,
		"import": rec.Import, "pv": rec.PV, "house": rec.House,
	})
	if l.store == nil {
		return rec, nil
	}
	if err := l.store.Write(ctx, KindReadings, l.day, l.TodayRecord()); err != nil {
		return rec, fmt.Errorf("write day %s: %w", l.day, err)
	}
	return rec, nil
}

func (l *Ledger) record(idx int, end time.Time, batteryPct *float64) *ReadingRecord {
	e := l.live.Totals()
	rec := &ReadingRecord{
		Window:          idx,
		End:             end.UTC(),
		Energy:          e,
		Cheap:           l.cfg.Tariff.IsCheap(end),
		SelfConsumption: math.Min(e.PV, e.House),
		Anomalies:       l.live.Anomalies(),
	}
	if batteryPct != nil {
		v := *batteryPct
		rec.BatteryLevel = &v
	}
	if rec.Cheap {
		rec.ImportCostCheap = e.Import * l.cfg.UnitCostCheap
		rec.ImportSavings = (l.cfg.UnitCostExpensive - l.cfg.UnitCostCheap) * e.BatteryCharge
	} else {
		rec.ImportCostExpensive = e.Import * l.cfg.UnitCostExpensive
		rec.PVSavings = l.cfg.UnitCostExpensive * e.BatteryCharge
	}
	return rec
}

// Rotate moves the current day list to yesterday and starts an empty list
// for day. The open window is left untouched.
func (l *Ledger) Rotate(day string) {
	if day == l.day {
		return
	}
	if l.day == "" {
		l.day = day
		return
	}
	l.log.Infof("rotating ledger from %s to %s", l.day, day)
	l.yesterday = l.today
	l.today = l.emptyDay()
	l.day = day
}
