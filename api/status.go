// Package api exposes the live ledger and the current dispatch plan over a
// read-only HTTP interface.
package api

import (
	"sync"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/core/odometer"
)

// PlanStatus summarises the plan the service is following today.
type PlanStatus struct {
	PlanID     string                       `json:"plan_id"`
	Day        string                       `json:"day"`
	InitialKWh float64                      `json:"initial_kwh"`
	Modes      battery.Plan                 `json:"modes"`
	Cost       float64                      `json:"cost"`
	GreedyCost float64                      `json:"greedy_cost"`
	BatteryKWh [battery.SlotsPerDay]float64 `json:"battery_kwh"`
	Generated  time.Time                    `json:"generated"`
}

// Status is a point-in-time copy of everything the API serves.
type Status struct {
	Today     ledger.DayRecord  `json:"today"`
	Yesterday ledger.DayRecord  `json:"yesterday"`
	Totals    ledger.Totals     `json:"totals"`
	Plan      *PlanStatus       `json:"plan,omitempty"`
	Instant   odometer.Snapshot `json:"instant"`
	Anomalies int               `json:"anomalies"`
	Updated   time.Time         `json:"updated"`
}

// StatusReader is the read side used by the HTTP handlers.
type StatusReader interface {
	Status() Status
}

// StatusStore keeps the latest status in memory.
type StatusStore struct {
	mu sync.RWMutex
	st Status
}

func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

// SetDays replaces the day records and the running totals.
func (s *StatusStore) SetDays(today, yesterday ledger.DayRecord, totals ledger.Totals) {
	today, yesterday = cloneDay(today), cloneDay(yesterday)
	s.mu.Lock()
	s.st.Today = today
	s.st.Yesterday = yesterday
	s.st.Totals = totals
	s.st.Updated = time.Now().UTC()
	s.mu.Unlock()
}

func (s *StatusStore) SetPlan(p PlanStatus) {
	s.mu.Lock()
	s.st.Plan = &p
	s.st.Updated = time.Now().UTC()
	s.mu.Unlock()
}

func (s *StatusStore) SetInstant(snap odometer.Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	s.st.Instant = snap
	s.st.Updated = time.Now().UTC()
	s.mu.Unlock()
}

func (s *StatusStore) AddAnomalies(n int) {
	s.mu.Lock()
	s.st.Anomalies += n
	s.mu.Unlock()
}

// Status returns a copy safe to use without the lock.
func (s *StatusStore) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.st
	out.Today = cloneDay(s.st.Today)
	out.Yesterday = cloneDay(s.st.Yesterday)
	out.Instant = s.st.Instant.Clone()
	if s.st.Plan != nil {
		p := *s.st.Plan
		out.Plan = &p
	}
	return out
}

func cloneDay(d ledger.DayRecord) ledger.DayRecord {
	if d.Readings == nil {
		return d
	}
	rs := make([]*ledger.ReadingRecord, len(d.Readings))
	for i, r := range d.Readings {
		if r == nil {
			continue
		}
		c := *r
		if r.BatteryLevel != nil {
			v := *r.BatteryLevel
			c.BatteryLevel = &v
		}
		rs[i] = &c
	}
	d.Readings = rs
	return d
}
