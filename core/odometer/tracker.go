package odometer

import "time"

// Tracker remembers the previous snapshot so each new snapshot is reconciled
// exactly once. It is owned by the control loop and is not safe for
// concurrent use.
type Tracker struct {
	prev Snapshot
}

// Observe reconciles cur against the previously observed snapshot and keeps
// cur for the next call. The first observation yields zero deltas.
func (t *Tracker) Observe(cur Snapshot) Deltas {
	if t.prev == nil {
		t.prev = cur.Clone()
		return Deltas{}
	}
	d := Reconcile(t.prev, cur, chargePowerElapsed(t.prev, cur))
	t.prev = cur.Clone()
	return d
}

// Reset forgets the previous snapshot.
func (t *Tracker) Reset() { t.prev = nil }

func chargePowerElapsed(prev, cur Snapshot) time.Duration {
	p, okP := prev[RegBatteryChargePower]
	c, okC := cur[RegBatteryChargePower]
	if !okP || !okC || !c.At.After(p.At) {
		return 0
	}
	return c.At.Sub(p.At)
}
