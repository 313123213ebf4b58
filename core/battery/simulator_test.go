package battery

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func mustSim(t *testing.T, capacity, power float64, opts ...Option) *Simulator {
	t.Helper()
	s, err := NewSimulator(capacity, power, opts...)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	return s
}

func TestNewSimulatorPreconditions(t *testing.T) {
	for _, c := range []struct{ cap, pow float64 }{{0, 7}, {12, 0}, {-1, 7}, {math.NaN(), 7}} {
		if _, err := NewSimulator(c.cap, c.pow); !errors.Is(err, ErrPrecondition) {
			t.Fatalf("cap=%v pow=%v: expected precondition error, got %v", c.cap, c.pow, err)
		}
	}
	if _, err := NewSimulator(12, 7, WithReserve(13)); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected reserve error, got %v", err)
	}
}

func TestSimulateRejectsInitialOutOfRange(t *testing.T) {
	s := mustSim(t, 12, 7)
	var plan Plan
	for _, init := range []float64{-0.1, 12.1, math.NaN()} {
		if _, err := s.Simulate(init, FlatProfile(1), FlatProfile(1), plan); !errors.Is(err, ErrPrecondition) {
			t.Fatalf("initial %v: expected precondition error, got %v", init, err)
		}
	}
	plan[3] = Mode(5)
	if _, err := s.Simulate(0, FlatProfile(1), FlatProfile(1), plan); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestNewProfileLength(t *testing.T) {
	if _, err := NewProfile(make([]float64, 47)); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected precondition error for short series")
	}
	p, err := NewProfile(make([]float64, 48))
	if err != nil || p != (Profile{}) {
		t.Fatalf("unexpected result %v %v", p, err)
	}
}

func TestModeSemantics(t *testing.T) {
	s := mustSim(t, 10, 4)
	price := FlatProfile(2)
	use := FlatProfile(1.5)

	var plan Plan
	plan[0] = Import
	plan[1] = Export
	plan[2] = Balance
	plan[3] = Export
	res, err := s.Simulate(1, use, price, plan)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	tr := res.Trace
	if tr[0].BatteryKWh != 3 || tr[0].GridKWh != 3.5 || tr[0].Cost != 7 {
		t.Fatalf("import slot: %+v", tr[0])
	}
	if tr[1].BatteryKWh != 1 || tr[1].GridKWh != -0.5 || tr[1].Cost != -1 {
		t.Fatalf("export slot: %+v", tr[1])
	}
	if tr[2].BatteryKWh != 0 || tr[2].GridKWh != 0.5 {
		t.Fatalf("balance slot limited by battery: %+v", tr[2])
	}
	if tr[3].BatteryKWh != 0 || tr[3].GridKWh != 1.5 {
		t.Fatalf("export from empty battery: %+v", tr[3])
	}
	if res.FinalKWh != 0 {
		t.Fatalf("expected empty battery, got %v", res.FinalKWh)
	}
}

func TestBalanceNeverExceedsHouseDemand(t *testing.T) {
	s := mustSim(t, 10, 4)
	var plan Plan
	res, err := s.Simulate(10, FlatProfile(0.2), FlatProfile(1), plan)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for i, tr := range res.Trace {
		if tr.GridKWh != 0 || tr.FlowKWh != -0.2 {
			t.Fatalf("slot %d should be covered by the battery: %+v", i, tr)
		}
	}
	if math.Abs(res.FinalKWh-0.4) > 1e-9 {
		t.Fatalf("unexpected final level %v", res.FinalKWh)
	}
}

func TestTraceStaysWithinBounds(t *testing.T) {
	s := mustSim(t, 12, 7)
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 200; n++ {
		var plan Plan
		var use, price Profile
		for i := range plan {
			plan[i] = Modes[rng.Intn(len(Modes))]
			use[i] = rng.Float64() * 3
			price[i] = rng.Float64()*40 - 5
		}
		init := rng.Float64() * 12
		res, err := s.Simulate(init, use, price, plan)
		if err != nil {
			t.Fatalf("simulate: %v", err)
		}
		prev := init
		for i, tr := range res.Trace {
			if tr.BatteryKWh < 0 || tr.BatteryKWh > 12 {
				t.Fatalf("slot %d battery %v outside bounds", i, tr.BatteryKWh)
			}
			if math.Abs(tr.BatteryKWh-prev) > s.SlotLimit()+1e-9 {
				t.Fatalf("slot %d moved %v kWh", i, tr.BatteryKWh-prev)
			}
			prev = tr.BatteryKWh
		}
	}
}

func TestMissingSlotsAreSkipped(t *testing.T) {
	s := mustSim(t, 12, 7)
	use := FlatProfile(1)
	price := FlatProfile(10)
	use[5] = math.NaN()
	price[6] = math.NaN()
	var plan Plan
	plan[5] = Import
	plan[6] = Import
	res, err := s.Simulate(0, use, price, plan)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(res.MissingSlots) != 2 || res.MissingSlots[0] != 5 || res.MissingSlots[1] != 6 {
		t.Fatalf("unexpected missing slots %v", res.MissingSlots)
	}
	if !res.Trace[5].Missing || res.Trace[5].BatteryKWh != 0 || res.Trace[6].Cost != 0 {
		t.Fatalf("missing slots must not move the battery: %+v %+v", res.Trace[5], res.Trace[6])
	}
	if res.TotalCost != 46*10 {
		t.Fatalf("expected 460, got %v", res.TotalCost)
	}
}

func TestReserveLimitsDischarge(t *testing.T) {
	s := mustSim(t, 10, 4, WithReserve(2))
	var plan Plan
	for i := range plan {
		plan[i] = Export
	}
	res, err := s.Simulate(5, FlatProfile(0), FlatProfile(1), plan)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.FinalKWh != 2 {
		t.Fatalf("expected reserve to hold 2 kWh, got %v", res.FinalKWh)
	}
}

func TestModeText(t *testing.T) {
	var plan Plan
	plan[0] = Import
	plan[1] = Export
	b, err := json.Marshal(plan[:3])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["import","export","balance"]` {
		t.Fatalf("unexpected json %s", b)
	}
	var back []Mode
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[0] != Import || back[1] != Export || back[2] != Balance {
		t.Fatalf("round trip mismatch %v", back)
	}
	if _, err := ParseMode("charge"); err == nil {
		t.Fatalf("expected parse error")
	}
	if plan.Count(Balance) != 46 || len(plan.Slots(Import)) != 1 {
		t.Fatalf("count mismatch")
	}
}

func TestProfileMean(t *testing.T) {
	p := FlatProfile(2)
	p[0] = math.NaN()
	p[1] = 50
	mean, n := p.Mean()
	if n != 47 || math.Abs(mean-(2*46+50)/47.0) > 1e-9 {
		t.Fatalf("unexpected mean %v over %d", mean, n)
	}
	if m, n := MissingProfile().Mean(); !math.IsNaN(m) || n != 0 {
		t.Fatalf("expected NaN mean for empty profile")
	}
}
