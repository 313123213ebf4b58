package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sunledger/core/battery"
)

func TestPlanDayComparesWithGreedy(t *testing.T) {
	sim, use, price := scenario(t)
	dp, err := PlanDay(sim, 0, use, price, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1280, dp.Result.TotalCost, 1e-9)
	assert.Equal(t, []int{0, 1, 2, 3}, dp.Greedy.Slots(battery.Import))
	// greedy fills the battery too early and drains it before the expensive period
	assert.InDelta(t, 1760, dp.GreedyResult.TotalCost, 1e-9)
	assert.Equal(t, 0.0, dp.InitialKWh)
}

func TestPlanDayPropagatesPreconditions(t *testing.T) {
	sim, use, price := scenario(t)
	if _, err := PlanDay(sim, 13, use, price, 10); err == nil {
		t.Fatalf("expected error for initial charge above capacity")
	}
}

func TestLevelKWh(t *testing.T) {
	assert.Equal(t, 6.0, LevelKWh(50, 12))
	assert.Equal(t, 12.0, LevelKWh(104, 12))
	assert.Equal(t, 0.0, LevelKWh(-3, 12))
}
