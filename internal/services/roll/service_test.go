package roll

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
)

func TestRollStaysWithinOverallBounds(t *testing.T) {
	svc := NewService()
	intervals := []model.Interval{
		{LowerMinutes: 1, UpperMinutes: 10, Weight: 50},
		{LowerMinutes: 60, UpperMinutes: 120, Weight: 30},
		{LowerMinutes: 1440, UpperMinutes: 4320, Weight: 1},
	}

	for i := 0; i < 5000; i++ {
		got, err := svc.Roll(intervals)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Minutes, 1)
		assert.LessOrEqual(t, got.Minutes, 4320)
	}
}

func TestRollSingleIntervalStaysWithinItsBounds(t *testing.T) {
	svc := NewService()
	intervals := []model.Interval{{LowerMinutes: 30, UpperMinutes: 45, Weight: 7}}

	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		got, err := svc.Roll(intervals)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.Minutes, 30)
		require.LessOrEqual(t, got.Minutes, 45)
		seen[got.Minutes] = true
	}
	assert.True(t, seen[30], "lower bound should be reachable")
	assert.True(t, seen[45], "upper bound should be reachable")
}

func TestRollFixedInterval(t *testing.T) {
	got, err := NewService().Roll([]model.Interval{{LowerMinutes: 1, UpperMinutes: 1, Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Minutes)
	assert.Equal(t, "1 minute", got.Label())
}

func TestRollSelectsCategoryByWeight(t *testing.T) {
	svc := NewService()
	// intN is called twice per roll: category pick, then minute pick.
	picks := []int{0, 0, 3, 0, 4, 0}
	svc.intN = func(n int) int {
		v := picks[0]
		picks = picks[1:]
		return v
	}
	intervals := []model.Interval{
		{LowerMinutes: 5, UpperMinutes: 5, Weight: 3},
		{LowerMinutes: 90, UpperMinutes: 90, Weight: 2},
	}

	want := []int{5, 90, 90}
	for _, minutes := range want {
		got, err := svc.Roll(intervals)
		require.NoError(t, err)
		assert.Equal(t, minutes, got.Minutes)
	}
}

func TestRollRejectsInvalidIntervals(t *testing.T) {
	svc := NewService()

	_, err := svc.Roll(nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = svc.Roll([]model.Interval{{LowerMinutes: 1, UpperMinutes: 2, Weight: 0}})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = svc.Roll([]model.Interval{{LowerMinutes: 10, UpperMinutes: 2, Weight: 1}})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestRollRejectsOversizedIntervals(t *testing.T) {
	tests := []struct {
		name      string
		intervals []model.Interval
	}{
		{name: "upper past max bound", intervals: []model.Interval{{LowerMinutes: 0, UpperMinutes: math.MaxInt, Weight: 1}}},
		{name: "weight sum overflows", intervals: []model.Interval{
			{LowerMinutes: 1, UpperMinutes: 2, Weight: math.MaxInt},
			{LowerMinutes: 1, UpperMinutes: 2, Weight: 1},
		}},
		{name: "weight sum past cap", intervals: []model.Interval{
			{LowerMinutes: 1, UpperMinutes: 2, Weight: rules.MaxTotalWeight},
			{LowerMinutes: 1, UpperMinutes: 2, Weight: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := NewService().Roll(tt.intervals)
				assert.ErrorIs(t, err, model.ErrInvalidConfig)
			})
		})
	}
}

func TestRollAcceptsMaximumBounds(t *testing.T) {
	got, err := NewService().Roll([]model.Interval{{LowerMinutes: 0, UpperMinutes: rules.MaxBoundMinutes, Weight: rules.MaxTotalWeight}})
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Minutes, rules.MaxBoundMinutes)
}

func TestFetchReturnsTimeoutAction(t *testing.T) {
	action, err := NewService().Fetch([]model.Interval{{LowerMinutes: 2, UpperMinutes: 2, Weight: 1}})
	require.NoError(t, err)

	timeout, ok := action.(model.Timeout)
	require.True(t, ok)
	assert.Equal(t, 2, timeout.Minutes)
}
