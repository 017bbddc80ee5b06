package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconLevel(t *testing.T) {
	cases := []struct {
		mode     IconMode
		physical float64
		swap     float64
		want     int
	}{
		{IconSimple, 95, 95, 0},
		{IconPhysical, 44, 90, 4},
		{IconPhysical, 45, 0, 4},
		{IconPhysical, 85, 0, 8},
		{IconVirtual, 0, 75, 8},
		{IconVirtual, 10, 87, 9},
		{IconVirtual, 0, 100, 10},
		{IconVirtual, 0, 250, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IconLevel(tc.mode, tc.physical, tc.swap))
	}
}

func TestParseSortKey(t *testing.T) {
	key, ok := ParseSortKey(" RSS ")
	assert.True(t, ok)
	assert.Equal(t, SortByResident, key)
	assert.True(t, key.DefaultDescending())

	key, ok = ParseSortKey("name")
	assert.True(t, ok)
	assert.False(t, key.DefaultDescending())

	_, ok = ParseSortKey("cpu")
	assert.False(t, ok)
}

func TestSwapCapAndThresholdAccessors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.Swap.CapBytes())

	cfg.Swap.CustomSize = true
	cfg.Swap.CustomSizeMax = 2
	assert.Equal(t, uint64(2)<<30, cfg.Swap.CapBytes())

	th := cfg.Threshold(ResourceSwap)
	th.Percent = 70
	cfg.SetThreshold(ResourceSwap, th)
	assert.Equal(t, 70, cfg.Swap.Percent)
	assert.Equal(t, DefaultPercent, cfg.Virtual.Percent)

	assert.False(t, cfg.Virtual.RepeatEnabled())
	cfg.Virtual.CommandEnabled = true
	cfg.Virtual.CommandRepeatMinutes = 3
	assert.True(t, cfg.Virtual.RepeatEnabled())
}

func TestActionResultRemoved(t *testing.T) {
	assert.True(t, ActionResult{Outcome: OutcomeSucceeded}.Removed())
	assert.True(t, ActionResult{Outcome: OutcomeAlreadyGone}.Removed())
	assert.False(t, ActionResult{Outcome: OutcomeInconclusive}.Removed())
	assert.Equal(t, "access_denied", OutcomeAccessDenied.String())
}
