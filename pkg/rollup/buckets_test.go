package rollup_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gramscope/gramscope/pkg/db/models/reports"
	"github.com/gramscope/gramscope/pkg/rollup"
)

func TestBucketsForGranularity(t *testing.T) {
	require.False(t, rollup.BucketsFor(reports.Daily).Enabled())

	weekly := rollup.BucketsFor(reports.Weekly)
	require.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7}, weekly.Thresholds)
	require.Zero(t, weekly.Cap)

	monthly := rollup.BucketsFor(reports.Monthly)
	require.Equal(t, []uint32{1, 5, 10, 15, 20, 25, 30}, monthly.Thresholds)
	require.Equal(t, uint32(30), monthly.Cap)
}

func TestMonthlyDistributionClampsTo30(t *testing.T) {
	// Four users with 1, 5, 10 and 31 active days; the 31 lands in the 30
	// bucket because frequencies are clamped to the cap first.
	freqs := map[uint64]uint64{1: 1, 2: 5, 3: 10, 4: 31}

	got := rollup.BucketsFor(reports.Monthly).Distribution(freqs)
	require.Equal(t, map[uint32]uint64{
		1:  4,
		5:  3,
		10: 2,
		15: 1,
		20: 1,
		25: 1,
		30: 1,
	}, got)
}

func TestDistributionWithoutCap(t *testing.T) {
	spec := rollup.BucketSpec{Thresholds: []uint32{1, 5, 10, 15, 20, 25, 30}}
	freqs := map[uint64]uint64{1: 1, 2: 5, 3: 10, 4: 31}

	// Uncapped, 31 still meets every threshold; the result is identical
	// because met-or-exceeded counting absorbs the overflow.
	got := spec.Distribution(freqs)
	require.Equal(t, map[uint32]uint64{
		1:  4,
		5:  3,
		10: 2,
		15: 1,
		20: 1,
		25: 1,
		30: 1,
	}, got)
}

func TestWeeklyDistributionCountsMetOrExceeded(t *testing.T) {
	freqs := map[uint64]uint64{1: 7, 2: 3, 3: 1}

	got := rollup.BucketsFor(reports.Weekly).Distribution(freqs)
	require.Equal(t, map[uint32]uint64{
		1: 3,
		2: 2,
		3: 2,
		4: 1,
		5: 1,
		6: 1,
		7: 1,
	}, got)
}

func TestDistributionZeroFillsEmptyBuckets(t *testing.T) {
	got := rollup.BucketsFor(reports.Weekly).Distribution(map[uint64]uint64{1: 2})
	require.Equal(t, uint64(0), got[7])
	require.Len(t, got, 7)
}

func TestDailyDistributionIsNil(t *testing.T) {
	require.Nil(t, rollup.BucketsFor(reports.Daily).Distribution(map[uint64]uint64{1: 1}))
}
