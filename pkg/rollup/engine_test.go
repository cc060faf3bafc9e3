package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
	"github.com/gramscope/gramscope/pkg/rollup"
)

func newTestEngine(t *testing.T, activity *fakeActivityStore, store *fakeReportsStore, now time.Time) *rollup.Engine {
	t.Helper()
	return &rollup.Engine{
		Logger:   zaptest.NewLogger(t),
		Activity: activity,
		Geo:      fixtureGeo(),
		Reports:  store,
		Clock:    clockwork.NewFakeClockAt(now),
	}
}

func TestRunRangeGeneratesAndPromotesWindows(t *testing.T) {
	activity := &fakeActivityStore{}
	activity.addDay("2025-06-16", 1, 2)
	activity.addDay("2025-06-17", 4)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-20"))

	summary, err := engine.RunRange(context.Background(), reportmodels.Daily, nil, nil, false)
	require.NoError(t, err)

	// Defaults: earliest activity date through yesterday.
	require.Equal(t, 4, summary.Windows)
	require.Equal(t, 4, summary.Succeeded)
	require.Zero(t, summary.Failed)

	w := rollup.WindowAt(day("2025-06-16"), reportmodels.Daily)
	rows, err := store.WindowReports(context.Background(), reportmodels.Daily, w)
	require.NoError(t, err)
	// Bilikere + Hunsur + Mysore + Karnataka + Bharat.
	require.Len(t, rows, 5)

	// A day with no activity commits no rows but still succeeds.
	empty := rollup.WindowAt(day("2025-06-18"), reportmodels.Daily)
	rows, err = store.WindowReports(context.Background(), reportmodels.Daily, empty)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRunRangeLinksParents(t *testing.T) {
	activity := &fakeActivityStore{}
	activity.addDay("2025-06-16", 1, 4)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-17"))

	_, err := engine.RunRange(context.Background(), reportmodels.Daily, nil, nil, false)
	require.NoError(t, err)

	w := rollup.WindowAt(day("2025-06-16"), reportmodels.Daily)
	village, err := store.GetReport(context.Background(), reportmodels.Daily, geomodels.LevelVillage, 100, w)
	require.NoError(t, err)
	require.NotNil(t, village)
	require.NotNil(t, village.ParentReportID)
	require.Equal(t, "daily:2025-06-16:subdistrict:200", *village.ParentReportID)

	country, err := store.GetReport(context.Background(), reportmodels.Daily, geomodels.LevelCountry, 500, w)
	require.NoError(t, err)
	require.NotNil(t, country)
	require.Nil(t, country.ParentReportID)
}

func TestRunRangeSkipsExistingWindows(t *testing.T) {
	activity := &fakeActivityStore{}
	activity.addDay("2025-06-16", 1)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-17"))

	start := day("2025-06-16")
	_, err := engine.RunRange(context.Background(), reportmodels.Daily, &start, &start, false)
	require.NoError(t, err)
	promotesAfterFirst := store.promotes

	summary, err := engine.RunRange(context.Background(), reportmodels.Daily, &start, &start, false)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Succeeded)
	require.Equal(t, promotesAfterFirst, store.promotes, "a skipped window must not write")
}

func TestRunRangeForceRegenerates(t *testing.T) {
	activity := &fakeActivityStore{}
	activity.addDay("2025-06-16", 1)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-17"))

	start := day("2025-06-16")
	_, err := engine.RunRange(context.Background(), reportmodels.Daily, &start, &start, false)
	require.NoError(t, err)

	activity.addDay("2025-06-16", 2)
	summary, err := engine.RunRange(context.Background(), reportmodels.Daily, &start, &start, true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, store.deletes)

	w := rollup.WindowAt(start, reportmodels.Daily)
	village, err := store.GetReport(context.Background(), reportmodels.Daily, geomodels.LevelVillage, 100, w)
	require.NoError(t, err)
	require.Equal(t, uint64(2), village.Count, "forced rerun picks up late-arriving users")
}

func TestRunRangeWithoutActivityDataFails(t *testing.T) {
	engine := newTestEngine(t, &fakeActivityStore{}, newFakeReportsStore(), day("2025-06-17"))

	_, err := engine.RunRange(context.Background(), reportmodels.Daily, nil, nil, false)
	require.ErrorIs(t, err, rollup.ErrNoActivityData)
}

func TestRunRangeRejectsInvalidRange(t *testing.T) {
	activity := &fakeActivityStore{}
	activity.addDay("2025-06-16", 1)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-17"))

	// End boundary inside the current, incomplete day.
	end := day("2025-06-17")
	_, err := engine.RunRange(context.Background(), reportmodels.Daily, nil, &end, false)
	require.True(t, rollup.IsInvalidRange(err))
	require.Zero(t, store.promotes, "validation failures must precede all writes")
}

func TestRunRangeWeeklyDistribution(t *testing.T) {
	activity := &fakeActivityStore{}
	// Asha active 3 days of the week, Ravi 1.
	activity.addDay("2025-06-16", 1)
	activity.addDay("2025-06-17", 1, 2)
	activity.addDay("2025-06-19", 1)
	store := newFakeReportsStore()
	engine := newTestEngine(t, activity, store, day("2025-06-25"))

	start := day("2025-06-16")
	summary, err := engine.RunRange(context.Background(), reportmodels.Weekly, &start, &start, false)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	w := rollup.WindowAt(start, reportmodels.Weekly)
	village, err := store.GetReport(context.Background(), reportmodels.Weekly, geomodels.LevelVillage, 100, w)
	require.NoError(t, err)
	require.Equal(t, uint64(2), village.Count)
	require.Equal(t, uint64(2), village.Distribution[1])
	require.Equal(t, uint64(1), village.Distribution[2])
	require.Equal(t, uint64(1), village.Distribution[3])
	require.Zero(t, village.Distribution[4])
}
