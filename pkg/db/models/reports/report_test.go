package reports_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
)

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReportIDFormats(t *testing.T) {
	daily := reports.Window{Granularity: reports.Daily, Start: utcDay(2025, 6, 16), End: utcDay(2025, 6, 16)}
	require.Equal(t, "daily:2025-06-16:village:100", reports.ReportID(daily, geo.LevelVillage, 100))

	weekly := reports.Window{Granularity: reports.Weekly, Week: 7, Year: 2025}
	require.Equal(t, "weekly:w07-2025:district:300", reports.ReportID(weekly, geo.LevelDistrict, 300))

	monthly := reports.Window{Granularity: reports.Monthly, Month: 11, Year: 2024}
	require.Equal(t, "monthly:m11-2024:country:500", reports.ReportID(monthly, geo.LevelCountry, 500))
}

func TestReportGranularityFromID(t *testing.T) {
	require.Equal(t, reports.Weekly, (&reports.Report{ID: "weekly:w07-2025:district:300"}).Granularity())
	require.Equal(t, reports.Monthly, (&reports.Report{ID: "monthly:m11-2024:country:500"}).Granularity())
	require.Equal(t, reports.Daily, (&reports.Report{ID: "daily:2025-06-16:village:100"}).Granularity())
	require.Equal(t, reports.Daily, (&reports.Report{ID: "garbage"}).Granularity())
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"daily", "weekly", "monthly"} {
		g, ok := reports.ParseGranularity(s)
		require.True(t, ok)
		require.Equal(t, s, g.String())
	}
	_, ok := reports.ParseGranularity("hourly")
	require.False(t, ok)
}

func TestWindowKeyAndLabel(t *testing.T) {
	daily := reports.Window{Granularity: reports.Daily, Start: utcDay(2025, 6, 16), End: utcDay(2025, 6, 16)}
	require.Equal(t, "2025-06-16", daily.Key())
	require.Equal(t, "2025-06-16", daily.Label())

	weekly := reports.Window{
		Granularity: reports.Weekly,
		Start:       utcDay(2025, 6, 16), End: utcDay(2025, 6, 22),
		Week: 25, Year: 2025,
	}
	require.Equal(t, "w25-2025", weekly.Key())
	require.Equal(t, "Week 25, 2025 (2025-06-16 to 2025-06-22)", weekly.Label())

	monthly := reports.Window{
		Granularity: reports.Monthly,
		Start:       utcDay(2025, 2, 1), End: utcDay(2025, 2, 28),
		Month: 2, Year: 2025,
	}
	require.Equal(t, "m02-2025", monthly.Key())
	require.Equal(t, "February 2025", monthly.Label())
}

func TestChildrenRoundTripPreservesOrder(t *testing.T) {
	id := "daily:2025-06-16:village:100"
	in := []reports.ChildSummary{
		{ChildID: 100, Name: "Bilikere", Count: 2, ReportID: &id},
		{ChildID: 101, Name: "Hosur", Count: 0, ReportID: nil},
	}
	encoded, err := reports.EncodeChildren(in)
	require.NoError(t, err)

	out, err := (&reports.Report{ID: "x", Children: encoded}).DecodeChildren()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncodeChildrenEmpty(t *testing.T) {
	encoded, err := reports.EncodeChildren(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", encoded)
}

func TestEncodeUsersIsDeterministic(t *testing.T) {
	users := map[string]string{"2": "Ravi", "1": "Asha", "10": "Meena"}
	first, err := reports.EncodeUsers(users)
	require.NoError(t, err)
	second, err := reports.EncodeUsers(users)
	require.NoError(t, err)
	require.Equal(t, first, second)

	decoded, err := (&reports.Report{ID: "x", Users: first}).DecodeUsers()
	require.NoError(t, err)
	require.Equal(t, users, decoded)

	empty, err := reports.EncodeUsers(nil)
	require.NoError(t, err)
	require.Equal(t, "{}", empty)
}

func TestStagingTableNames(t *testing.T) {
	require.Equal(t, "daily_reports_staging", reports.StagingTableName(reports.Daily))
	require.Equal(t, "weekly_reports_staging", reports.StagingTableName(reports.Weekly))
	require.Equal(t, "monthly_reports_staging", reports.StagingTableName(reports.Monthly))
}
