package rollup_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	activitymodels "github.com/gramscope/gramscope/pkg/db/models/activity"
	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

// A single-chain fixture is enough here: the rollup semantics themselves are
// covered by the engine's own package tests, these tests only exercise the
// temporal activity surface.
func fixtureGeo() *fakeGeoStore {
	return &fakeGeoStore{
		levels: map[geomodels.Level][]geomodels.Entity{
			geomodels.LevelVillage:     {{ID: 100, Name: "Bilikere", ParentID: 200}},
			geomodels.LevelSubdistrict: {{ID: 200, Name: "Hunsur", ParentID: 300}},
			geomodels.LevelDistrict:    {{ID: 300, Name: "Mysore", ParentID: 400}},
			geomodels.LevelState:       {{ID: 400, Name: "Karnataka", ParentID: 500}},
			geomodels.LevelCountry:     {{ID: 500, Name: "Bharat"}},
		},
		users: []geomodels.User{
			{ID: 1, Name: "Asha", VillageID: 100},
			{ID: 2, Name: "Ravi", VillageID: 100},
		},
	}
}

type fakeGeoStore struct {
	levels map[geomodels.Level][]geomodels.Entity
	users  []geomodels.User
}

func (f *fakeGeoStore) ListLevel(_ context.Context, level geomodels.Level) ([]geomodels.Entity, error) {
	return f.levels[level], nil
}

func (f *fakeGeoStore) ListUsers(context.Context) ([]geomodels.User, error) {
	return f.users, nil
}

func (f *fakeGeoStore) InsertEntities(_ context.Context, level geomodels.Level, rows []geomodels.Entity) error {
	f.levels[level] = append(f.levels[level], rows...)
	return nil
}

func (f *fakeGeoStore) InsertUsers(_ context.Context, rows []geomodels.User) error {
	f.users = append(f.users, rows...)
	return nil
}

func (f *fakeGeoStore) Close() error { return nil }

type fakeActivityStore struct {
	rows []activitymodels.DailyActivity
}

func (f *fakeActivityStore) addDay(date time.Time, userIDs ...uint64) {
	f.rows = append(f.rows, activitymodels.DailyActivity{Date: date, UserIDs: userIDs})
}

func (f *fakeActivityStore) EarliestDate(context.Context) (time.Time, bool, error) {
	if len(f.rows) == 0 {
		return time.Time{}, false, nil
	}
	earliest := f.rows[0].Date
	for _, row := range f.rows[1:] {
		if row.Date.Before(earliest) {
			earliest = row.Date
		}
	}
	return earliest, true, nil
}

func (f *fakeActivityStore) RangeDaily(_ context.Context, start, end time.Time) ([]activitymodels.DailyActivity, error) {
	var out []activitymodels.DailyActivity
	for _, row := range f.rows {
		if !row.Date.Before(start) && !row.Date.After(end) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeActivityStore) MergeDay(_ context.Context, date time.Time, userIDs []uint64) error {
	f.addDay(date, userIDs...)
	return nil
}

func (f *fakeActivityStore) AppendMonthlyDay(context.Context, uint64, uint16, uint8, uint8) error {
	return nil
}

func (f *fakeActivityStore) Close() error { return nil }

type fakeReportsStore struct {
	mu      sync.Mutex
	staging map[string]map[string]reportmodels.Report
	prod    map[string]map[string]reportmodels.Report
	overall map[string]reportmodels.OverallReport
}

func newFakeReportsStore() *fakeReportsStore {
	return &fakeReportsStore{
		staging: map[string]map[string]reportmodels.Report{},
		prod:    map[string]map[string]reportmodels.Report{},
		overall: map[string]reportmodels.OverallReport{},
	}
}

func bucket(g reportmodels.Granularity, w reportmodels.Window) string {
	return g.String() + ":" + w.Key()
}

func (f *fakeReportsStore) InitializeDB(context.Context) error { return nil }

func (f *fakeReportsStore) HasWindow(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prod[bucket(g, w)]) > 0, nil
}

func (f *fakeReportsStore) DeleteWindow(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prod, bucket(g, w))
	return nil
}

func (f *fakeReportsStore) CleanStagingWindow(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.staging, bucket(g, w))
	return nil
}

func (f *fakeReportsStore) InsertStaging(_ context.Context, g reportmodels.Granularity, rows []*reportmodels.Report, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		key := bucket(g, row.Window(g))
		if f.staging[key] == nil {
			f.staging[key] = map[string]reportmodels.Report{}
		}
		if existing, ok := f.staging[key][row.ID]; !ok || row.Version >= existing.Version {
			f.staging[key][row.ID] = *row
		}
	}
	return nil
}

func (f *fakeReportsStore) StagingWindowReports(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reportmodels.Report
	for _, row := range f.staging[bucket(g, w)] {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReportsStore) PromoteWindow(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucket(g, w)
	if f.prod[key] == nil {
		f.prod[key] = map[string]reportmodels.Report{}
	}
	for id, row := range f.staging[key] {
		f.prod[key][id] = row
	}
	return nil
}

func (f *fakeReportsStore) WindowReports(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reportmodels.Report
	for _, row := range f.prod[bucket(g, w)] {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReportsStore) GetReport(_ context.Context, g reportmodels.Granularity, level geomodels.Level, entityID uint64, w reportmodels.Window) (*reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := reportmodels.ReportID(w, level, entityID)
	if row, ok := f.prod[bucket(g, w)][id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeReportsStore) GetReportByID(_ context.Context, id string) (*reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rows := range f.prod {
		if row, ok := rows[id]; ok {
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeReportsStore) ListRecent(_ context.Context, limit int, before time.Time, beforeID string) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reportmodels.Report
	for _, rows := range f.prod {
		for _, row := range rows {
			tied := row.WindowEnd.Equal(before) && beforeID != "" && row.ID > beforeID
			if before.IsZero() || row.WindowEnd.Before(before) || tied {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WindowEnd.Equal(out[j].WindowEnd) {
			return out[i].WindowEnd.After(out[j].WindowEnd)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func overallKey(level string, entityID uint64) string {
	return fmt.Sprintf("%s:%d", level, entityID)
}

func (f *fakeReportsStore) GetOverall(_ context.Context, level geomodels.Level, entityID uint64) (*reportmodels.OverallReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.overall[overallKey(level.String(), entityID)]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeReportsStore) ListOverall(_ context.Context, level geomodels.Level) ([]reportmodels.OverallReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reportmodels.OverallReport
	for _, row := range f.overall {
		if row.Level == level.String() {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (f *fakeReportsStore) UpsertOverall(_ context.Context, rows []*reportmodels.OverallReport, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		copied := *row
		copied.Last30 = make(map[string]uint64, len(row.Last30))
		for k, v := range row.Last30 {
			copied.Last30[k] = v
		}
		f.overall[overallKey(row.Level, row.EntityID)] = copied
	}
	return nil
}

func (f *fakeReportsStore) LatestOverallAsOf(context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	found := false
	for _, row := range f.overall {
		if row.AsOf.After(latest) {
			latest = row.AsOf
			found = true
		}
	}
	return latest, found, nil
}

func (f *fakeReportsStore) Close() error { return nil }
