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

// Fixture hierarchy used across the rollup tests:
//
//	Bharat (500)
//	└── Karnataka (400)          └── Kerala (401)
//	    └── Mysore (300)             └── Wayanad (301)
//	        ├── Hunsur (200)             └── Kalpetta (202)
//	        │   ├── Bilikere (100): Asha(1), Ravi(2)
//	        │   └── Hosur (101):    Meena(3)
//	        └── Piriyapatna (201)
//	            └── Ravandur (102): Kiran(4)
func fixtureGeo() *fakeGeoStore {
	return &fakeGeoStore{
		levels: map[geomodels.Level][]geomodels.Entity{
			geomodels.LevelVillage: {
				{ID: 100, Name: "Bilikere", ParentID: 200},
				{ID: 101, Name: "Hosur", ParentID: 200},
				{ID: 102, Name: "Ravandur", ParentID: 201},
			},
			geomodels.LevelSubdistrict: {
				{ID: 200, Name: "Hunsur", ParentID: 300},
				{ID: 201, Name: "Piriyapatna", ParentID: 300},
				{ID: 202, Name: "Kalpetta", ParentID: 301},
			},
			geomodels.LevelDistrict: {
				{ID: 300, Name: "Mysore", ParentID: 400},
				{ID: 301, Name: "Wayanad", ParentID: 401},
			},
			geomodels.LevelState: {
				{ID: 400, Name: "Karnataka", ParentID: 500},
				{ID: 401, Name: "Kerala", ParentID: 500},
			},
			geomodels.LevelCountry: {
				{ID: 500, Name: "Bharat"},
			},
		},
		users: []geomodels.User{
			{ID: 1, Name: "Asha", VillageID: 100},
			{ID: 2, Name: "Ravi", VillageID: 100},
			{ID: 3, Name: "Meena", VillageID: 101},
			{ID: 4, Name: "Kiran", VillageID: 102},
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

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func (f *fakeActivityStore) addDay(date string, userIDs ...uint64) {
	f.rows = append(f.rows, activitymodels.DailyActivity{Date: day(date), UserIDs: userIDs, Version: 1})
}

func (f *fakeActivityStore) EarliestDate(context.Context) (time.Time, bool, error) {
	if len(f.rows) == 0 {
		return time.Time{}, false, nil
	}
	earliest := f.rows[0].Date
	for _, r := range f.rows[1:] {
		if r.Date.Before(earliest) {
			earliest = r.Date
		}
	}
	return earliest, true, nil
}

func (f *fakeActivityStore) RangeDaily(_ context.Context, start, end time.Time) ([]activitymodels.DailyActivity, error) {
	var out []activitymodels.DailyActivity
	for _, r := range f.rows {
		if !r.Date.Before(start) && !r.Date.After(end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeActivityStore) MergeDay(_ context.Context, date time.Time, userIDs []uint64) error {
	f.rows = append(f.rows, activitymodels.DailyActivity{Date: date, UserIDs: userIDs, Version: 1})
	return nil
}

func (f *fakeActivityStore) AppendMonthlyDay(context.Context, uint64, uint16, uint8, uint8) error {
	return nil
}

func (f *fakeActivityStore) Close() error { return nil }

// fakeReportsStore mimics the staging/promote cycle of the real store in
// memory. Rows are keyed granularity:windowKey so each window's lifecycle is
// independent, matching the lightweight-DELETE scoping of the real tables.
type fakeReportsStore struct {
	mu      sync.Mutex
	staging map[string]map[string]reportmodels.Report // bucket -> report id -> row
	prod    map[string]map[string]reportmodels.Report
	overall map[string]reportmodels.OverallReport // "level:entityID"

	promotes int
	deletes  int
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

func overallKey(level string, entityID uint64) string {
	return fmt.Sprintf("%s:%d", level, entityID)
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
	f.deletes++
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
	for _, r := range rows {
		w := r.Window(g)
		b := bucket(g, w)
		if f.staging[b] == nil {
			f.staging[b] = map[string]reportmodels.Report{}
		}
		// Keep the newest version per id, like ReplacingMergeTree FINAL.
		if cur, ok := f.staging[b][r.ID]; !ok || r.Version >= cur.Version {
			f.staging[b][r.ID] = *r
		}
	}
	return nil
}

func (f *fakeReportsStore) StagingWindowReports(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedRows(f.staging[bucket(g, w)]), nil
}

func (f *fakeReportsStore) PromoteWindow(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotes++
	b := bucket(g, w)
	if f.prod[b] == nil {
		f.prod[b] = map[string]reportmodels.Report{}
	}
	for id, r := range f.staging[b] {
		f.prod[b][id] = r
	}
	return nil
}

func (f *fakeReportsStore) WindowReports(_ context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedRows(f.prod[bucket(g, w)]), nil
}

func (f *fakeReportsStore) GetReport(_ context.Context, g reportmodels.Granularity, level geomodels.Level, entityID uint64, w reportmodels.Window) (*reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := reportmodels.ReportID(w, level, entityID)
	if r, ok := f.prod[bucket(g, w)][id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeReportsStore) GetReportByID(_ context.Context, id string) (*reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rows := range f.prod {
		if r, ok := rows[id]; ok {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeReportsStore) ListRecent(_ context.Context, limit int, before time.Time, beforeID string) ([]reportmodels.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []reportmodels.Report
	for _, rows := range f.prod {
		for _, r := range rows {
			if !before.IsZero() {
				tied := r.WindowEnd.Equal(before) && beforeID != "" && r.ID > beforeID
				if !r.WindowEnd.Before(before) && !tied {
					continue
				}
			}
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].WindowEnd.Equal(all[j].WindowEnd) {
			return all[i].WindowEnd.After(all[j].WindowEnd)
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeReportsStore) GetOverall(_ context.Context, level geomodels.Level, entityID uint64) (*reportmodels.OverallReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.overall {
		if r.Level == level.String() && r.EntityID == entityID {
			row := r
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeReportsStore) ListOverall(_ context.Context, level geomodels.Level) ([]reportmodels.OverallReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reportmodels.OverallReport
	for _, r := range f.overall {
		if r.Level == level.String() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (f *fakeReportsStore) UpsertOverall(_ context.Context, rows []*reportmodels.OverallReport, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		key := overallKey(r.Level, r.EntityID)
		if cur, ok := f.overall[key]; !ok || r.Version >= cur.Version {
			// Copy the day map so callers can keep mutating their row.
			cp := *r
			cp.Last30 = make(map[string]uint64, len(r.Last30))
			for k, v := range r.Last30 {
				cp.Last30[k] = v
			}
			f.overall[key] = cp
		}
	}
	return nil
}

func (f *fakeReportsStore) LatestOverallAsOf(context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.overall) == 0 {
		return time.Time{}, false, nil
	}
	var latest time.Time
	for _, r := range f.overall {
		if r.AsOf.After(latest) {
			latest = r.AsOf
		}
	}
	return latest, true, nil
}

func (f *fakeReportsStore) Close() error { return nil }

func sortedRows(m map[string]reportmodels.Report) []reportmodels.Report {
	out := make([]reportmodels.Report, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
