package rollup

import (
	activitymodels "github.com/gramscope/gramscope/pkg/db/models/activity"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
)

// AggregateFrequencies converts raw per-date activity rows into a per-user
// visit-frequency map for one window: how many days inside [start,end] each
// user appears in the day's active set. Rows outside the window are ignored;
// duplicate rows for the same date (unmerged ReplacingMergeTree parts) count
// each date once per user.
func AggregateFrequencies(rows []activitymodels.DailyActivity, w reports.Window) map[uint64]uint64 {
	type dayUser struct {
		day  string
		user uint64
	}

	freqs := make(map[uint64]uint64)
	seen := make(map[dayUser]struct{})

	for _, row := range rows {
		d := row.Date.UTC()
		if d.Before(w.Start) || d.After(w.End) {
			continue
		}
		key := d.Format("2006-01-02")
		for _, uid := range row.UserIDs {
			du := dayUser{day: key, user: uid}
			if _, dup := seen[du]; dup {
				continue
			}
			seen[du] = struct{}{}
			freqs[uid]++
		}
	}
	return freqs
}

// ActiveUserIDs returns the distinct user ids present in a frequency map,
// unordered.
func ActiveUserIDs(freqs map[uint64]uint64) []uint64 {
	out := make([]uint64, 0, len(freqs))
	for uid := range freqs {
		out = append(out, uid)
	}
	return out
}
