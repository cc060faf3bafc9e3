package activity

import "time"

const (
	DailyTableName   = "daily_activity"
	MonthlyTableName = "monthly_activity"
)

// DailyActivity holds the set of users active on one calendar date.
// At most one logical row exists per date; ingestion merges newly observed
// users into today's set by re-inserting the unioned set with a higher version,
// which ReplacingMergeTree collapses on merge.
type DailyActivity struct {
	Date    time.Time `ch:"date"`
	UserIDs []uint64  `ch:"user_ids"`
	Version uint64    `ch:"version"`
}

// MonthlyActivity holds the day numbers (1-31) on which one user was active in
// one calendar month. Unique per (user, year, month).
type MonthlyActivity struct {
	UserID  uint64  `ch:"user_id"`
	Year    uint16  `ch:"year"`
	Month   uint8   `ch:"month"`
	Days    []uint8 `ch:"days"`
	Version uint64  `ch:"version"`
}
