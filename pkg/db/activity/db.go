package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/gramscope/gramscope/pkg/db/clickhouse"
	activitymodels "github.com/gramscope/gramscope/pkg/db/models/activity"
	"github.com/gramscope/gramscope/pkg/utils"
	"go.uber.org/zap"
)

// Store gives the engine read access to the raw activity facts and the
// ingestion path its merge operations. The engine itself only reads.
type Store interface {
	EarliestDate(ctx context.Context) (time.Time, bool, error)
	RangeDaily(ctx context.Context, start, end time.Time) ([]activitymodels.DailyActivity, error)
	MergeDay(ctx context.Context, date time.Time, userIDs []uint64) error
	AppendMonthlyDay(ctx context.Context, userID uint64, year uint16, month uint8, day uint8) error
	Close() error
}

// DB holds the append-only raw activity facts: one row per date with the
// day's active-user set, and one row per (user, year, month) with the day
// numbers the user was active.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects to the activity database and ensures its tables exist.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("ACTIVITY_DB", "gramscope_activity"))

	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", dbName),
		zap.String("component", "activity_db"),
	), dbName)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: dbName}
	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// InitializeDB creates the activity database and the two fact tables.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("create database %s: %w", db.Name, err)
	}

	dailyQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			date Date,
			user_ids Array(UInt64),
			version UInt64
		) ENGINE = %s
		ORDER BY date
	`, db.Name, activitymodels.DailyTableName, clickhouse.Engine(clickhouse.ReplacingMergeTree, "version"))
	if err := db.Exec(ctx, dailyQuery); err != nil {
		return fmt.Errorf("create %s: %w", activitymodels.DailyTableName, err)
	}

	monthlyQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			user_id UInt64,
			year UInt16,
			month UInt8,
			days Array(UInt8),
			version UInt64
		) ENGINE = %s
		ORDER BY (user_id, year, month)
	`, db.Name, activitymodels.MonthlyTableName, clickhouse.Engine(clickhouse.ReplacingMergeTree, "version"))
	if err := db.Exec(ctx, monthlyQuery); err != nil {
		return fmt.Errorf("create %s: %w", activitymodels.MonthlyTableName, err)
	}

	return nil
}

// EarliestDate returns the date of the earliest raw activity record. The
// second return value is false when no raw facts exist at all.
func (db *DB) EarliestDate(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf(`
		SELECT count() AS rows, min(date) AS earliest
		FROM "%s"."%s"
	`, db.Name, activitymodels.DailyTableName)

	var out []struct {
		Rows     uint64    `ch:"rows"`
		Earliest time.Time `ch:"earliest"`
	}
	if err := db.Select(ctx, &out, query); err != nil {
		return time.Time{}, false, fmt.Errorf("earliest activity date: %w", err)
	}
	if len(out) == 0 || out[0].Rows == 0 {
		return time.Time{}, false, nil
	}
	return out[0].Earliest.UTC(), true, nil
}

// RangeDaily returns the daily activity rows whose date falls inside
// [start, end], one merged row per date. Reads use FINAL so an in-flight
// ingestion merge never yields two versions of the same date.
func (db *DB) RangeDaily(ctx context.Context, start, end time.Time) ([]activitymodels.DailyActivity, error) {
	query := fmt.Sprintf(`
		SELECT date, user_ids, version
		FROM "%s"."%s" FINAL
		WHERE date >= ? AND date <= ?
		ORDER BY date
	`, db.Name, activitymodels.DailyTableName)

	var rows []activitymodels.DailyActivity
	if err := db.Select(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("range daily activity: %w", err)
	}
	return rows, nil
}

// MergeDay unions newly observed active users into the date's existing set and
// re-inserts the row with a bumped version; ReplacingMergeTree keeps at most
// one row per date.
func (db *DB) MergeDay(ctx context.Context, date time.Time, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}

	existing, err := db.RangeDaily(ctx, date, date)
	if err != nil {
		return err
	}

	seen := make(map[uint64]struct{})
	merged := make([]uint64, 0, len(userIDs))
	if len(existing) > 0 {
		for _, uid := range existing[0].UserIDs {
			seen[uid] = struct{}{}
			merged = append(merged, uid)
		}
	}
	for _, uid := range userIDs {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		merged = append(merged, uid)
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (date, user_ids, version) VALUES`,
		db.Name, activitymodels.DailyTableName)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	if err := batch.Append(date, merged, uint64(time.Now().UnixNano())); err != nil {
		return err
	}
	return batch.Send()
}

// AppendMonthlyDay appends a day number to the user's month row when absent.
func (db *DB) AppendMonthlyDay(ctx context.Context, userID uint64, year uint16, month uint8, day uint8) error {
	query := fmt.Sprintf(`
		SELECT user_id, year, month, days, version
		FROM "%s"."%s" FINAL
		WHERE user_id = ? AND year = ? AND month = ?
	`, db.Name, activitymodels.MonthlyTableName)

	var rows []activitymodels.MonthlyActivity
	if err := db.Select(ctx, &rows, query, userID, year, month); err != nil {
		return fmt.Errorf("load monthly activity: %w", err)
	}

	var days []uint8
	if len(rows) > 0 {
		for _, d := range rows[0].Days {
			if d == day {
				return nil
			}
			days = append(days, d)
		}
	}
	days = append(days, day)

	insert := fmt.Sprintf(`INSERT INTO "%s"."%s" (user_id, year, month, days, version) VALUES`,
		db.Name, activitymodels.MonthlyTableName)
	batch, err := db.PrepareBatch(ctx, insert)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	if err := batch.Append(userID, year, month, days, uint64(time.Now().UnixNano())); err != nil {
		return err
	}
	return batch.Send()
}
