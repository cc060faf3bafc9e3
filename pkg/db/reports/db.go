package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/gramscope/gramscope/pkg/db/clickhouse"
	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
	"github.com/gramscope/gramscope/pkg/utils"
	"go.uber.org/zap"
)

// Store describes the report database operations required by the rollup
// engine, the cumulative maintainer and the read API.
type Store interface {
	InitializeDB(ctx context.Context) error

	// --- Windowed report writes (staging-first: insert, link, promote)

	HasWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) (bool, error)
	DeleteWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error
	CleanStagingWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error
	InsertStaging(ctx context.Context, g reportmodels.Granularity, rows []*reportmodels.Report, batchSize int) error
	StagingWindowReports(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error)
	PromoteWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error

	// --- Windowed report reads

	WindowReports(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error)
	GetReport(ctx context.Context, g reportmodels.Granularity, level geomodels.Level, entityID uint64, w reportmodels.Window) (*reportmodels.Report, error)
	GetReportByID(ctx context.Context, id string) (*reportmodels.Report, error)
	ListRecent(ctx context.Context, limit int, before time.Time, beforeID string) ([]reportmodels.Report, error)

	// --- Cumulative reports

	GetOverall(ctx context.Context, level geomodels.Level, entityID uint64) (*reportmodels.OverallReport, error)
	ListOverall(ctx context.Context, level geomodels.Level) ([]reportmodels.OverallReport, error)
	UpsertOverall(ctx context.Context, rows []*reportmodels.OverallReport, batchSize int) error
	LatestOverallAsOf(ctx context.Context) (time.Time, bool, error)

	Close() error
}

// DB holds the generated report tables: one production/staging table pair per
// granularity plus the cumulative overall_reports table.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects to the reports database and ensures its tables exist.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("REPORTS_DB", "gramscope_reports"))

	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", dbName),
		zap.String("component", "reports_db"),
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

// reportColumns is the shared column list of all windowed report tables.
const reportColumns = "id, level, entity_id, entity_name, window_start, window_end, week, month, year, count, children, users, distribution, parent_report_id, version"

// InitializeDB creates the reports database, the three production/staging
// report table pairs and the cumulative table. The ReplacingMergeTree ordering
// key (level, entity_id, window_start) is the uniqueness backstop: concurrent
// duplicate runs collapse to one row per key on merge, newest version winning.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("create database %s: %w", db.Name, err)
	}

	reportDDL := `
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			id String,
			level LowCardinality(String),
			entity_id UInt64,
			entity_name String,
			window_start Date,
			window_end Date,
			week UInt8,
			month UInt8,
			year UInt16,
			count UInt64,
			children String CODEC(ZSTD(3)),
			users String CODEC(ZSTD(3)),
			distribution Map(UInt32, UInt64),
			parent_report_id Nullable(String),
			version UInt64
		) ENGINE = %s
		ORDER BY (level, entity_id, window_start)
	`

	for _, g := range []reportmodels.Granularity{reportmodels.Daily, reportmodels.Weekly, reportmodels.Monthly} {
		for _, table := range []string{reportmodels.TableName(g), reportmodels.StagingTableName(g)} {
			query := fmt.Sprintf(reportDDL, db.Name, table, clickhouse.Engine(clickhouse.ReplacingMergeTree, "version"))
			if err := db.Exec(ctx, query); err != nil {
				return fmt.Errorf("create %s: %w", table, err)
			}
		}
	}

	overallQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			level LowCardinality(String),
			entity_id UInt64,
			name String,
			total UInt64,
			last30 Map(String, UInt64),
			children String CODEC(ZSTD(3)),
			parent_entity_id Nullable(UInt64),
			asof Date,
			version UInt64
		) ENGINE = %s
		ORDER BY (level, entity_id)
	`, db.Name, reportmodels.OverallTableName, clickhouse.Engine(clickhouse.ReplacingMergeTree, "version"))
	if err := db.Exec(ctx, overallQuery); err != nil {
		return fmt.Errorf("create %s: %w", reportmodels.OverallTableName, err)
	}

	return nil
}

// windowPredicate returns the WHERE clause and args selecting one window's
// rows inside a granularity table.
func windowPredicate(g reportmodels.Granularity, w reportmodels.Window) (string, []interface{}) {
	switch g {
	case reportmodels.Weekly:
		return "week = ? AND year = ?", []interface{}{w.Week, w.Year}
	case reportmodels.Monthly:
		return "month = ? AND year = ?", []interface{}{w.Month, w.Year}
	default:
		return "window_start = ?", []interface{}{w.Start}
	}
}
