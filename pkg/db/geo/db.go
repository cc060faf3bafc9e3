package geo

import (
	"context"
	"fmt"

	"github.com/gramscope/gramscope/pkg/db/clickhouse"
	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/utils"
	"go.uber.org/zap"
)

// Store is the geographic hierarchy snapshot consumed by the rollup engine and
// the read API. The engine never mutates the hierarchy; the insert methods
// exist for the ingestion path and test fixtures.
type Store interface {
	ListLevel(ctx context.Context, level geomodels.Level) ([]geomodels.Entity, error)
	ListUsers(ctx context.Context) ([]geomodels.User, error)
	InsertEntities(ctx context.Context, level geomodels.Level, rows []geomodels.Entity) error
	InsertUsers(ctx context.Context, rows []geomodels.User) error
	Close() error
}

// DB holds the geographic reference tables: one table per hierarchy level plus
// the users table anchoring people to villages.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects to the geo database and ensures its tables exist.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("GEO_DB", "gramscope_geo"))

	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", dbName),
		zap.String("component", "geo_db"),
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

// levelTable maps a hierarchy level to its table and parent-id column.
// Countries have no parent column.
func levelTable(level geomodels.Level) (table, parentCol string) {
	switch level {
	case geomodels.LevelVillage:
		return "villages", "subdistrict_id"
	case geomodels.LevelSubdistrict:
		return "subdistricts", "district_id"
	case geomodels.LevelDistrict:
		return "districts", "state_id"
	case geomodels.LevelState:
		return "states", "country_id"
	default:
		return "countries", ""
	}
}

// InitializeDB creates the geo database and its six tables.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("create database %s: %w", db.Name, err)
	}

	for _, level := range geomodels.Levels() {
		table, parentCol := levelTable(level)
		parentDDL := ""
		if parentCol != "" {
			parentDDL = fmt.Sprintf(",\n\t\t\t%s UInt64", parentCol)
		}
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" (
				id UInt64,
				name String%s
			) ENGINE = %s
			ORDER BY id
		`, db.Name, table, parentDDL, clickhouse.Engine(clickhouse.ReplacingMergeTree, ""))
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}

	usersQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."users" (
			id UInt64,
			name String,
			village_id UInt64
		) ENGINE = %s
		ORDER BY id
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, ""))
	if err := db.Exec(ctx, usersQuery); err != nil {
		return fmt.Errorf("create users: %w", err)
	}

	return nil
}

// ListLevel returns the complete snapshot of one hierarchy level. The parent
// column is aliased to parent_id so all levels share one row model; countries
// report a zero parent.
func (db *DB) ListLevel(ctx context.Context, level geomodels.Level) ([]geomodels.Entity, error) {
	table, parentCol := levelTable(level)

	parentExpr := "toUInt64(0) AS parent_id"
	if parentCol != "" {
		parentExpr = fmt.Sprintf("%s AS parent_id", parentCol)
	}
	query := fmt.Sprintf(`
		SELECT id, name, %s
		FROM "%s"."%s" FINAL
		ORDER BY id
	`, parentExpr, db.Name, table)

	var rows []geomodels.Entity
	if err := db.Select(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", level, err)
	}
	return rows, nil
}

// ListUsers returns the complete user snapshot.
func (db *DB) ListUsers(ctx context.Context) ([]geomodels.User, error) {
	query := fmt.Sprintf(`
		SELECT id, name, village_id
		FROM "%s"."users" FINAL
		ORDER BY id
	`, db.Name)

	var rows []geomodels.User
	if err := db.Select(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return rows, nil
}

// InsertEntities loads entities into one level's table.
func (db *DB) InsertEntities(ctx context.Context, level geomodels.Level, rows []geomodels.Entity) error {
	if len(rows) == 0 {
		return nil
	}
	table, parentCol := levelTable(level)

	cols := "id, name"
	if parentCol != "" {
		cols += ", " + parentCol
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`, db.Name, table, cols))
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	for _, row := range rows {
		if parentCol != "" {
			err = batch.Append(row.ID, row.Name, row.ParentID)
		} else {
			err = batch.Append(row.ID, row.Name)
		}
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

// InsertUsers loads user rows.
func (db *DB) InsertUsers(ctx context.Context, rows []geomodels.User) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO "%s"."users" (id, name, village_id) VALUES`, db.Name))
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	for _, row := range rows {
		if err = batch.Append(row.ID, row.Name, row.VillageID); err != nil {
			return err
		}
	}
	return batch.Send()
}
