package reports

import (
	"context"
	"fmt"
	"time"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

const overallColumns = "level, entity_id, name, total, last30, children, parent_entity_id, asof, version"

// GetOverall returns the cumulative report of one (level, entity) key, or nil
// when absent.
func (db *DB) GetOverall(ctx context.Context, level geomodels.Level, entityID uint64) (*reportmodels.OverallReport, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE level = ? AND entity_id = ?
		LIMIT 1
	`, overallColumns, db.Name, reportmodels.OverallTableName)

	var rows []reportmodels.OverallReport
	if err := db.Select(ctx, &rows, query, level.String(), entityID); err != nil {
		return nil, fmt.Errorf("get overall %s/%d: %w", level, entityID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListOverall returns every cumulative report at one level.
func (db *DB) ListOverall(ctx context.Context, level geomodels.Level) ([]reportmodels.OverallReport, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE level = ?
		ORDER BY entity_id
	`, overallColumns, db.Name, reportmodels.OverallTableName)

	var rows []reportmodels.OverallReport
	if err := db.Select(ctx, &rows, query, level.String()); err != nil {
		return nil, fmt.Errorf("list overall %s: %w", level, err)
	}
	return rows, nil
}

// UpsertOverall re-inserts cumulative rows with bumped versions in batches;
// ReplacingMergeTree keeps the newest version per (level, entity_id).
func (db *DB) UpsertOverall(ctx context.Context, rows []*reportmodels.OverallReport, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for offset := 0; offset < len(rows); offset += batchSize {
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := db.insertOverallBatch(ctx, rows[offset:end]); err != nil {
			return fmt.Errorf("upsert overall batch at %d: %w", offset, err)
		}
	}
	return nil
}

func (db *DB) insertOverallBatch(ctx context.Context, rows []*reportmodels.OverallReport) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`,
		db.Name, reportmodels.OverallTableName, overallColumns)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	for _, r := range rows {
		last30 := r.Last30
		if last30 == nil {
			last30 = map[string]uint64{}
		}
		err = batch.Append(
			r.Level,
			r.EntityID,
			r.Name,
			r.Total,
			last30,
			r.Children,
			r.ParentEntityID,
			r.AsOf,
			r.Version,
		)
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

// LatestOverallAsOf reports the most recent day the cumulative maintainer has
// absorbed, across all levels. The bool is false when no cumulative rows exist
// yet.
func (db *DB) LatestOverallAsOf(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf(`
		SELECT count() AS n, max(asof) AS latest
		FROM "%s"."%s"
	`, db.Name, reportmodels.OverallTableName)

	var row struct {
		N      uint64    `ch:"n"`
		Latest time.Time `ch:"latest"`
	}
	if err := db.QueryRow(ctx, query).ScanStruct(&row); err != nil {
		return time.Time{}, false, fmt.Errorf("latest overall asof: %w", err)
	}
	if row.N == 0 {
		return time.Time{}, false, nil
	}
	return row.Latest, true, nil
}
