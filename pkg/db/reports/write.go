package reports

import (
	"context"
	"fmt"

	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
	"go.uber.org/zap"
)

// DefaultBatchSize bounds one INSERT payload when the caller passes no
// explicit batch size.
const DefaultBatchSize = 1000

// HasWindow reports whether the production table already holds rows for the
// window. Re-running a generated window without force is a no-op.
func (db *DB) HasWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) (bool, error) {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`SELECT count() AS rows FROM "%s"."%s" WHERE %s`,
		db.Name, reportmodels.TableName(g), pred)

	var out []struct {
		Rows uint64 `ch:"rows"`
	}
	if err := db.Select(ctx, &out, query, args...); err != nil {
		return false, fmt.Errorf("check window %s/%s: %w", g, w.Key(), err)
	}
	return len(out) > 0 && out[0].Rows > 0, nil
}

// DeleteWindow removes all production rows of one window (force regeneration).
// Uses lightweight DELETE for instant, non-blocking deletion.
func (db *DB) DeleteWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`DELETE FROM "%s"."%s" WHERE %s`,
		db.Name, reportmodels.TableName(g), pred)
	if err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete window %s/%s: %w", g, w.Key(), err)
	}
	return nil
}

// CleanStagingWindow removes a window's staging rows. Idempotent; safe to run
// before and after promotion.
func (db *DB) CleanStagingWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`DELETE FROM "%s"."%s" WHERE %s`,
		db.Name, reportmodels.StagingTableName(g), pred)
	if err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clean staging %s/%s: %w", g, w.Key(), err)
	}
	return nil
}

// InsertStaging writes report rows to the granularity's staging table in
// batches bounded by batchSize.
func (db *DB) InsertStaging(ctx context.Context, g reportmodels.Granularity, rows []*reportmodels.Report, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	table := reportmodels.StagingTableName(g)
	for offset := 0; offset < len(rows); offset += batchSize {
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := db.insertReportBatch(ctx, table, rows[offset:end]); err != nil {
			return fmt.Errorf("insert staging batch at %d: %w", offset, err)
		}
	}

	db.Logger.Debug("Staged report rows",
		zap.String("granularity", g.String()),
		zap.Int("rows", len(rows)),
		zap.Int("batch_size", batchSize))
	return nil
}

func (db *DB) insertReportBatch(ctx context.Context, table string, rows []*reportmodels.Report) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`, db.Name, table, reportColumns)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	for _, r := range rows {
		dist := r.Distribution
		if dist == nil {
			dist = map[uint32]uint64{}
		}
		err = batch.Append(
			r.ID,
			r.Level,
			r.EntityID,
			r.EntityName,
			r.WindowStart,
			r.WindowEnd,
			r.Week,
			r.Month,
			r.Year,
			r.Count,
			r.Children,
			r.Users,
			dist,
			r.ParentReportID,
			r.Version,
		)
		if err != nil {
			return err
		}
	}
	return batch.Send()
}

// StagingWindowReports returns the deduplicated staging rows of one window,
// all levels, for the parent-link pass.
func (db *DB) StagingWindowReports(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE %s
		ORDER BY level, entity_id
	`, reportColumns, db.Name, reportmodels.StagingTableName(g), pred)

	var rows []reportmodels.Report
	if err := db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("staging window %s/%s: %w", g, w.Key(), err)
	}
	return rows, nil
}

// PromoteWindow copies one window's deduplicated staging rows into the
// production table in a single statement, so readers never observe a window
// with some levels present and others missing. The operation is idempotent -
// safe to retry if it fails.
func (db *DB) PromoteWindow(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) error {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`
		INSERT INTO "%s"."%s" (%s)
		SELECT %s FROM "%s"."%s" FINAL WHERE %s
	`, db.Name, reportmodels.TableName(g), reportColumns,
		reportColumns, db.Name, reportmodels.StagingTableName(g), pred)

	if err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("promote window %s/%s: %w", g, w.Key(), err)
	}
	return nil
}
