package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

// WindowReports returns every production row of one window, all five levels,
// bottom level first.
func (db *DB) WindowReports(ctx context.Context, g reportmodels.Granularity, w reportmodels.Window) ([]reportmodels.Report, error) {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE %s
		ORDER BY level, entity_id
	`, reportColumns, db.Name, reportmodels.TableName(g), pred)

	var rows []reportmodels.Report
	if err := db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("window reports %s/%s: %w", g, w.Key(), err)
	}
	return rows, nil
}

// GetReport returns the single report of one (level, entity, window) key, or
// nil when absent.
func (db *DB) GetReport(ctx context.Context, g reportmodels.Granularity, level geomodels.Level, entityID uint64, w reportmodels.Window) (*reportmodels.Report, error) {
	pred, args := windowPredicate(g, w)
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE level = ? AND entity_id = ? AND %s
		LIMIT 1
	`, reportColumns, db.Name, reportmodels.TableName(g), pred)

	var rows []reportmodels.Report
	allArgs := append([]interface{}{level.String(), entityID}, args...)
	if err := db.Select(ctx, &rows, query, allArgs...); err != nil {
		return nil, fmt.Errorf("get report %s/%s/%d/%s: %w", g, level, entityID, w.Key(), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetReportByID resolves a report by its deterministic id. The id prefix
// selects the granularity table.
func (db *DB) GetReportByID(ctx context.Context, id string) (*reportmodels.Report, error) {
	prefix, _, found := strings.Cut(id, ":")
	if !found {
		return nil, fmt.Errorf("malformed report id %q", id)
	}
	g, ok := reportmodels.ParseGranularity(prefix)
	if !ok {
		return nil, fmt.Errorf("malformed report id %q", id)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE id = ?
		LIMIT 1
	`, reportColumns, db.Name, reportmodels.TableName(g))

	var rows []reportmodels.Report
	if err := db.Select(ctx, &rows, query, id); err != nil {
		return nil, fmt.Errorf("get report by id %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListRecent returns the most recent reports across all three granularities,
// window end-date descending with id as the tie-break. A non-zero before acts
// as the pagination cursor; beforeID narrows it within the boundary end-date
// so groups of reports sharing a window end are not skipped across pages.
func (db *DB) ListRecent(ctx context.Context, limit int, before time.Time, beforeID string) ([]reportmodels.Report, error) {
	if limit <= 0 {
		limit = 50
	}

	cursor := ""
	var cursorArgs []interface{}
	if !before.IsZero() {
		if beforeID != "" {
			cursor = "WHERE window_end < ? OR (window_end = ? AND id > ?)"
			cursorArgs = []interface{}{before, before, beforeID}
		} else {
			cursor = "WHERE window_end < ?"
			cursorArgs = []interface{}{before}
		}
	}
	// The cursor args are bound once per UNION branch.
	var args []interface{}
	for i := 0; i < 3; i++ {
		args = append(args, cursorArgs...)
	}
	args = append(args, limit)

	branch := func(table string) string {
		return fmt.Sprintf(`SELECT %s FROM "%s"."%s" FINAL %s`, reportColumns, db.Name, table, cursor)
	}
	query := fmt.Sprintf(`
		SELECT * FROM (
			%s
			UNION ALL
			%s
			UNION ALL
			%s
		)
		ORDER BY window_end DESC, id
		LIMIT ?
	`, branch(reportmodels.DailyTableName), branch(reportmodels.WeeklyTableName), branch(reportmodels.MonthlyTableName))

	var rows []reportmodels.Report
	if err := db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list recent reports: %w", err)
	}
	return rows, nil
}
