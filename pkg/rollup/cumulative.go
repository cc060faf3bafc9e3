package rollup

import (
	"context"
	"time"

	"go.uber.org/zap"

	activitymodels "github.com/gramscope/gramscope/pkg/db/models/activity"
	"github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
)

const dayFormat = "2006-01-02"

// OverallSummary reports one cumulative-maintenance run.
type OverallSummary struct {
	DaysProcessed int
	From          time.Time
	To            time.Time
}

// RunOverall advances the forward-only cumulative reports through every day
// not yet absorbed, up to yesterday. The resume point is the newest asof on
// record; the first ever run starts at the earliest raw-activity date.
func (e *Engine) RunOverall(ctx context.Context) (*OverallSummary, error) {
	now := e.clock().Now().UTC()
	yesterday := Truncate(now.AddDate(0, 0, -1), reports.Daily)

	latest, hasRows, err := e.Reports.LatestOverallAsOf(ctx)
	if err != nil {
		return nil, err
	}

	var from time.Time
	if hasRows {
		from = Truncate(latest, reports.Daily).AddDate(0, 0, 1)
	} else {
		earliest, hasData, err := e.Activity.EarliestDate(ctx)
		if err != nil {
			return nil, err
		}
		if !hasData {
			return nil, ErrNoActivityData
		}
		from = Truncate(earliest, reports.Daily)
	}

	summary := &OverallSummary{From: from, To: yesterday}
	if from.After(yesterday) {
		e.Logger.Info("Cumulative reports already current",
			zap.Time("asof", latest))
		return summary, nil
	}

	idx, err := BuildIndex(ctx, e.Geo)
	if err != nil {
		return nil, err
	}

	// Days must land in order: each one's eviction horizon and running totals
	// build on the previous day's state.
	for day := from; !day.After(yesterday); day = day.AddDate(0, 0, 1) {
		if err := e.maintainDay(ctx, idx, day); err != nil {
			return summary, err
		}
		summary.DaysProcessed++
	}

	e.Logger.Info("Cumulative reports advanced",
		zap.Int("days", summary.DaysProcessed),
		zap.Time("through", yesterday))
	return summary, nil
}

// MaintainOverall absorbs a single calendar day into the cumulative reports.
// Re-running an already-absorbed day is a no-op, so totals never double-count.
func (e *Engine) MaintainOverall(ctx context.Context, day time.Time) error {
	idx, err := BuildIndex(ctx, e.Geo)
	if err != nil {
		return err
	}
	return e.maintainDay(ctx, idx, day)
}

func (e *Engine) maintainDay(ctx context.Context, idx *Index, day time.Time) error {
	day = Truncate(day, reports.Daily)
	dayKey := day.Format(dayFormat)
	horizon := day.AddDate(0, 0, -30)
	version := uint64(e.clock().Now().UnixNano())

	rows, err := e.Activity.RangeDaily(ctx, day, day)
	if err != nil {
		return err
	}
	counts := dayCountsPerEntity(rows, idx)

	var changed []*reports.OverallReport
	for _, level := range geo.Levels() {
		existing, err := e.Reports.ListOverall(ctx, level)
		if err != nil {
			return err
		}
		byID := make(map[uint64]*reports.OverallReport, len(existing))
		for i := range existing {
			byID[existing[i].EntityID] = &existing[i]
		}

		for entityID, count := range counts[level] {
			row, ok := byID[entityID]
			if !ok {
				entity, found := idx.Entity(level, entityID)
				if !found {
					continue
				}
				row = &reports.OverallReport{
					Level:    level.String(),
					EntityID: entityID,
					Name:     entity.Name,
					Children: "[]",
				}
				if _, hasParent := level.Parent(); hasParent {
					parentID := entity.ParentID
					row.ParentEntityID = &parentID
				}
			}
			// Days land strictly in order, so anything at or before asof is
			// already absorbed. Last30 cannot back this check: it evicts.
			if !row.AsOf.Before(day) {
				continue
			}

			if row.Last30 == nil {
				row.Last30 = map[string]uint64{}
			}
			row.Total += count
			row.Last30[dayKey] = count
			for key := range row.Last30 {
				if d, err := time.ParseInLocation(dayFormat, key, time.UTC); err == nil && d.Before(horizon) {
					delete(row.Last30, key)
				}
			}
			if row.AsOf.Before(day) {
				row.AsOf = day
			}
			row.Version = version
			changed = append(changed, row)
		}
	}

	if len(changed) == 0 {
		e.Logger.Debug("No cumulative updates for day", zap.String("day", dayKey))
		return nil
	}
	if err := e.Reports.UpsertOverall(ctx, changed, e.BatchSize); err != nil {
		return err
	}
	e.Logger.Info("Cumulative day absorbed",
		zap.String("day", dayKey),
		zap.Int("entities", len(changed)))
	return nil
}

// dayCountsPerEntity resolves one day's distinct active users through the
// hierarchy so every ancestor entity receives each user exactly once.
func dayCountsPerEntity(rows []activitymodels.DailyActivity, idx *Index) map[geo.Level]map[uint64]uint64 {
	counts := make(map[geo.Level]map[uint64]uint64, 5)
	for _, level := range geo.Levels() {
		counts[level] = map[uint64]uint64{}
	}

	seen := map[uint64]struct{}{}
	for _, row := range rows {
		for _, userID := range row.UserIDs {
			if _, dup := seen[userID]; dup {
				continue
			}
			seen[userID] = struct{}{}
		}
	}

	userIDs := make([]uint64, 0, len(seen))
	for id := range seen {
		userIDs = append(userIDs, id)
	}
	for _, chain := range idx.ResolveChains(userIDs) {
		for _, level := range geo.Levels() {
			counts[level][chain.At(level)]++
		}
	}
	return counts
}

// RebuildOverall refreshes the derived shape of every cumulative row: complete
// child rosters on non-leaf rows and parent references everywhere. Totals and
// day maps are left untouched, and entities with no row yet get an empty one
// so the roster listing is complete at every level.
func (e *Engine) RebuildOverall(ctx context.Context) error {
	idx, err := BuildIndex(ctx, e.Geo)
	if err != nil {
		return err
	}
	version := uint64(e.clock().Now().UnixNano())

	byLevel := make(map[geo.Level]map[uint64]*reports.OverallReport, 5)
	for _, level := range geo.Levels() {
		existing, err := e.Reports.ListOverall(ctx, level)
		if err != nil {
			return err
		}
		rows := make(map[uint64]*reports.OverallReport, len(existing))
		for i := range existing {
			rows[existing[i].EntityID] = &existing[i]
		}
		byLevel[level] = rows
	}

	var changed []*reports.OverallReport
	for _, level := range geo.Levels() {
		childLevel, hasChildren := level.Child()
		for _, entityID := range idx.EntityIDs(level) {
			entity, _ := idx.Entity(level, entityID)

			row, ok := byLevel[level][entityID]
			if !ok {
				row = &reports.OverallReport{
					Level:    level.String(),
					EntityID: entityID,
					Name:     entity.Name,
				}
				byLevel[level][entityID] = row
			}

			if _, hasParent := level.Parent(); hasParent {
				parentID := entity.ParentID
				row.ParentEntityID = &parentID
			} else {
				row.ParentEntityID = nil
			}

			children := "[]"
			if hasChildren {
				var summaries []reports.ChildSummary
				for _, childID := range idx.Children(level, entityID) {
					childEntity, _ := idx.Entity(childLevel, childID)
					var total uint64
					if childRow, ok := byLevel[childLevel][childID]; ok {
						total = childRow.Total
					}
					summaries = append(summaries, reports.ChildSummary{
						ChildID: childID,
						Name:    childEntity.Name,
						Count:   total,
					})
				}
				encoded, err := reports.EncodeChildren(summaries)
				if err != nil {
					return err
				}
				children = encoded
			}
			row.Children = children
			row.Version = version
			changed = append(changed, row)
		}
	}

	if err := e.Reports.UpsertOverall(ctx, changed, e.BatchSize); err != nil {
		return err
	}
	e.Logger.Info("Cumulative rosters rebuilt", zap.Int("entities", len(changed)))
	return nil
}
