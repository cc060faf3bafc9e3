package rollup

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	"github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/redis"
)

// Engine runs the windowed generation pipeline and the cumulative maintainer.
// One Engine is safe for a single batch invocation; independent windows are
// sharded across a bounded worker pool, with all report mutation for a given
// window confined to its worker.
type Engine struct {
	Logger   *zap.Logger
	Activity activitydb.Store
	Geo      geodb.Store
	Reports  reportsdb.Store

	// Events is optional; when set, each committed window publishes a
	// best-effort notification.
	Events *redis.Client

	// Clock drives "now" so the current-period validation and the 30-day
	// eviction are testable.
	Clock clockwork.Clock

	// BatchSize bounds one bulk-insert payload; zero means the store default.
	BatchSize int

	// MaxParallelism bounds the window worker pool; zero means 4.
	MaxParallelism int
}

func (e *Engine) clock() clockwork.Clock {
	if e.Clock == nil {
		return clockwork.NewRealClock()
	}
	return e.Clock
}

func (e *Engine) parallelism() int {
	if e.MaxParallelism > 0 {
		return e.MaxParallelism
	}
	return 4
}

// WindowResult reports the outcome of one window's build.
type WindowResult struct {
	Window   reports.Window     `json:"window"`
	Skipped  bool               `json:"skipped"`
	Rows     int                `json:"rows"`
	Levels   map[string]uint64  `json:"levels,omitempty"`
	Warnings int                `json:"warnings,omitempty"`
	Timings  map[string]float64 `json:"timings,omitempty"`
	Err      error              `json:"-"`
}

// RunSummary aggregates a multi-window run. Per-window failures do not abort
// the run; they surface here.
type RunSummary struct {
	Granularity reports.Granularity
	Windows     int
	Succeeded   int
	Failed      int
	Skipped     int
	Results     []WindowResult
}

// RunRange generates reports for every window between start and end. Nil
// boundaries take their defaults: the earliest raw-activity date, and the most
// recently completed period. Fails before any write on an invalid range or
// when no raw activity exists at all.
func (e *Engine) RunRange(ctx context.Context, g reports.Granularity, start, end *time.Time, force bool) (*RunSummary, error) {
	now := e.clock().Now().UTC()

	earliest, hasData, err := e.Activity.EarliestDate(ctx)
	if err != nil {
		return nil, err
	}
	if !hasData {
		return nil, ErrNoActivityData
	}

	from := earliest
	if start != nil {
		from = *start
	}
	to := LastCompleted(now, g)
	if end != nil {
		to = *end
	}

	windows, err := Windows(g, from, to, now)
	if err != nil {
		return nil, err
	}

	idx, err := BuildIndex(ctx, e.Geo)
	if err != nil {
		return nil, err
	}

	e.Logger.Info("Starting rollup run",
		zap.String("granularity", g.String()),
		zap.Int("windows", len(windows)),
		zap.Bool("force", force),
		zap.Int("parallelism", e.parallelism()))

	// Windows are independent of each other; shard them across the pool and
	// reassemble results in window order afterwards.
	results := xsync.NewMap[string, WindowResult]()
	pool := pond.NewPool(e.parallelism())
	for _, w := range windows {
		pool.Submit(func() {
			results.Store(w.Key(), e.runWindow(ctx, idx, w, force))
		})
	}
	pool.StopAndWait()

	summary := &RunSummary{Granularity: g, Windows: len(windows)}
	for _, w := range windows {
		res, _ := results.Load(w.Key())
		summary.Results = append(summary.Results, res)
		switch {
		case res.Err != nil:
			summary.Failed++
		case res.Skipped:
			summary.Skipped++
		default:
			summary.Succeeded++
		}
	}

	e.Logger.Info("Rollup run finished",
		zap.String("granularity", g.String()),
		zap.Int("windows", summary.Windows),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// runWindow executes the full pipeline for one window. Any error aborts only
// this window; staging is cleaned on entry so a failed window is safely
// re-runnable.
func (e *Engine) runWindow(ctx context.Context, idx *Index, w reports.Window, force bool) WindowResult {
	res := WindowResult{Window: w, Timings: map[string]float64{}}
	started := time.Now()
	stage := func(name string, since time.Time) {
		res.Timings[name] = float64(time.Since(since).Milliseconds())
	}

	g := w.Granularity
	logger := e.Logger.With(zap.String("granularity", g.String()), zap.String("window", w.Key()))

	if force {
		if res.Err = e.Reports.DeleteWindow(ctx, g, w); res.Err != nil {
			return res
		}
	} else {
		exists, err := e.Reports.HasWindow(ctx, g, w)
		if err != nil {
			res.Err = err
			return res
		}
		if exists {
			logger.Info("Window already generated, skipping")
			res.Skipped = true
			return res
		}
	}

	if res.Err = e.Reports.CleanStagingWindow(ctx, g, w); res.Err != nil {
		return res
	}

	t := time.Now()
	rawRows, err := e.Activity.RangeDaily(ctx, w.Start, w.End)
	if err != nil {
		res.Err = err
		return res
	}
	freqs := AggregateFrequencies(rawRows, w)
	stage("aggregate_ms", t)

	if len(freqs) == 0 {
		logger.Info("No activity inside window, nothing to persist")
		return res
	}

	t = time.Now()
	chains := idx.ResolveChains(ActiveUserIDs(freqs))
	stage("resolve_chains_ms", t)

	t = time.Now()
	levels, err := BuildAllLevels(w, freqs, chains, idx)
	if err != nil {
		res.Err = err
		return res
	}
	stage("build_ms", t)

	version := uint64(e.clock().Now().UnixNano())
	var all []*reports.Report
	res.Levels = map[string]uint64{}
	for _, acc := range levels {
		rows := acc.Rows()
		for _, row := range rows {
			row.Version = version
			all = append(all, row)
		}
		res.Levels[acc.Level.String()] = uint64(len(rows))
	}
	res.Rows = len(all)

	t = time.Now()
	if res.Err = e.Reports.InsertStaging(ctx, g, all, e.BatchSize); res.Err != nil {
		return res
	}
	stage("stage_ms", t)

	t = time.Now()
	warnings, err := e.linkParents(ctx, idx, g, w, version+1)
	if err != nil {
		res.Err = err
		return res
	}
	res.Warnings = warnings
	stage("link_ms", t)

	t = time.Now()
	if res.Err = e.Reports.PromoteWindow(ctx, g, w); res.Err != nil {
		return res
	}
	if err := e.Reports.CleanStagingWindow(ctx, g, w); err != nil {
		// Leftover staging rows are re-cleaned by the next run.
		logger.Warn("Failed to clean staging after promote", zap.Error(err))
	}
	stage("promote_ms", t)

	res.Timings["total_ms"] = float64(time.Since(started).Milliseconds())
	logger.Info("Window committed",
		zap.Int("rows", res.Rows),
		zap.Int("warnings", res.Warnings),
		zap.Duration("duration", time.Since(started)))

	e.publishWindowEvent(ctx, res)
	return res
}

// linkParents is the second pass: once a window's five levels exist in
// staging, every non-top-level report gets its parent's report id for the same
// window. A child whose parent has no report leaves the reference null and is
// counted as a warning rather than failing the run.
func (e *Engine) linkParents(ctx context.Context, idx *Index, g reports.Granularity, w reports.Window, linkVersion uint64) (int, error) {
	staged, err := e.Reports.StagingWindowReports(ctx, g, w)
	if err != nil {
		return 0, err
	}

	byLevel := make(map[geo.Level]map[uint64]string, 5)
	for i := range staged {
		level := geo.Level(staged[i].Level)
		if byLevel[level] == nil {
			byLevel[level] = make(map[uint64]string)
		}
		byLevel[level][staged[i].EntityID] = staged[i].ID
	}

	warnings := 0
	var linked []*reports.Report
	for i := range staged {
		row := staged[i]
		level := geo.Level(row.Level)
		parentLevel, ok := level.Parent()
		if !ok {
			continue
		}

		entity, found := idx.Entity(level, row.EntityID)
		if !found {
			warnings++
			e.Logger.Warn("Entity missing from hierarchy snapshot during linking",
				zap.String("level", row.Level),
				zap.Uint64("entity_id", row.EntityID),
				zap.String("window", w.Key()))
			continue
		}

		parentReportID, found := byLevel[parentLevel][entity.ParentID]
		if !found {
			warnings++
			e.Logger.Warn("Parent entity has no report for window",
				zap.String("level", row.Level),
				zap.Uint64("entity_id", row.EntityID),
				zap.String("parent_level", parentLevel.String()),
				zap.Uint64("parent_id", entity.ParentID),
				zap.String("window", w.Key()))
			continue
		}

		row.ParentReportID = &parentReportID
		row.Version = linkVersion
		linked = append(linked, &row)
	}

	if err := e.Reports.InsertStaging(ctx, g, linked, e.BatchSize); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func (e *Engine) publishWindowEvent(ctx context.Context, res WindowResult) {
	if e.Events == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	e.Events.Publish(ctx, redis.EventsChannel, string(payload))
}
