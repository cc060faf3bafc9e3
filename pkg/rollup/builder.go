package rollup

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
)

// LevelAccumulator carries one level's built reports through the pipeline as
// an explicit value: each builder pass consumes the previous level's
// accumulator and returns a new one, so independent windows and branches can
// run concurrently without shared aggregation state.
type LevelAccumulator struct {
	Level   geo.Level
	Reports map[uint64]*reports.Report
}

// Rows returns the accumulator's reports ordered by entity id.
func (a *LevelAccumulator) Rows() []*reports.Report {
	out := make([]*reports.Report, 0, len(a.Reports))
	for _, id := range sortedKeys(a.Reports) {
		out = append(out, a.Reports[id])
	}
	return out
}

func sortedKeys(m map[uint64]*reports.Report) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// BuildLeafReports builds the village-level reports for one window from the
// per-user frequency map. A village row exists only when at least one of its
// users was active in-window; the row embeds the active users' display names
// and, for weekly/monthly windows, the activity-distribution histogram.
func BuildLeafReports(w reports.Window, freqs map[uint64]uint64, chains map[uint64]Chain, idx *Index) (*LevelAccumulator, error) {
	spec := BucketsFor(w.Granularity)

	villageUsers := make(map[uint64][]uint64)
	for uid := range freqs {
		chain, ok := chains[uid]
		if !ok {
			continue
		}
		villageUsers[chain.Village] = append(villageUsers[chain.Village], uid)
	}

	acc := &LevelAccumulator{Level: geo.LevelVillage, Reports: make(map[uint64]*reports.Report, len(villageUsers))}
	for villageID, uids := range villageUsers {
		village, ok := idx.Entity(geo.LevelVillage, villageID)
		if !ok {
			return nil, fmt.Errorf("village %d missing from hierarchy snapshot", villageID)
		}

		users := make(map[string]string, len(uids))
		villageFreqs := make(map[uint64]uint64, len(uids))
		for _, uid := range uids {
			u, _ := idx.User(uid)
			users[strconv.FormatUint(uid, 10)] = u.Name
			villageFreqs[uid] = freqs[uid]
		}

		usersJSON, err := reports.EncodeUsers(users)
		if err != nil {
			return nil, fmt.Errorf("encode users of village %d: %w", villageID, err)
		}

		acc.Reports[villageID] = &reports.Report{
			ID:           reports.ReportID(w, geo.LevelVillage, villageID),
			Level:        geo.LevelVillage.String(),
			EntityID:     villageID,
			EntityName:   village.Name,
			WindowStart:  w.Start,
			WindowEnd:    w.End,
			Week:         w.Week,
			Month:        w.Month,
			Year:         w.Year,
			Count:        uint64(len(uids)),
			Users:        usersJSON,
			Distribution: spec.Distribution(villageFreqs),
		}
	}
	return acc, nil
}

// BuildRollupReports builds one non-leaf level from the level below. Every
// entity at the level is considered; the embedded children listing iterates
// the complete roster from the hierarchy index (inactive children appear with
// count 0 and a null report id), but an entity whose total stays at zero is
// not persisted, so sparse propagation continues upward only while some
// descendant is active.
func BuildRollupReports(w reports.Window, level geo.Level, child *LevelAccumulator, idx *Index) (*LevelAccumulator, error) {
	childLevel, ok := level.Child()
	if !ok {
		return nil, fmt.Errorf("level %s has no child level to roll up", level)
	}
	if child.Level != childLevel {
		return nil, fmt.Errorf("rollup into %s expects %s input, got %s", level, childLevel, child.Level)
	}

	acc := &LevelAccumulator{Level: level, Reports: make(map[uint64]*reports.Report)}
	for _, entityID := range idx.EntityIDs(level) {
		entity, _ := idx.Entity(level, entityID)

		var total uint64
		roster := idx.Children(level, entityID)
		children := make([]reports.ChildSummary, 0, len(roster))
		for _, childID := range roster {
			childEntity, _ := idx.Entity(childLevel, childID)
			summary := reports.ChildSummary{ChildID: childID, Name: childEntity.Name}
			if report, active := child.Reports[childID]; active {
				summary.Count = report.Count
				id := report.ID
				summary.ReportID = &id
			}
			total += summary.Count
			children = append(children, summary)
		}

		if total == 0 {
			continue
		}

		childrenJSON, err := reports.EncodeChildren(children)
		if err != nil {
			return nil, fmt.Errorf("encode children of %s %d: %w", level, entityID, err)
		}

		acc.Reports[entityID] = &reports.Report{
			ID:          reports.ReportID(w, level, entityID),
			Level:       level.String(),
			EntityID:    entityID,
			EntityName:  entity.Name,
			WindowStart: w.Start,
			WindowEnd:   w.End,
			Week:        w.Week,
			Month:       w.Month,
			Year:        w.Year,
			Count:       total,
			Children:    childrenJSON,
		}
	}
	return acc, nil
}

// BuildAllLevels runs the five bottom-up builder passes for one window.
func BuildAllLevels(w reports.Window, freqs map[uint64]uint64, chains map[uint64]Chain, idx *Index) ([]*LevelAccumulator, error) {
	leaf, err := BuildLeafReports(w, freqs, chains, idx)
	if err != nil {
		return nil, err
	}

	levels := []*LevelAccumulator{leaf}
	prev := leaf
	for level, ok := geo.LevelVillage.Parent(); ok; level, ok = level.Parent() {
		next, err := BuildRollupReports(w, level, prev, idx)
		if err != nil {
			return nil, err
		}
		levels = append(levels, next)
		prev = next
	}
	return levels, nil
}
