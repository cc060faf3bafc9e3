package rollup

import (
	"context"
	"fmt"
	"sort"

	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	"github.com/gramscope/gramscope/pkg/db/models/geo"
)

// Chain is one user's resolved ancestor line, one entity id per level.
type Chain struct {
	Village     uint64
	Subdistrict uint64
	District    uint64
	State       uint64
	Country     uint64
}

// At returns the chain's entity id at the given level.
func (c Chain) At(level geo.Level) uint64 {
	switch level {
	case geo.LevelVillage:
		return c.Village
	case geo.LevelSubdistrict:
		return c.Subdistrict
	case geo.LevelDistrict:
		return c.District
	case geo.LevelState:
		return c.State
	default:
		return c.Country
	}
}

// Index is a read-only snapshot of every geographic entity at every level,
// with parent links and complete child rosters. It is built once per run and
// shared across all window builds, so no per-user lookups happen inside the
// aggregation loops.
type Index struct {
	entities map[geo.Level]map[uint64]geo.Entity
	children map[geo.Level]map[uint64][]uint64
	users    map[uint64]geo.User
}

// BuildIndex loads the full hierarchy snapshot from the store.
func BuildIndex(ctx context.Context, store geodb.Store) (*Index, error) {
	idx := &Index{
		entities: make(map[geo.Level]map[uint64]geo.Entity, 5),
		children: make(map[geo.Level]map[uint64][]uint64, 4),
	}

	for _, level := range geo.Levels() {
		rows, err := store.ListLevel(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("load %s snapshot: %w", level, err)
		}
		byID := make(map[uint64]geo.Entity, len(rows))
		for _, e := range rows {
			byID[e.ID] = e
		}
		idx.entities[level] = byID

		if parent, ok := level.Parent(); ok {
			kids := idx.children[parent]
			if kids == nil {
				kids = make(map[uint64][]uint64)
				idx.children[parent] = kids
			}
			for _, e := range rows {
				kids[e.ParentID] = append(kids[e.ParentID], e.ID)
			}
		}
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users snapshot: %w", err)
	}
	idx.users = make(map[uint64]geo.User, len(users))
	for _, u := range users {
		idx.users[u.ID] = u
	}

	// Deterministic child ordering: sort rosters by child name, ties by id.
	for parentLevel, kids := range idx.children {
		childLevel, _ := parentLevel.Child()
		names := idx.entities[childLevel]
		for _, ids := range kids {
			sort.Slice(ids, func(i, j int) bool {
				a, b := names[ids[i]], names[ids[j]]
				if a.Name != b.Name {
					return a.Name < b.Name
				}
				return ids[i] < ids[j]
			})
		}
	}

	return idx, nil
}

// Entity returns the entity with the given id at the given level.
func (i *Index) Entity(level geo.Level, id uint64) (geo.Entity, bool) {
	e, ok := i.entities[level][id]
	return e, ok
}

// EntityIDs returns every entity id at a level, ascending.
func (i *Index) EntityIDs(level geo.Level) []uint64 {
	out := make([]uint64, 0, len(i.entities[level]))
	for id := range i.entities[level] {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Children returns the complete, authoritative child roster of the entity at
// the given level, ordered by child name. The roster includes children with no
// activity.
func (i *Index) Children(level geo.Level, parentID uint64) []uint64 {
	return i.children[level][parentID]
}

// User returns the user snapshot for an id.
func (i *Index) User(id uint64) (geo.User, bool) {
	u, ok := i.users[id]
	return u, ok
}

// ResolveChains batch-resolves the full geo chain of every given user id in
// one pass over the in-memory snapshot. Users missing from the snapshot, or
// anchored to a village missing from it, are skipped.
func (i *Index) ResolveChains(userIDs []uint64) map[uint64]Chain {
	out := make(map[uint64]Chain, len(userIDs))
	for _, uid := range userIDs {
		u, ok := i.users[uid]
		if !ok {
			continue
		}
		village, ok := i.entities[geo.LevelVillage][u.VillageID]
		if !ok {
			continue
		}
		subdistrict := i.entities[geo.LevelSubdistrict][village.ParentID]
		district := i.entities[geo.LevelDistrict][subdistrict.ParentID]
		state := i.entities[geo.LevelState][district.ParentID]
		out[uid] = Chain{
			Village:     village.ID,
			Subdistrict: village.ParentID,
			District:    subdistrict.ParentID,
			State:       district.ParentID,
			Country:     state.ParentID,
		}
	}
	return out
}
