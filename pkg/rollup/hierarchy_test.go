package rollup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	"github.com/gramscope/gramscope/pkg/rollup"
)

func TestBuildIndexLoadsAllLevels(t *testing.T) {
	idx, err := rollup.BuildIndex(context.Background(), fixtureGeo())
	require.NoError(t, err)

	require.Equal(t, []uint64{100, 101, 102}, idx.EntityIDs(geomodels.LevelVillage))
	require.Equal(t, []uint64{500}, idx.EntityIDs(geomodels.LevelCountry))

	entity, ok := idx.Entity(geomodels.LevelDistrict, 300)
	require.True(t, ok)
	require.Equal(t, "Mysore", entity.Name)
	require.Equal(t, uint64(400), entity.ParentID)

	_, ok = idx.Entity(geomodels.LevelDistrict, 999)
	require.False(t, ok)
}

func TestIndexChildrenOrderedByName(t *testing.T) {
	idx, err := rollup.BuildIndex(context.Background(), fixtureGeo())
	require.NoError(t, err)

	// Bilikere < Hosur, so the roster of Hunsur lists 100 before 101.
	require.Equal(t, []uint64{100, 101}, idx.Children(geomodels.LevelSubdistrict, 200))
	// Hunsur < Piriyapatna under Mysore.
	require.Equal(t, []uint64{200, 201}, idx.Children(geomodels.LevelDistrict, 300))
	// Karnataka < Kerala under Bharat.
	require.Equal(t, []uint64{400, 401}, idx.Children(geomodels.LevelCountry, 500))
}

func TestResolveChainsWalksToCountry(t *testing.T) {
	idx, err := rollup.BuildIndex(context.Background(), fixtureGeo())
	require.NoError(t, err)

	chains := idx.ResolveChains([]uint64{1, 4})
	require.Len(t, chains, 2)

	require.Equal(t, rollup.Chain{
		Village:     100,
		Subdistrict: 200,
		District:    300,
		State:       400,
		Country:     500,
	}, chains[1])

	require.Equal(t, uint64(201), chains[4].Subdistrict)
	require.Equal(t, uint64(300), chains[4].District)
	require.Equal(t, uint64(500), chains[4].Country)
}

func TestResolveChainsSkipsUnknownUsers(t *testing.T) {
	geo := fixtureGeo()
	geo.users = append(geo.users, geomodels.User{ID: 99, Name: "Orphan", VillageID: 9999})

	idx, err := rollup.BuildIndex(context.Background(), geo)
	require.NoError(t, err)

	chains := idx.ResolveChains([]uint64{1, 42, 99})
	require.Len(t, chains, 1)
	require.Contains(t, chains, uint64(1))
}
