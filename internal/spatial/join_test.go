package spatial

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/tile"
)

func squareCounty(t *testing.T, fips string, x, y, size float64) county.County {
	t.Helper()
	mp := orb.MultiPolygon{{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}}
	g, err := county.ToGeom(mp)
	require.NoError(t, err)
	return county.County{FIPS: fips, StateFIPS: fips[:2], Boundary: g}
}

func TestLocate(t *testing.T) {
	// 13121 and 01001 share the edge x=1.
	idx := NewIndex([]county.County{
		squareCounty(t, "13121", 1, 0, 1),
		squareCounty(t, "01001", 0, 0, 1),
	})
	require.Equal(t, 2, idx.Len())

	fips, ok := idx.Locate(0.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, "01001", fips)

	fips, ok = idx.Locate(1.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, "13121", fips)

	fips, ok = idx.Locate(1, 0.5)
	require.True(t, ok)
	assert.Equal(t, "01001", fips, "shared edge goes to the lower FIPS")

	_, ok = idx.Locate(5, 5)
	assert.False(t, ok)
}

func TestLocate_Hole(t *testing.T) {
	mp := orb.MultiPolygon{{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}},
	}}
	g, err := county.ToGeom(mp)
	require.NoError(t, err)
	idx := NewIndex([]county.County{
		{FIPS: "51001", Boundary: g},
		squareCounty(t, "51002", 1.5, 1.5, 1),
	})

	fips, ok := idx.Locate(2, 2)
	require.True(t, ok)
	assert.Equal(t, "51002", fips, "point in the hole belongs to the enclave")

	fips, ok = idx.Locate(0.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, "51001", fips)
}

func TestLocate_HoleEdgeGoesToLowerFIPS(t *testing.T) {
	mp := orb.MultiPolygon{{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}},
	}}
	g, err := county.ToGeom(mp)
	require.NoError(t, err)
	// 51002 fills the hole of 51001 exactly.
	idx := NewIndex([]county.County{
		squareCounty(t, "51002", 1, 1, 2),
		{FIPS: "51001", Boundary: g},
	})

	for _, pt := range []orb.Point{{1, 2}, {3, 2}, {2, 1}, {2, 3}, {1, 1}, {3, 3}} {
		fips, ok := idx.Locate(pt[0], pt[1])
		require.True(t, ok, "point %v", pt)
		assert.Equal(t, "51001", fips, "hole edge point %v goes to the lower FIPS", pt)
	}

	fips, ok := idx.Locate(2, 2)
	require.True(t, ok)
	assert.Equal(t, "51002", fips)
}

func TestNewIndex_SkipsEmptyBoundaries(t *testing.T) {
	idx := NewIndex([]county.County{{FIPS: "99999"}, squareCounty(t, "13121", 0, 0, 1)})
	assert.Equal(t, 1, idx.Len())
}

func TestJoin(t *testing.T) {
	idx := NewIndex([]county.County{
		squareCounty(t, "13121", 0, 0, 1),
		squareCounty(t, "01001", 2, 0, 1),
		squareCounty(t, "99999", 10, 10, 1),
	})
	tiles := []tile.Record{
		{TileID: "a", Longitude: 0.5, Latitude: 0.5},
		{TileID: "b", Longitude: 2.5, Latitude: 0.5},
		{TileID: "c", Longitude: 0.2, Latitude: 0.8},
		{TileID: "d", Longitude: 50, Latitude: 50},
	}

	res, err := Join(context.Background(), tiles, idx)
	require.NoError(t, err)

	assert.Equal(t, []string{"01001", "13121"}, res.Order)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 3, res.Assigned())
	require.Len(t, res.ByCounty["13121"], 2)
	assert.Equal(t, "a", res.ByCounty["13121"][0].TileID)
	assert.Equal(t, "c", res.ByCounty["13121"][1].TileID)
	assert.NotContains(t, res.ByCounty, "99999")
}

func TestJoin_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Join(ctx, []tile.Record{{}}, NewIndex(nil))
	require.Error(t, err)
}
