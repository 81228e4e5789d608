// Package spatial assigns tiles to the county polygon that contains them.
package spatial

import (
	"context"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/tile"
)

type indexed struct {
	fips  string
	bound orb.Bound
	mp    orb.MultiPolygon
}

// Index is an immutable, FIPS-ordered view of the county polygons. It is
// safe for concurrent use.
type Index struct {
	counties []indexed
}

// NewIndex prepares counties for point lookups. Counties without a boundary
// are ignored.
func NewIndex(counties []county.County) *Index {
	idx := &Index{counties: make([]indexed, 0, len(counties))}
	for i := range counties {
		c := &counties[i]
		mp := c.Planar()
		if len(mp) == 0 {
			continue
		}
		idx.counties = append(idx.counties, indexed{fips: c.FIPS, bound: c.Bound(), mp: mp})
	}
	sort.SliceStable(idx.counties, func(i, j int) bool { return idx.counties[i].fips < idx.counties[j].fips })
	return idx
}

// Len returns the number of indexed counties.
func (x *Index) Len() int { return len(x.counties) }

// Locate returns the FIPS of the first county, in ascending FIPS order,
// whose boundary contains the point. A point on a shared edge, including
// the edge between a hole and its enclave, therefore goes to the lower FIPS
// code.
func (x *Index) Locate(lon, lat float64) (string, bool) {
	pt := orb.Point{lon, lat}
	for i := range x.counties {
		c := &x.counties[i]
		if !c.bound.Contains(pt) {
			continue
		}
		if containsOrTouches(c.mp, pt) {
			return c.fips, true
		}
	}
	return "", false
}

// containsOrTouches is planar containment that also accepts points lying
// on any ring edge or vertex, holes included, so boundary tiles are
// assigned rather than lost.
func containsOrTouches(mp orb.MultiPolygon, pt orb.Point) bool {
	if planar.MultiPolygonContains(mp, pt) {
		return true
	}
	for _, poly := range mp {
		for _, ring := range poly {
			if onRing(ring, pt) {
				return true
			}
		}
	}
	return false
}

func onRing(r orb.Ring, pt orb.Point) bool {
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		cross := (b[0]-a[0])*(pt[1]-a[1]) - (b[1]-a[1])*(pt[0]-a[0])
		if cross != 0 {
			continue
		}
		if pt[0] >= min(a[0], b[0]) && pt[0] <= max(a[0], b[0]) &&
			pt[1] >= min(a[1], b[1]) && pt[1] <= max(a[1], b[1]) {
			return true
		}
	}
	return false
}

// Result is the tile-to-county assignment.
type Result struct {
	// ByCounty maps FIPS to its tiles in input order.
	ByCounty map[string][]*tile.Record
	// Order lists the FIPS codes that received tiles, ascending.
	Order []string
	// Dropped counts tiles outside every county.
	Dropped int
}

// Assigned returns the number of tiles placed in some county.
func (r *Result) Assigned() int {
	n := 0
	for _, ts := range r.ByCounty {
		n += len(ts)
	}
	return n
}

// Join assigns each tile to its enclosing county. Tiles that fall outside
// every polygon are dropped and counted.
func Join(ctx context.Context, tiles []tile.Record, idx *Index) (*Result, error) {
	log := zap.L().With(zap.String("component", "spatial.join"))

	res := &Result{ByCounty: make(map[string][]*tile.Record)}
	for i := range tiles {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "spatial: join cancelled")
		}
		t := &tiles[i]
		fips, ok := idx.Locate(t.Longitude, t.Latitude)
		if !ok {
			res.Dropped++
			continue
		}
		if _, seen := res.ByCounty[fips]; !seen {
			res.Order = append(res.Order, fips)
		}
		res.ByCounty[fips] = append(res.ByCounty[fips], t)
	}
	sort.Strings(res.Order)

	if res.Dropped > 0 {
		log.Warn("tiles outside every county dropped", zap.Int("dropped", res.Dropped))
	}
	log.Info("spatial join complete",
		zap.Int("tiles", len(tiles)),
		zap.Int("assigned", res.Assigned()),
		zap.Int("counties_with_tiles", len(res.Order)),
	)
	return res, nil
}
