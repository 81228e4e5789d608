// Package county loads the county boundary reference dataset from TIGER/Line
// shapefiles or GeoJSON and prepares it for spatial joins.
package county

import (
	"errors"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// County is one reference polygon. Counties are static for a run and shared
// read-only between regional batches.
type County struct {
	FIPS      string
	StateFIPS string
	Name      string
	Boundary  *geom.MultiPolygon

	planar orb.MultiPolygon
	bound  orb.Bound
}

func newCounty(fips, stateFIPS, name string, mp orb.MultiPolygon) (County, error) {
	g, err := ToGeom(mp)
	if err != nil {
		return County{}, eris.Wrapf(err, "county: build geometry for %s", fips)
	}
	return County{
		FIPS:      fips,
		StateFIPS: stateFIPS,
		Name:      name,
		Boundary:  g,
		planar:    mp,
		bound:     mp.Bound(),
	}, nil
}

// Planar returns the boundary as an orb multipolygon.
func (c *County) Planar() orb.MultiPolygon {
	if c.planar == nil && c.Boundary != nil {
		c.planar = ToOrb(c.Boundary)
		c.bound = c.planar.Bound()
	}
	return c.planar
}

// Bound returns the boundary's bounding box.
func (c *County) Bound() orb.Bound {
	c.Planar()
	return c.bound
}

// EncodeEWKB encodes a boundary as little-endian EWKB with SRID 4326 for
// PostGIS. An empty boundary encodes as nil.
func EncodeEWKB(mp orb.MultiPolygon) ([]byte, error) {
	if len(mp) == 0 {
		return nil, nil
	}
	g, err := ToGeom(mp)
	if err != nil {
		return nil, eris.Wrap(err, "county: build geometry")
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "county: encode EWKB")
	}
	return data, nil
}

// LoadResult is the outcome of reading a boundary dataset.
type LoadResult struct {
	Source string
	// Counties are sorted by FIPS.
	Counties []County
	// Excluded counts counties dropped for malformed geometry, by reason.
	Excluded map[ExcludeReason]int
	// ExcludedFIPS lists the dropped counties that had a usable FIPS code.
	ExcludedFIPS []string
	// Duplicates lists FIPS codes seen more than once; the first wins.
	Duplicates []string
}

func newLoadResult(source string) *LoadResult {
	return &LoadResult{Source: source, Excluded: make(map[ExcludeReason]int)}
}

// ExcludedTotal returns the number of dropped counties across all reasons.
func (r *LoadResult) ExcludedTotal() int {
	n := 0
	for _, c := range r.Excluded {
		n += c
	}
	return n
}

// collector accumulates counties while enforcing first-wins on FIPS.
type collector struct {
	res  *LoadResult
	seen map[string]bool
}

func newCollector(source string) *collector {
	return &collector{res: newLoadResult(source), seen: make(map[string]bool)}
}

func (c *collector) exclude(fips string, reason ExcludeReason) {
	c.res.Excluded[reason]++
	if fips != "" {
		c.res.ExcludedFIPS = append(c.res.ExcludedFIPS, fips)
	}
}

func (c *collector) add(fips, stateFIPS, name string, mp orb.MultiPolygon, geomErr error) error {
	if fips == "" {
		c.exclude("", ExcludeMissingFIPS)
		return nil
	}
	if c.seen[fips] {
		c.res.Duplicates = append(c.res.Duplicates, fips)
		return nil
	}
	c.seen[fips] = true

	if geomErr != nil {
		var ge *geometryError
		if errors.As(geomErr, &ge) {
			c.exclude(fips, ge.reason)
			return nil
		}
		return geomErr
	}

	cty, err := newCounty(fips, stateFIPS, name, mp)
	if err != nil {
		return err
	}
	c.res.Counties = append(c.res.Counties, cty)
	return nil
}

func (c *collector) result() *LoadResult {
	sort.Slice(c.res.Counties, func(i, j int) bool { return c.res.Counties[i].FIPS < c.res.Counties[j].FIPS })
	sort.Strings(c.res.ExcludedFIPS)
	return c.res
}

// Filter returns the counties whose state FIPS is in states, keeping FIPS
// order. An empty states list returns all counties.
func Filter(counties []County, states []string) []County {
	if len(states) == 0 {
		return counties
	}
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	out := make([]County, 0, len(counties))
	for _, c := range counties {
		if want[c.StateFIPS] {
			out = append(out, c)
		}
	}
	return out
}

// FIPSSet returns the set of FIPS codes in counties.
func FIPSSet(counties []County) map[string]bool {
	set := make(map[string]bool, len(counties))
	for _, c := range counties {
		set[c.FIPS] = true
	}
	return set
}
