package county

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geom"
)

// SRID of every boundary the loader produces.
const SRID = 4326

// ExcludeReason classifies why a county was left out of the reference set.
type ExcludeReason string

const (
	ExcludeNoGeometry  ExcludeReason = "no_geometry"
	ExcludeNonFinite   ExcludeReason = "non_finite"
	ExcludeShortRing   ExcludeReason = "short_ring"
	ExcludeDegenerate  ExcludeReason = "degenerate"
	ExcludeMissingFIPS ExcludeReason = "missing_fips"
)

type geometryError struct {
	reason ExcludeReason
}

func (e *geometryError) Error() string { return "county: invalid boundary (" + string(e.reason) + ")" }

func invalid(reason ExcludeReason) error { return &geometryError{reason: reason} }

// shapeRings splits a go-shp polygon into rings of points.
func shapeRings(p *shp.Polygon) []orb.Ring {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	rings := make([]orb.Ring, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// checkRing closes an open ring and rejects rings that cannot bound an area.
func checkRing(r orb.Ring) (orb.Ring, error) {
	for _, p := range r {
		if !finite(p[0]) || !finite(p[1]) {
			return nil, invalid(ExcludeNonFinite)
		}
	}
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	if len(r) < 4 {
		return nil, invalid(ExcludeShortRing)
	}
	return r, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// assemblePolygons groups shapefile rings into polygons. Clockwise rings are
// shells; counter-clockwise rings are holes of the shell that contains them.
// A hole with no enclosing shell is promoted to a shell. Output rings follow
// RFC 7946 winding: shells counter-clockwise, holes clockwise.
func assemblePolygons(rings []orb.Ring) (orb.MultiPolygon, error) {
	if len(rings) == 0 {
		return nil, invalid(ExcludeNoGeometry)
	}

	var shells, holes []orb.Ring
	for _, raw := range rings {
		r, err := checkRing(raw)
		if err != nil {
			return nil, err
		}
		switch r.Orientation() {
		case orb.CW:
			shells = append(shells, r)
		case orb.CCW:
			holes = append(holes, r)
		}
	}
	if len(shells) == 0 {
		// Writers that ignore the winding rule emit every ring CCW.
		shells, holes = holes, nil
	}
	if len(shells) == 0 {
		return nil, invalid(ExcludeDegenerate)
	}

	polys := make([]orb.Polygon, len(shells))
	for i, s := range shells {
		polys[i] = orb.Polygon{s}
	}
	for _, h := range holes {
		owner := -1
		for i, s := range shells {
			if s.Bound().Contains(h[0]) && planar.RingContains(s, h[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			polys = append(polys, orb.Polygon{h})
			continue
		}
		polys[owner] = append(polys[owner], h)
	}

	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, p := range polys {
		mp = append(mp, orientRFC7946(p))
	}
	if planar.Area(mp) == 0 {
		return nil, invalid(ExcludeDegenerate)
	}
	return mp, nil
}

// orientRFC7946 rewinds a polygon so its shell is counter-clockwise and its
// holes clockwise.
func orientRFC7946(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		want := orb.CW
		if i == 0 {
			want = orb.CCW
		}
		r = append(orb.Ring(nil), r...)
		if r.Orientation() != want {
			r.Reverse()
		}
		out[i] = r
	}
	return out
}

// ToGeom converts a planar multipolygon to the go-geom model used for
// encoding, tagged with SRID 4326.
func ToGeom(mp orb.MultiPolygon) (*geom.MultiPolygon, error) {
	coords := make([][][]geom.Coord, len(mp))
	for i, poly := range mp {
		coords[i] = make([][]geom.Coord, len(poly))
		for j, ring := range poly {
			rc := make([]geom.Coord, len(ring))
			for k, p := range ring {
				rc[k] = geom.Coord{p[0], p[1]}
			}
			coords[i][j] = rc
		}
	}
	g, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	return g.SetSRID(SRID), nil
}

// ToOrb converts a go-geom multipolygon into orb for planar predicates.
func ToOrb(g *geom.MultiPolygon) orb.MultiPolygon {
	if g == nil {
		return nil
	}
	coords := g.Coords()
	mp := make(orb.MultiPolygon, len(coords))
	for i, poly := range coords {
		mp[i] = make(orb.Polygon, len(poly))
		for j, ring := range poly {
			r := make(orb.Ring, len(ring))
			for k, c := range ring {
				r[k] = orb.Point{c[0], c[1]}
			}
			mp[i][j] = r
		}
	}
	return mp
}

// FromGeom validates an arbitrary go-geom polygonal geometry (Polygon or
// MultiPolygon, as found in GeoJSON boundary files) and normalises it.
func FromGeom(g geom.T) (orb.MultiPolygon, error) {
	var polys [][][]geom.Coord
	switch t := g.(type) {
	case *geom.Polygon:
		polys = [][][]geom.Coord{t.Coords()}
	case *geom.MultiPolygon:
		polys = t.Coords()
	default:
		return nil, invalid(ExcludeNoGeometry)
	}

	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, poly := range polys {
		if len(poly) == 0 {
			continue
		}
		op := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			r := make(orb.Ring, len(ring))
			for k, c := range ring {
				r[k] = orb.Point{c[0], c[1]}
			}
			checked, err := checkRing(r)
			if err != nil {
				return nil, err
			}
			op = append(op, checked)
		}
		mp = append(mp, orientRFC7946(op))
	}
	if len(mp) == 0 {
		return nil, invalid(ExcludeNoGeometry)
	}
	if planar.Area(mp) == 0 {
		return nil, invalid(ExcludeDegenerate)
	}
	return mp, nil
}
