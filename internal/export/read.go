package export

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/loghub/countyscore/internal/scoring"
)

type scoreFeature struct {
	ID         json.RawMessage   `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type scoreCollection struct {
	Type     string         `json:"type"`
	Features []scoreFeature `json:"features"`
}

// ReadGeoJSONFile reads a previously exported score collection.
func ReadGeoJSONFile(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadGeoJSON(f, path)
}

// ReadGeoJSON decodes a score collection without normalising it, so that
// malformed values and geometry can be reported. Missing score fields read
// as NaN, a missing tile_count as -1 and a missing or non-polygonal
// geometry as a nil boundary.
func ReadGeoJSON(r io.Reader, source string) ([]Feature, error) {
	var fc scoreCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrapf(err, "export: decode %s", source)
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("export: %s is not a FeatureCollection (type %q)", source, fc.Type)
	}

	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		s := scoring.CountyScore{
			FIPS:                 propString(f.Properties, "fips_code"),
			Name:                 propString(f.Properties, "name"),
			StateFIPS:            propString(f.Properties, "state_fips"),
			ObsolescenceScore:    propNumber(f.Properties, FieldObsolescence),
			GrowthPotentialScore: propNumber(f.Properties, FieldGrowth),
			BivariateScore:       propNumber(f.Properties, FieldBivariate),
			Confidence:           propNumber(f.Properties, FieldConfidence),
			TileCount:            -1,
		}
		if n := propNumber(f.Properties, "tile_count"); !math.IsNaN(n) {
			s.TileCount = int(n)
		}
		if s.FIPS == "" {
			var id string
			if err := json.Unmarshal(f.ID, &id); err == nil {
				s.FIPS = id
			}
		}
		out = append(out, Feature{Score: s, Boundary: rawBoundary(f.Geometry)})
	}
	return out, nil
}

func propString(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func propNumber(props map[string]any, key string) float64 {
	if v, ok := props[key].(float64); ok {
		return v
	}
	return math.NaN()
}

func rawBoundary(g *geojson.Geometry) orb.MultiPolygon {
	if g == nil {
		return nil
	}
	t, err := g.Decode()
	if err != nil {
		return nil
	}
	var polys [][][]geom.Coord
	switch v := t.(type) {
	case *geom.Polygon:
		polys = [][][]geom.Coord{v.Coords()}
	case *geom.MultiPolygon:
		polys = v.Coords()
	default:
		return nil
	}

	mp := make(orb.MultiPolygon, len(polys))
	for i, poly := range polys {
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
