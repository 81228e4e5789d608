package county

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type boundaryFeature struct {
	ID         json.RawMessage   `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type boundaryCollection struct {
	Type     string            `json:"type"`
	Features []boundaryFeature `json:"features"`
}

// ReadGeoJSON reads county boundaries from a FeatureCollection whose
// features carry GEOID (or fips_code), NAME and STATEFP properties.
func ReadGeoJSON(r io.Reader, source string) (*LoadResult, error) {
	var fc boundaryCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrapf(err, "county: decode geojson %s", source)
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("county: %s is not a FeatureCollection (type %q)", source, fc.Type)
	}

	c := newCollector(source)
	for _, f := range fc.Features {
		props := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			props[strings.ToLower(k)] = strings.TrimSpace(fmt.Sprint(v))
		}
		first := func(keys ...string) string {
			for _, k := range keys {
				if v := props[k]; v != "" {
					return v
				}
			}
			return ""
		}

		fips := first("geoid", "fips_code", "fips")
		if fips == "" {
			var id string
			if err := json.Unmarshal(f.ID, &id); err == nil {
				fips = id
			}
		}
		stateFIPS := first("statefp", "state_fips")
		if stateFIPS == "" && len(fips) == 5 {
			stateFIPS = fips[:2]
		}
		name := first("name", "namelsad")

		mp, geomErr := geometryBoundary(f.Geometry)
		if err := c.add(fips, stateFIPS, name, mp, geomErr); err != nil {
			return nil, err
		}
	}
	return c.result(), nil
}

func geometryBoundary(g *geojson.Geometry) (orb.MultiPolygon, error) {
	if g == nil {
		return nil, invalid(ExcludeNoGeometry)
	}
	t, err := g.Decode()
	if err != nil || t == nil {
		return nil, invalid(ExcludeNoGeometry)
	}
	return FromGeom(t)
}
