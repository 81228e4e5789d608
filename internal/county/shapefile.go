package county

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// ReadShapefile reads a TIGER/Line county shapefile. Counties whose geometry
// is missing or malformed are excluded and counted, never fatal.
func ReadShapefile(ctx context.Context, shpPath string) (*LoadResult, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "county: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	_, hasGEOID := fieldIdx["geoid"]
	_, hasCountyFP := fieldIdx["countyfp"]
	if !hasGEOID && !hasCountyFP {
		return nil, eris.Errorf("county: %s has neither GEOID nor COUNTYFP attribute", shpPath)
	}

	decode := decoderFor(shpPath)
	attr := func(names ...string) string {
		for _, n := range names {
			if idx, ok := fieldIdx[n]; ok {
				if v := decode(reader.Attribute(idx)); v != "" {
					return v
				}
			}
		}
		return ""
	}

	c := newCollector(shpPath)
	for n := 0; reader.Next(); n++ {
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "county: read shapefile")
		}
		_, shape := reader.Shape()

		stateFIPS := attr("statefp")
		fips := attr("geoid")
		if fips == "" && stateFIPS != "" {
			if cfp := attr("countyfp"); cfp != "" {
				fips = stateFIPS + cfp
			}
		}
		if stateFIPS == "" && len(fips) == 5 {
			stateFIPS = fips[:2]
		}
		name := attr("name", "namelsad")

		mp, geomErr := shapeBoundary(shape)
		if err := c.add(fips, stateFIPS, name, mp, geomErr); err != nil {
			return nil, err
		}
	}
	return c.result(), nil
}

func shapeBoundary(shape shp.Shape) (orb.MultiPolygon, error) {
	poly, ok := shape.(*shp.Polygon)
	if !ok || poly == nil {
		return nil, invalid(ExcludeNoGeometry)
	}
	return assemblePolygons(shapeRings(poly))
}
