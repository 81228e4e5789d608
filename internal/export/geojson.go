// Package export writes county scores as a GeoJSON FeatureCollection and an
// optional PNG choropleth.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/scoring"
)

// Options controls the exported collection.
type Options struct {
	// Simplify is the Douglas-Peucker tolerance in degrees. Zero disables it.
	Simplify    float64
	LegendField string
	Ramp        Ramp
}

// DefaultOptions colors by obsolescence with the default ramp.
func DefaultOptions() Options {
	return Options{LegendField: FieldObsolescence, Ramp: DefaultRamp()}
}

// Feature pairs a score with the boundary it is drawn with.
type Feature struct {
	Score    scoring.CountyScore
	Boundary orb.MultiPolygon
}

// Features joins scores with their county boundaries, simplified per opts.
// Every score must have a boundary in counties.
func Features(scores []scoring.CountyScore, counties []county.County, opts Options) ([]Feature, error) {
	byFIPS := make(map[string]*county.County, len(counties))
	for i := range counties {
		byFIPS[counties[i].FIPS] = &counties[i]
	}

	out := make([]Feature, 0, len(scores))
	for _, s := range scores {
		c, ok := byFIPS[s.FIPS]
		if !ok || c.Boundary == nil {
			return nil, eris.Errorf("export: no boundary for county %s", s.FIPS)
		}
		mp := c.Planar()
		if opts.Simplify > 0 {
			mp = simplifyBoundary(mp, opts.Simplify)
		}
		out = append(out, Feature{Score: s, Boundary: mp})
	}
	return out, nil
}

// simplifyBoundary applies Douglas-Peucker to a copy of mp. Polygons whose
// shell collapses are dropped; if nothing survives the original is kept.
func simplifyBoundary(mp orb.MultiPolygon, tolerance float64) orb.MultiPolygon {
	simplified := simplify.DouglasPeucker(tolerance).MultiPolygon(mp.Clone())
	out := make(orb.MultiPolygon, 0, len(simplified))
	for _, poly := range simplified {
		if len(poly) == 0 || len(poly[0]) < 4 {
			continue
		}
		kept := orb.Polygon{poly[0]}
		for _, hole := range poly[1:] {
			if len(hole) >= 4 {
				kept = append(kept, hole)
			}
		}
		out = append(out, kept)
	}
	if len(out) == 0 {
		return mp
	}
	return out
}

// Collection builds the GeoJSON FeatureCollection in input order with id set
// to the FIPS code and fill_color taken from the legend field.
func Collection(features []Feature, opts Options) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		v, err := FieldValue(f.Score, opts.LegendField)
		if err != nil {
			return nil, err
		}
		g, err := county.ToGeom(f.Boundary)
		if err != nil {
			return nil, eris.Wrapf(err, "export: geometry for %s", f.Score.FIPS)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.Score.FIPS,
			Geometry:   g,
			Properties: properties(f.Score, Hex(opts.Ramp.At(v))),
		})
	}
	return fc, nil
}

func properties(s scoring.CountyScore, fill string) map[string]any {
	return map[string]any{
		"fips_code":              s.FIPS,
		"name":                   s.Name,
		"state_fips":             s.StateFIPS,
		"obsolescence_score":     s.ObsolescenceScore,
		"growth_potential_score": s.GrowthPotentialScore,
		"bivariate_score":        s.BivariateScore,
		"confidence":             s.Confidence,
		"tile_count":             s.TileCount,
		"fill_color":             fill,
	}
}

// WriteGeoJSON encodes the collection and atomically replaces path.
func WriteGeoJSON(path string, features []Feature, opts Options) error {
	log := zap.L().With(zap.String("component", "export"))

	fc, err := Collection(features, opts)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(path, data); err != nil {
		return err
	}
	log.Info("wrote county scores",
		zap.String("path", path),
		zap.Int("features", len(fc.Features)),
		zap.String("legend_field", opts.LegendField),
	)
	return nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "export: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "export: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "export: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "export: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	return nil
}

// SiblingPath derives "<dir>/<name><suffix>" from an output path, e.g.
// county_scores.geojson -> county_scores_viz.png.
func SiblingPath(output, suffix string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + suffix
}
