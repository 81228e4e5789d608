package tile

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type rawFeature struct {
	ID         json.RawMessage   `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// ReadGeoJSON parses a FeatureCollection of tiles. Point features use their
// coordinates; polygon footprints use the centre of their bounding box.
// Index values are read from properties, matched case-insensitively.
func ReadGeoJSON(r io.Reader, source string) (*LoadResult, error) {
	var fc rawCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "tile: decode geojson")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("tile: %s is not a FeatureCollection (type %q)", source, fc.Type)
	}

	res := newLoadResult(source)
	if len(fc.Features) > 0 {
		if err := checkPropertyColumns(fc.Features[0].Properties); err != nil {
			return nil, err
		}
	}

	for i, f := range fc.Features {
		rec, reason, ok := featureToRecord(f, i+1)
		if !ok {
			res.skip(reason)
			continue
		}
		res.Tiles = append(res.Tiles, rec)
	}
	return res, nil
}

// checkPropertyColumns fails fast when the first feature lacks an index
// property. Coordinates come from geometry so they are not required here.
func checkPropertyColumns(props map[string]any) error {
	lower := lowerKeys(props)
	var missing []string
	for _, field := range requiredColumns {
		if field == "longitude" || field == "latitude" {
			continue
		}
		if _, ok := lookupProp(lower, field); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("tile: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func featureToRecord(f rawFeature, rowNum int) (Record, SkipReason, bool) {
	if f.Geometry == nil {
		return Record{}, SkipNoGeometry, false
	}
	g, err := f.Geometry.Decode()
	if err != nil || g == nil || len(g.FlatCoords()) == 0 {
		return Record{}, SkipNoGeometry, false
	}

	var rec Record
	if pt, ok := g.(*geom.Point); ok {
		rec.Longitude, rec.Latitude = pt.X(), pt.Y()
	} else {
		b := g.Bounds()
		rec.Longitude = (b.Min(0) + b.Max(0)) / 2
		rec.Latitude = (b.Min(1) + b.Max(1)) / 2
	}
	if !validCoordinate(rec.Longitude, rec.Latitude) {
		return Record{}, SkipBadCoordinate, false
	}

	props := lowerKeys(f.Properties)
	targets := []struct {
		field string
		dst   *float64
	}{
		{"ndvi", &rec.NDVI},
		{"ndbi", &rec.NDBI},
		{"ndwi", &rec.NDWI},
		{"mndwi", &rec.MNDWI},
		{"ui", &rec.UI},
	}
	for _, t := range targets {
		raw, ok := lookupProp(props, t.field)
		if !ok {
			return Record{}, SkipShortRow, false
		}
		v, reason, ok := propFloat(raw)
		if !ok {
			return Record{}, reason, false
		}
		*t.dst = v
	}
	if raw, ok := lookupProp(props, "ndmi"); ok && raw != nil {
		v, reason, ok := propFloat(raw)
		if !ok {
			return Record{}, reason, false
		}
		rec.NDMI = v
	}
	if raw, ok := lookupProp(props, "capture_date"); ok && raw != nil {
		d, ok := parseDate(fmt.Sprint(raw))
		if !ok {
			return Record{}, SkipBadDate, false
		}
		rec.CaptureDate = d
	}

	rec.TileID = featureID(f.ID)
	if rec.TileID == "" {
		if raw, ok := lookupProp(props, "tile_id"); ok && raw != nil {
			rec.TileID = fmt.Sprint(raw)
		}
	}
	if rec.TileID == "" {
		rec.TileID = fmt.Sprintf("row-%d", rowNum)
	}
	return rec, "", true
}

func featureID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func lowerKeys(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookupProp(props map[string]any, field string) (any, bool) {
	for _, alias := range columnAliases[field] {
		if v, ok := props[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func propFloat(v any) (float64, SkipReason, bool) {
	switch x := v.(type) {
	case float64:
		return parseFloat(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		return parseFloat(x)
	default:
		return 0, SkipBadNumber, false
	}
}
