package tile

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// columnAliases maps a canonical field to the header spellings we accept.
// Earth Engine exports use upper-case index names; pandas exports use lower.
var columnAliases = map[string][]string{
	"tile_id":      {"tile_id", "tileid", "id", "system:index"},
	"longitude":    {"longitude", "lon", "lng", "x"},
	"latitude":     {"latitude", "lat", "y"},
	"ndvi":         {"ndvi"},
	"ndbi":         {"ndbi"},
	"ndwi":         {"ndwi"},
	"mndwi":        {"mndwi"},
	"ui":           {"ui", "urban_index"},
	"ndmi":         {"ndmi"},
	"capture_date": {"capture_date", "date", "acquisition_date", "collection_date"},
}

var requiredColumns = []string{"longitude", "latitude", "ndvi", "ndbi", "ndwi", "mndwi", "ui"}

// columns holds the resolved header index of each canonical field, -1 if absent.
type columns struct {
	tileID      int
	lon         int
	lat         int
	ndvi        int
	ndbi        int
	ndwi        int
	mndwi       int
	ui          int
	ndmi        int
	captureDate int
	max         int
}

// resolveColumns maps a header row onto canonical fields. A missing required
// column is an error: the whole input is unusable without it.
func resolveColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}

	find := func(field string) int {
		for _, alias := range columnAliases[field] {
			if i, ok := idx[alias]; ok {
				return i
			}
		}
		return -1
	}

	var missing []string
	for _, field := range requiredColumns {
		if find(field) < 0 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return columns{}, eris.Errorf("tile: missing required columns: %s", strings.Join(missing, ", "))
	}

	c := columns{
		tileID:      find("tile_id"),
		lon:         find("longitude"),
		lat:         find("latitude"),
		ndvi:        find("ndvi"),
		ndbi:        find("ndbi"),
		ndwi:        find("ndwi"),
		mndwi:       find("mndwi"),
		ui:          find("ui"),
		ndmi:        find("ndmi"),
		captureDate: find("capture_date"),
	}
	for _, i := range []int{c.lon, c.lat, c.ndvi, c.ndbi, c.ndwi, c.mndwi, c.ui} {
		if i > c.max {
			c.max = i
		}
	}
	return c, nil
}

// parseRow converts one data row into a Record. rowNum is 1-based over data
// rows and is used to synthesise a tile ID when the input has none.
func (c columns) parseRow(record []string, rowNum int) (Record, SkipReason, bool) {
	if len(record) <= c.max {
		return Record{}, SkipShortRow, false
	}

	var rec Record
	targets := []struct {
		idx int
		dst *float64
	}{
		{c.lon, &rec.Longitude},
		{c.lat, &rec.Latitude},
		{c.ndvi, &rec.NDVI},
		{c.ndbi, &rec.NDBI},
		{c.ndwi, &rec.NDWI},
		{c.mndwi, &rec.MNDWI},
		{c.ui, &rec.UI},
	}
	for _, t := range targets {
		v, reason, ok := parseFloat(record[t.idx])
		if !ok {
			return Record{}, reason, false
		}
		*t.dst = v
	}

	if c.ndmi >= 0 && c.ndmi < len(record) && strings.TrimSpace(record[c.ndmi]) != "" {
		v, reason, ok := parseFloat(record[c.ndmi])
		if !ok {
			return Record{}, reason, false
		}
		rec.NDMI = v
	}

	if !validCoordinate(rec.Longitude, rec.Latitude) {
		return Record{}, SkipBadCoordinate, false
	}

	if c.captureDate >= 0 && c.captureDate < len(record) {
		d, ok := parseDate(record[c.captureDate])
		if !ok {
			return Record{}, SkipBadDate, false
		}
		rec.CaptureDate = d
	}

	if c.tileID >= 0 && c.tileID < len(record) {
		rec.TileID = strings.TrimSpace(record[c.tileID])
	}
	if rec.TileID == "" {
		rec.TileID = fmt.Sprintf("row-%d", rowNum)
	}

	return rec, "", true
}
