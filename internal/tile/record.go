// Package tile loads per-tile spectral index records from tabular and
// GeoJSON sources.
package tile

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is a single satellite tile with its derived spectral indices.
// Records are immutable once loaded.
type Record struct {
	TileID      string    `json:"tile_id"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	NDVI        float64   `json:"ndvi"`
	NDBI        float64   `json:"ndbi"`
	NDWI        float64   `json:"ndwi"`
	MNDWI       float64   `json:"mndwi"`
	UI          float64   `json:"ui"`
	NDMI        float64   `json:"ndmi"`
	CaptureDate time.Time `json:"capture_date,omitempty"`
}

// SkipReason classifies why an input row was rejected.
type SkipReason string

const (
	SkipShortRow      SkipReason = "short_row"
	SkipBadNumber     SkipReason = "bad_number"
	SkipNonFinite     SkipReason = "non_finite"
	SkipBadCoordinate SkipReason = "bad_coordinate"
	SkipBadDate       SkipReason = "bad_date"
	SkipNoGeometry    SkipReason = "no_geometry"
)

// LoadResult holds the accepted tiles and per-reason skip counts.
type LoadResult struct {
	Source  string
	Tiles   []Record
	Skipped map[SkipReason]int
}

func newLoadResult(source string) *LoadResult {
	return &LoadResult{Source: source, Skipped: make(map[SkipReason]int)}
}

func (r *LoadResult) skip(reason SkipReason) {
	r.Skipped[reason]++
}

// SkippedTotal returns the number of rejected rows across all reasons.
func (r *LoadResult) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// SkipReasons returns the reasons with non-zero counts in a stable order.
func (r *LoadResult) SkipReasons() []SkipReason {
	reasons := make([]SkipReason, 0, len(r.Skipped))
	for reason, c := range r.Skipped {
		if c > 0 {
			reasons = append(reasons, reason)
		}
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseFloat(s string) (float64, SkipReason, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, SkipBadNumber, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, SkipNonFinite, false
	}
	return v, "", true
}

// validCoordinate reports whether lon/lat are inside WGS84 bounds.
func validCoordinate(lon, lat float64) bool {
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
