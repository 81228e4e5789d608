// Package validate runs advisory quality checks over exported county scores.
// Findings are reported, never enforced.
package validate

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/export"
)

// Status summarises a report.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
)

// Issue kinds.
const (
	IssueInvalidScore      = "invalid_score"
	IssueInvalidConfidence = "invalid_confidence"
	IssueInvalidTileCount  = "invalid_tile_count"
	IssueDuplicateFIPS     = "duplicate_fips"
	IssueMissingFIPS       = "missing_fips"
	IssueInvalidGeometry   = "invalid_geometry"
)

// IssueDetail counts one kind of finding and lists the affected counties.
type IssueDetail struct {
	Count int      `json:"count"`
	FIPS  []string `json:"fips,omitempty"`
}

// FieldStats summarises one score field over its finite values.
type FieldStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Report is the outcome of a validation pass.
type Report struct {
	Source       string                 `json:"source"`
	Status       Status                 `json:"status"`
	FeatureCount int                    `json:"feature_count"`
	TileCount    int                    `json:"tile_count"`
	Issues       map[string]IssueDetail `json:"issues"`
	Stats        map[string]FieldStats  `json:"stats"`
	// MissingCounties are reference counties with no output feature. They
	// are expected where no tiles fell and do not affect Status.
	MissingCounties []string `json:"missing_counties"`
	ReferenceCount  int      `json:"reference_count"`
}

// IssueCount returns the number of findings across all kinds.
func (r *Report) IssueCount() int {
	n := 0
	for _, d := range r.Issues {
		n += d.Count
	}
	return n
}

func (r *Report) add(kind, fips string) {
	d := r.Issues[kind]
	d.Count++
	if fips != "" {
		d.FIPS = append(d.FIPS, fips)
	}
	r.Issues[kind] = d
}

// Check validates features. reference may be nil, in which case the
// missing-county check is skipped.
func Check(source string, features []export.Feature, reference []county.County) *Report {
	r := &Report{
		Source:       source,
		FeatureCount: len(features),
		Issues:       make(map[string]IssueDetail),
		Stats:        make(map[string]FieldStats),
	}

	seen := make(map[string]int, len(features))
	values := make(map[string][]float64, len(export.LegendFields))
	for _, f := range features {
		s := f.Score
		if s.FIPS == "" {
			r.add(IssueMissingFIPS, "")
		} else {
			seen[s.FIPS]++
			if seen[s.FIPS] == 2 {
				r.add(IssueDuplicateFIPS, s.FIPS)
			}
		}

		badScore, badConfidence := false, false
		for _, field := range export.LegendFields {
			v, _ := export.FieldValue(s, field)
			switch {
			case unitInterval(v):
				values[field] = append(values[field], v)
			case field == export.FieldConfidence:
				badConfidence = true
			default:
				badScore = true
			}
		}
		if badScore {
			r.add(IssueInvalidScore, s.FIPS)
		}
		if badConfidence {
			r.add(IssueInvalidConfidence, s.FIPS)
		}

		if s.TileCount < 0 {
			r.add(IssueInvalidTileCount, s.FIPS)
		} else {
			r.TileCount += s.TileCount
		}

		if !validBoundary(f.Boundary) {
			r.add(IssueInvalidGeometry, s.FIPS)
		}
	}

	for field, vs := range values {
		r.Stats[field] = fieldStats(vs)
	}

	if reference != nil {
		ref := county.FIPSSet(reference)
		r.ReferenceCount = len(ref)
		r.MissingCounties = []string{}
		for fips := range ref {
			if seen[fips] == 0 {
				r.MissingCounties = append(r.MissingCounties, fips)
			}
		}
		sort.Strings(r.MissingCounties)
	}

	r.Status = StatusOK
	if r.IssueCount() > 0 {
		r.Status = StatusWarning
	}
	return r
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func fieldStats(vs []float64) FieldStats {
	if len(vs) == 0 {
		return FieldStats{}
	}
	return FieldStats{
		Count: len(vs),
		Min:   floats.Min(vs),
		Max:   floats.Max(vs),
		Mean:  stat.Mean(vs, nil),
	}
}

// validBoundary requires at least one polygon whose rings are closed, have
// four or more finite points, and enclose a non-zero area.
func validBoundary(mp orb.MultiPolygon) bool {
	if len(mp) == 0 {
		return false
	}
	for _, poly := range mp {
		if len(poly) == 0 {
			return false
		}
		for _, ring := range poly {
			if len(ring) < 4 || !ring.Closed() {
				return false
			}
			for _, p := range ring {
				if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
					return false
				}
			}
		}
	}
	return planar.Area(mp) != 0
}

// CheckFile reads an exported collection and validates it.
func CheckFile(path string, reference []county.County) (*Report, error) {
	features, err := export.ReadGeoJSONFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "validate: read output")
	}
	return Check(path, features, reference), nil
}

// ReportPath returns where the report for an output file is written.
func ReportPath(output string) string {
	return export.SiblingPath(output, "_validation.json")
}

// WriteReport writes r as indented JSON.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrap(err, "validate: encode report")
	}
	data = append(data, '\n')
	if err := export.WriteFileAtomic(path, data); err != nil {
		return eris.Wrap(err, "validate: write report")
	}
	return nil
}

// Log emits the report summary. Findings are logged at Warn.
func (r *Report) Log() {
	log := zap.L().With(zap.String("component", "validate"), zap.String("source", r.Source))

	fields := []zap.Field{
		zap.String("status", string(r.Status)),
		zap.Int("features", r.FeatureCount),
		zap.Int("tiles", r.TileCount),
		zap.Int("missing_counties", len(r.MissingCounties)),
	}
	if r.Status == StatusOK {
		log.Info("validation passed", fields...)
		return
	}

	kinds := make([]string, 0, len(r.Issues))
	for k := range r.Issues {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		d := r.Issues[k]
		log.Warn("validation issue", zap.String("kind", k), zap.Int("count", d.Count), zap.Strings("fips", d.FIPS))
	}
	log.Warn("validation finished with warnings", append(fields, zap.Int("issues", r.IssueCount()))...)
}
