package validate

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/scoring"
)

func square(x, y float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}}
}

func feature(fips string, obs float64, boundary orb.MultiPolygon) export.Feature {
	return export.Feature{
		Score: scoring.CountyScore{
			FIPS:                 fips,
			ObsolescenceScore:    obs,
			GrowthPotentialScore: 0.5,
			BivariateScore:       obs * 0.5,
			Confidence:           0.6,
			TileCount:            2,
		},
		Boundary: boundary,
	}
}

func referenceCounties(t *testing.T, fips ...string) []county.County {
	t.Helper()
	out := make([]county.County, len(fips))
	for i, f := range fips {
		g, err := county.ToGeom(square(float64(i), 0))
		require.NoError(t, err)
		out[i] = county.County{FIPS: f, Boundary: g}
	}
	return out
}

func TestCheck_Clean(t *testing.T) {
	features := []export.Feature{
		feature("01001", 0.2, square(0, 0)),
		feature("13121", 0.8, square(1, 0)),
	}
	r := Check("scores.geojson", features, referenceCounties(t, "01001", "13121", "99999"))

	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, 0, r.IssueCount())
	assert.Equal(t, 2, r.FeatureCount)
	assert.Equal(t, 4, r.TileCount)
	assert.Equal(t, []string{"99999"}, r.MissingCounties)
	assert.Equal(t, 3, r.ReferenceCount)

	obs := r.Stats[export.FieldObsolescence]
	assert.Equal(t, 2, obs.Count)
	assert.InDelta(t, 0.2, obs.Min, 1e-12)
	assert.InDelta(t, 0.8, obs.Max, 1e-12)
	assert.InDelta(t, 0.5, obs.Mean, 1e-12)
}

func TestCheck_ReferenceDuplicatesCountedOnce(t *testing.T) {
	features := []export.Feature{feature("01001", 0.2, square(0, 0))}
	r := Check("scores.geojson", features, referenceCounties(t, "48201", "01001", "48201", "06037"))

	assert.Equal(t, 3, r.ReferenceCount)
	assert.Equal(t, []string{"06037", "48201"}, r.MissingCounties)
}

func TestCheck_Issues(t *testing.T) {
	badConf := feature("01003", 0.4, square(2, 0))
	badConf.Score.Confidence = 1.5
	negTiles := feature("01005", 0.4, square(3, 0))
	negTiles.Score.TileCount = -1
	noFIPS := feature("", 0.4, square(4, 0))

	features := []export.Feature{
		feature("01001", math.NaN(), square(0, 0)),
		feature("13121", 1.2, square(1, 0)),
		feature("13121", 0.5, square(1, 0)),
		badConf,
		negTiles,
		noFIPS,
		feature("01007", 0.3, nil),
		feature("01009", 0.3, orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}}}}),
		feature("01011", 0.3, orb.MultiPolygon{{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}}),
		feature("01013", 0.3, orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, math.Inf(1)}, {0, 0}}}}),
	}
	r := Check("scores.geojson", features, nil)

	assert.Equal(t, StatusWarning, r.Status)
	assert.Equal(t, IssueDetail{Count: 2, FIPS: []string{"01001", "13121"}}, r.Issues[IssueInvalidScore])
	assert.Equal(t, IssueDetail{Count: 1, FIPS: []string{"01003"}}, r.Issues[IssueInvalidConfidence])
	assert.Equal(t, IssueDetail{Count: 1, FIPS: []string{"01005"}}, r.Issues[IssueInvalidTileCount])
	assert.Equal(t, IssueDetail{Count: 1, FIPS: []string{"13121"}}, r.Issues[IssueDuplicateFIPS])
	assert.Equal(t, IssueDetail{Count: 1}, r.Issues[IssueMissingFIPS])
	assert.Equal(t, IssueDetail{Count: 4, FIPS: []string{"01007", "01009", "01011", "01013"}}, r.Issues[IssueInvalidGeometry])
	assert.Nil(t, r.MissingCounties)

	obs := r.Stats[export.FieldObsolescence]
	assert.Equal(t, 8, obs.Count, "NaN and out-of-range values are excluded from stats")
}

func TestCheckFile_AndWriteReport(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "county_scores.geojson")
	features := []export.Feature{feature("01001", 0.2, square(0, 0))}
	require.NoError(t, export.WriteGeoJSON(output, features, export.DefaultOptions()))

	r, err := CheckFile(output, referenceCounties(t, "01001", "01003"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, []string{"01003"}, r.MissingCounties)
	r.Log()

	reportPath := ReportPath(output)
	assert.Equal(t, filepath.Join(dir, "county_scores_validation.json"), reportPath)
	require.NoError(t, WriteReport(reportPath, r))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ok", decoded["status"])
	assert.Equal(t, float64(1), decoded["feature_count"])
}

func TestCheckFile_Missing(t *testing.T) {
	_, err := CheckFile(filepath.Join(t.TempDir(), "nope.geojson"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate: read output")
}

func TestReport_LogWarnings(t *testing.T) {
	r := Check("x", []export.Feature{feature("01001", 2, nil)}, nil)
	assert.Equal(t, StatusWarning, r.Status)
	assert.NotPanics(t, r.Log)
}
