package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/scoring"
)

func squareCounty(t *testing.T, fips string, x, y, size float64) county.County {
	t.Helper()
	mp := orb.MultiPolygon{{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}}
	g, err := county.ToGeom(mp)
	require.NoError(t, err)
	return county.County{FIPS: fips, StateFIPS: fips[:2], Name: "County " + fips, Boundary: g}
}

func sampleScores() []scoring.CountyScore {
	return []scoring.CountyScore{
		{FIPS: "01001", Name: "Autauga", StateFIPS: "01", ObsolescenceScore: 0, GrowthPotentialScore: 0.5, BivariateScore: 0, Confidence: 0.6, TileCount: 2},
		{FIPS: "13121", Name: "Fulton", StateFIPS: "13", ObsolescenceScore: 1, GrowthPotentialScore: 0.16, BivariateScore: 0.16, Confidence: 0.65, TileCount: 3},
	}
}

func sampleCounties(t *testing.T) []county.County {
	return []county.County{
		squareCounty(t, "01001", 0, 0, 1),
		squareCounty(t, "13121", 1, 0, 1),
		squareCounty(t, "99999", 5, 5, 1),
	}
}

func TestRamp(t *testing.T) {
	r := DefaultRamp()
	assert.Equal(t, "#2c7bb6", Hex(r.At(0)))
	assert.Equal(t, "#ffffbf", Hex(r.At(0.5)))
	assert.Equal(t, "#d7191c", Hex(r.At(1)))
	assert.Equal(t, "#96bdbb", Hex(r.At(0.25)))
	assert.Equal(t, "#2c7bb6", Hex(r.At(-3)))
	assert.Equal(t, "#d7191c", Hex(r.At(7)))

	legend := r.Legend(5)
	require.Len(t, legend, 5)
	assert.Equal(t, Stop{Value: 0, Color: "#2c7bb6"}, legend[0])
	assert.Equal(t, Stop{Value: 1, Color: "#d7191c"}, legend[4])
}

func TestParseRamp_Errors(t *testing.T) {
	_, err := ParseRamp([]string{"#ffffff"})
	assert.ErrorContains(t, err, "at least 2 colors")

	_, err = ParseRamp([]string{"#ffffff", "#zzzzzz"})
	assert.ErrorContains(t, err, "invalid color")

	_, err = ParseRamp([]string{"#fff", "#000000"})
	assert.ErrorContains(t, err, "invalid color")

	r, err := ParseRamp([]string{"000000", "#FFFFFF"})
	require.NoError(t, err)
	assert.Equal(t, "#808080", Hex(r.At(0.5)))
}

func TestFieldValue(t *testing.T) {
	s := sampleScores()[1]
	for field, want := range map[string]float64{
		FieldObsolescence: 1,
		FieldGrowth:       0.16,
		FieldBivariate:    0.16,
		FieldConfidence:   0.65,
	} {
		got, err := FieldValue(s, field)
		require.NoError(t, err)
		assert.Equal(t, want, got, field)
	}
	_, err := FieldValue(s, "tile_count")
	assert.ErrorContains(t, err, "unknown legend field")
}

func TestFeatures_MissingBoundary(t *testing.T) {
	scores := []scoring.CountyScore{{FIPS: "42001"}}
	_, err := Features(scores, sampleCounties(t), DefaultOptions())
	assert.ErrorContains(t, err, "no boundary for county 42001")
}

func TestWriteGeoJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "county_scores.geojson")

	features, err := Features(sampleScores(), sampleCounties(t), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, WriteGeoJSON(path, features, DefaultOptions()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"id":"01001"`)
	assert.Contains(t, text, `"fill_color":"#2c7bb6"`)
	assert.Contains(t, text, `"fill_color":"#d7191c"`)
	assert.NotContains(t, text, "99999")
	assert.Less(t, strings.Index(text, "01001"), strings.Index(text, "13121"))

	got, err := ReadGeoJSONFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sampleScores(), []scoring.CountyScore{got[0].Score, got[1].Score})
	assert.InDelta(t, 1.0, got[1].Boundary.Bound().Min[0], 1e-12)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteGeoJSON_ByteIdenticalRerun(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.geojson")
	second := filepath.Join(dir, "b.geojson")

	for _, path := range []string{first, second} {
		features, err := Features(sampleScores(), sampleCounties(t), DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, WriteGeoJSON(path, features, DefaultOptions()))
	}
	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteGeoJSON_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.geojson")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	features, err := Features(sampleScores()[:1], sampleCounties(t), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, WriteGeoJSON(path, features, DefaultOptions()))

	got, err := ReadGeoJSONFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "01001", got[0].Score.FIPS)
}

func TestSimplifyBoundary(t *testing.T) {
	// a square with a nearly collinear midpoint on every edge
	ring := orb.Ring{{0, 0}, {0.5, 0.0001}, {1, 0}, {1.0001, 0.5}, {1, 1}, {0.5, 1.0001}, {0, 1}, {0.0001, 0.5}, {0, 0}}
	mp := orb.MultiPolygon{{ring}}

	got := simplifyBoundary(mp, 0.01)
	require.Len(t, got, 1)
	assert.Len(t, got[0][0], 5)
	assert.Len(t, mp[0][0], 9, "input is not modified")

	collapsed := simplifyBoundary(mp, 10)
	assert.Equal(t, mp, collapsed, "fully collapsed boundaries keep the original")
}

func TestReadGeoJSON_MissingFields(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"13121","geometry":null,"properties":{"obsolescence_score":0.5}}
	]}`
	got, err := ReadGeoJSON(strings.NewReader(doc), "test")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "13121", got[0].Score.FIPS)
	assert.Equal(t, 0.5, got[0].Score.ObsolescenceScore)
	assert.True(t, math.IsNaN(got[0].Score.GrowthPotentialScore), "missing reads as NaN")
	assert.Equal(t, -1, got[0].Score.TileCount)
	assert.Nil(t, got[0].Boundary)

	_, err = ReadGeoJSON(strings.NewReader(`{"type":"Feature"}`), "test")
	assert.ErrorContains(t, err, "not a FeatureCollection")
}

func TestRenderPNG(t *testing.T) {
	features, err := Features(sampleScores(), sampleCounties(t), DefaultOptions())
	require.NoError(t, err)

	img, err := RenderPNG(features, DefaultOptions(), 200)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	left := img.RGBAAt(50, 50)
	right := img.RGBAAt(150, 50)
	assert.Equal(t, "#2c7bb6", Hex(left))
	assert.Equal(t, "#d7191c", Hex(right))

	_, err = RenderPNG(nil, DefaultOptions(), 200)
	assert.Error(t, err)
	_, err = RenderPNG(features, DefaultOptions(), 0)
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	features, err := Features(sampleScores(), sampleCounties(t), DefaultOptions())
	require.NoError(t, err)

	path := SiblingPath(filepath.Join(t.TempDir(), "county_scores.geojson"), "_viz.png")
	assert.True(t, strings.HasSuffix(path, "county_scores_viz.png"))
	require.NoError(t, WritePNG(path, features, DefaultOptions(), 64))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}
