package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghub/countyscore/internal/config"
	"github.com/loghub/countyscore/internal/tile"
)

func sampleTiles(n int) []*tile.Record {
	out := make([]*tile.Record, n)
	for i := range out {
		out[i] = &tile.Record{TileID: "t", NDBI: 0.8, NDVI: 0.2, UI: 0.5}
	}
	return out
}

func TestAggregate_UniformTiles(t *testing.T) {
	byCounty := map[string][]*tile.Record{"13121": sampleTiles(3)}
	info := map[string]CountyInfo{"13121": {Name: "Fulton", StateFIPS: "13"}}

	scores := Aggregate(byCounty, info, DefaultConfig())
	require.Len(t, scores, 1)

	s := scores[0]
	assert.Equal(t, "13121", s.FIPS)
	assert.Equal(t, "Fulton", s.Name)
	assert.Equal(t, "13", s.StateFIPS)
	assert.Equal(t, 3, s.TileCount)
	assert.InDelta(t, 0.74, s.ObsolescenceScore, 1e-9)
	assert.InDelta(t, 0.16, s.GrowthPotentialScore, 1e-9)
	assert.InDelta(t, 0.1184, s.BivariateScore, 1e-9)
	// identical tiles: no variance penalty, 0.5 + 3*0.05
	assert.InDelta(t, 0.65, s.Confidence, 1e-9)
}

func TestAggregate_OmitsEmptyCountiesAndSorts(t *testing.T) {
	byCounty := map[string][]*tile.Record{
		"13121": sampleTiles(2),
		"01001": sampleTiles(1),
		"99999": nil,
	}
	scores := Aggregate(byCounty, nil, DefaultConfig())
	require.Len(t, scores, 2)
	assert.Equal(t, "01001", scores[0].FIPS)
	assert.Equal(t, "13121", scores[1].FIPS)
	for _, s := range scores {
		assert.NotEqual(t, "99999", s.FIPS)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	byCounty := map[string][]*tile.Record{
		"13121": {
			{NDBI: 0.1, NDVI: 0.9, UI: 0.3, NDWI: 0.2},
			{NDBI: 0.7, NDVI: 0.4, UI: 0.1, MNDWI: 0.6},
			{NDBI: 0.5, NDVI: 0.5, UI: 0.9},
		},
		"01001": sampleTiles(4),
	}
	cfg := DefaultConfig()
	first := Aggregate(byCounty, nil, cfg)
	second := Aggregate(byCounty, nil, cfg)
	assert.Equal(t, first, second)
}

func TestAggregate_ScoresInRange(t *testing.T) {
	tiles := []*tile.Record{
		{NDBI: 5, NDVI: -3, UI: 9, NDWI: 4, MNDWI: -2},
		{NDBI: -5, NDVI: 3, UI: -9},
	}
	s := ScoreCounty(tiles, DefaultConfig())
	for _, v := range []float64{s.ObsolescenceScore, s.GrowthPotentialScore, s.BivariateScore, s.Confidence} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestScoreCounty_Bivariate(t *testing.T) {
	tiles := []*tile.Record{
		{NDBI: 0.3, NDVI: 0.5, UI: 0.4, NDWI: 0.5},
		{NDBI: 0.6, NDVI: 0.1, UI: 0.8, NDWI: 0.1},
	}
	cfg := DefaultConfig()
	cfg.Precision = 15
	s := ScoreCounty(tiles, cfg)
	assert.InDelta(t, s.ObsolescenceScore*s.GrowthPotentialScore, s.BivariateScore, 1e-12)
}

func TestScoreCounty_NoVegetationInversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InvertVegetation = false
	s := ScoreCounty(sampleTiles(1), cfg)
	// 0.4*0.8 + 0.4*0.2 + 0.2*0.5
	assert.InDelta(t, 0.5, s.ObsolescenceScore, 1e-9)
}

func TestConfidence(t *testing.T) {
	c := DefaultConfig().Confidence

	t.Run("single tile", func(t *testing.T) {
		assert.InDelta(t, 0.55, confidence([]float64{0.9}, []float64{0.1}, c), 1e-12)
	})

	t.Run("capped", func(t *testing.T) {
		obs := make([]float64, 40)
		growth := make([]float64, 40)
		assert.InDelta(t, 0.95, confidence(obs, growth, c), 1e-12)
	})

	t.Run("variance penalty", func(t *testing.T) {
		// popvar(obs) = 0.04, popvar(growth) = 0, mean 0.02
		got := confidence([]float64{0.2, 0.6}, []float64{0.5, 0.5}, c)
		want := 0.6 * (1 - math.Sqrt(0.02))
		assert.InDelta(t, want, got, 1e-12)
	})

	t.Run("never negative", func(t *testing.T) {
		heavy := c
		heavy.VariancePenalty = 100
		got := confidence([]float64{0, 1}, []float64{0, 1}, heavy)
		assert.Equal(t, 0.0, got)
	})
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"single", []float64{0.4}, 75, 0.4},
		{"interpolated", []float64{4, 1, 3, 2}, 75, 3.25},
		{"exact rank", []float64{0.1, 0.9, 0.5}, 50, 0.5},
		{"three values p75", []float64{0.1, 0.5, 0.9}, 75, 0.7},
		{"min", []float64{3, 1, 2}, 0, 1},
		{"max", []float64{3, 1, 2}, 100, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(tt.values, tt.p), 1e-12)
		})
	}

	assert.True(t, math.IsNaN(Percentile(nil, 50)))

	values := []float64{3, 1, 2}
	Percentile(values, 50)
	assert.Equal(t, []float64{3, 1, 2}, values, "input must not be reordered")
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.123457, round(0.1234567, 6))
	assert.Equal(t, 0.74, round(0.4*0.8+0.4*0.8+0.2*0.5, 6))
	assert.False(t, math.Signbit(round(-0.0000001, 6)))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "sum off",
			mutate:  func(c *Config) { c.Obsolescence[BuiltUp] = 0.5 },
			wantErr: "obsolescence weights should sum to 1",
		},
		{
			name:    "unknown component",
			mutate:  func(c *Config) { c.Growth["soil"] = 0 },
			wantErr: `growth weights has unknown component "soil"`,
		},
		{
			name:    "missing component",
			mutate:  func(c *Config) { delete(c.Growth, WaterAvailability) },
			wantErr: `growth weights missing "water_availability"`,
		},
		{
			name: "negative weight",
			mutate: func(c *Config) {
				c.Obsolescence[BuiltUp] = -0.2
				c.Obsolescence[VegHealth] = 1.0
			},
			wantErr: `obsolescence weight "built_up" must be a non-negative number`,
		},
		{
			name:    "empty table",
			mutate:  func(c *Config) { c.Growth = nil },
			wantErr: "growth weights are empty",
		},
		{
			name:    "percentile",
			mutate:  func(c *Config) { c.Percentile = 120 },
			wantErr: "percentile must be between 0 and 100",
		},
		{
			name:    "confidence max",
			mutate:  func(c *Config) { c.Confidence.Max = 2 },
			wantErr: "confidence.max must be between 0 and 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "scoring: config validation failed")
		})
	}
}

func TestValidate_WithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Obsolescence[BuiltUp] = 0.4005
	assert.NoError(t, cfg.Validate())
}

func scoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Obsolescence:     map[string]float64{"built_up": 0.4, "veg_health": 0.4, "urban_index": 0.2},
		Growth:           map[string]float64{"veg_health": 0.4, "built_up_potential": 0.4, "water_availability": 0.2},
		Percentile:       75,
		InvertVegetation: true,
		Precision:        6,
		Confidence:       config.ConfidenceConfig{Base: 0.5, PerTile: 0.05, Max: 0.95, VariancePenalty: 1},
	}
}

func TestFromConfig(t *testing.T) {
	sc := scoringConfig()
	cfg, err := FromConfig(sc)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	// the returned tables are copies
	sc.Obsolescence["built_up"] = 9
	assert.Equal(t, 0.4, cfg.Obsolescence[BuiltUp])
}

func TestFromConfig_WeightsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	doc := "obsolescence:\n  built_up: 0.6\n  veg_health: 0.2\n  urban_index: 0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	sc := scoringConfig()
	sc.WeightsFile = path
	cfg, err := FromConfig(sc)
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Obsolescence[BuiltUp])
	assert.Equal(t, 0.4, cfg.Growth[VegHealth], "growth falls back to the inline table")
}

func TestFromConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		sc := scoringConfig()
		sc.WeightsFile = filepath.Join(t.TempDir(), "nope.yaml")
		_, err := FromConfig(sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scoring: read weights file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.yaml")
		require.NoError(t, os.WriteFile(path, []byte("obsolescence: [1, 2"), 0o644))
		sc := scoringConfig()
		sc.WeightsFile = path
		_, err := FromConfig(sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scoring: parse weights file")
	})

	t.Run("invalid weights", func(t *testing.T) {
		sc := scoringConfig()
		sc.Growth["water_availability"] = 0.9
		_, err := FromConfig(sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "growth weights should sum to 1")
	})
}
