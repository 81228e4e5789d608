// Package scoring turns per-county tile groups into obsolescence, growth
// potential, bivariate and confidence scores.
package scoring

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/loghub/countyscore/internal/config"
)

// Component names accepted in each weight table.
const (
	BuiltUp           = "built_up"
	VegHealth         = "veg_health"
	UrbanIndex        = "urban_index"
	BuiltUpPotential  = "built_up_potential"
	WaterAvailability = "water_availability"
)

var (
	obsolescenceComponents = []string{BuiltUp, VegHealth, UrbanIndex}
	growthComponents       = []string{VegHealth, BuiltUpPotential, WaterAvailability}
)

const weightTolerance = 0.001

// Weights maps component name to weight.
type Weights map[string]float64

// Confidence parameterises the per-county confidence value.
type Confidence struct {
	Base            float64
	PerTile         float64
	Max             float64
	VariancePenalty float64
}

// Config is the immutable scoring configuration passed to Aggregate.
type Config struct {
	Obsolescence     Weights
	Growth           Weights
	Percentile       float64 // 0-100
	InvertVegetation bool
	Precision        int
	Confidence       Confidence
}

// DefaultConfig returns the standard weights and aggregation parameters.
func DefaultConfig() Config {
	return Config{
		Obsolescence:     Weights{BuiltUp: 0.4, VegHealth: 0.4, UrbanIndex: 0.2},
		Growth:           Weights{VegHealth: 0.4, BuiltUpPotential: 0.4, WaterAvailability: 0.2},
		Percentile:       75,
		InvertVegetation: true,
		Precision:        6,
		Confidence: Confidence{
			Base:            0.5,
			PerTile:         0.05,
			Max:             0.95,
			VariancePenalty: 1.0,
		},
	}
}

// weightsFile is the standalone weights document referenced by
// scoring.weights_file.
type weightsFile struct {
	Obsolescence map[string]float64 `yaml:"obsolescence"`
	Growth       map[string]float64 `yaml:"growth"`
}

// LoadWeightsFile reads a YAML document with obsolescence and growth tables.
// A table absent from the file is returned as nil.
func LoadWeightsFile(path string) (obsolescence, growth Weights, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "scoring: read weights file %s", path)
	}
	var wf weightsFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, nil, eris.Wrapf(err, "scoring: parse weights file %s", path)
	}
	return wf.Obsolescence, wf.Growth, nil
}

// FromConfig builds a validated Config from application configuration.
// Weight tables from scoring.weights_file replace the inline ones.
func FromConfig(c config.ScoringConfig) (Config, error) {
	cfg := Config{
		Obsolescence:     Weights(c.Obsolescence),
		Growth:           Weights(c.Growth),
		Percentile:       c.Percentile,
		InvertVegetation: c.InvertVegetation,
		Precision:        c.Precision,
		Confidence: Confidence{
			Base:            c.Confidence.Base,
			PerTile:         c.Confidence.PerTile,
			Max:             c.Confidence.Max,
			VariancePenalty: c.Confidence.VariancePenalty,
		},
	}
	if c.WeightsFile != "" {
		obs, growth, err := LoadWeightsFile(c.WeightsFile)
		if err != nil {
			return Config{}, err
		}
		if obs != nil {
			cfg.Obsolescence = obs
		}
		if growth != nil {
			cfg.Growth = growth
		}
	}
	cfg.Obsolescence = cfg.Obsolescence.clone()
	cfg.Growth = cfg.Growth.clone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (w Weights) clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Validate checks the weight tables and parameters.
func (c Config) Validate() error {
	var errs []string
	errs = append(errs, validateWeights("obsolescence", c.Obsolescence, obsolescenceComponents)...)
	errs = append(errs, validateWeights("growth", c.Growth, growthComponents)...)

	if c.Percentile < 0 || c.Percentile > 100 || math.IsNaN(c.Percentile) {
		errs = append(errs, fmt.Sprintf("percentile must be between 0 and 100, got %g", c.Percentile))
	}
	if c.Precision < 0 || c.Precision > 15 {
		errs = append(errs, fmt.Sprintf("precision must be between 0 and 15, got %d", c.Precision))
	}
	cf := c.Confidence
	if cf.Base < 0 || cf.Base > 1 {
		errs = append(errs, "confidence.base must be between 0 and 1")
	}
	if cf.PerTile < 0 {
		errs = append(errs, "confidence.per_tile must be >= 0")
	}
	if cf.Max < 0 || cf.Max > 1 {
		errs = append(errs, "confidence.max must be between 0 and 1")
	}
	if cf.VariancePenalty < 0 {
		errs = append(errs, "confidence.variance_penalty must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateWeights requires exactly the known names, each non-negative, with
// a sum of 1 within tolerance.
func validateWeights(table string, w Weights, known []string) []string {
	var errs []string
	if len(w) == 0 {
		return []string{fmt.Sprintf("%s weights are empty", table)}
	}

	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
		if _, ok := w[k]; !ok {
			errs = append(errs, fmt.Sprintf("%s weights missing %q", table, k))
		}
	}

	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	for _, name := range names {
		v := w[name]
		if !allowed[name] {
			errs = append(errs, fmt.Sprintf("%s weights has unknown component %q", table, name))
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s weight %q must be a non-negative number", table, name))
			continue
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("%s weights should sum to 1, got %.4f", table, sum))
	}
	return errs
}
