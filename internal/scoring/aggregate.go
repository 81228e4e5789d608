package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/loghub/countyscore/internal/tile"
)

// CountyScore is the aggregate result for one county. It is recomputed from
// scratch every run.
type CountyScore struct {
	FIPS                 string  `json:"fips_code"`
	Name                 string  `json:"name"`
	StateFIPS            string  `json:"state_fips"`
	ObsolescenceScore    float64 `json:"obsolescence_score"`
	GrowthPotentialScore float64 `json:"growth_potential_score"`
	BivariateScore       float64 `json:"bivariate_score"`
	Confidence           float64 `json:"confidence"`
	TileCount            int     `json:"tile_count"`
}

// CountyInfo carries the descriptive fields copied onto each score.
type CountyInfo struct {
	Name      string
	StateFIPS string
}

// Aggregate scores every county that received at least one tile. Counties
// with no tiles are omitted. Results are sorted by FIPS and rounded to
// cfg.Precision decimals.
func Aggregate(byCounty map[string][]*tile.Record, info map[string]CountyInfo, cfg Config) []CountyScore {
	fipsCodes := make([]string, 0, len(byCounty))
	for fips, tiles := range byCounty {
		if len(tiles) > 0 {
			fipsCodes = append(fipsCodes, fips)
		}
	}
	sort.Strings(fipsCodes)

	scores := make([]CountyScore, 0, len(fipsCodes))
	for _, fips := range fipsCodes {
		s := ScoreCounty(byCounty[fips], cfg)
		s.FIPS = fips
		s.Name = info[fips].Name
		s.StateFIPS = info[fips].StateFIPS
		scores = append(scores, s)
	}
	return scores
}

// ScoreCounty aggregates one county's tiles. tiles must be non-empty.
func ScoreCounty(tiles []*tile.Record, cfg Config) CountyScore {
	obs := make([]float64, len(tiles))
	growth := make([]float64, len(tiles))
	for i, t := range tiles {
		obs[i] = cfg.TileObsolescence(t)
		growth[i] = cfg.TileGrowth(t)
	}

	o := clip01(Percentile(obs, cfg.Percentile))
	g := clip01(Percentile(growth, cfg.Percentile))

	return CountyScore{
		ObsolescenceScore:    round(o, cfg.Precision),
		GrowthPotentialScore: round(g, cfg.Precision),
		BivariateScore:       round(o*g, cfg.Precision),
		Confidence:           round(confidence(obs, growth, cfg.Confidence), cfg.Precision),
		TileCount:            len(tiles),
	}
}

// confidence grows with the tile count up to a cap and is discounted by the
// spread of the per-tile values.
func confidence(obs, growth []float64, c Confidence) float64 {
	n := len(obs)
	base := math.Min(c.Max, c.Base+c.PerTile*float64(n))

	spread := 0.0
	if n >= 2 {
		v := (stat.PopVariance(obs, nil) + stat.PopVariance(growth, nil)) / 2
		spread = math.Sqrt(math.Max(v, 0))
	}
	return clip01(base * (1 - c.VariancePenalty*spread))
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between closest ranks, the (n-1)p positioning used by
// NumPy's default. values is not modified. It returns NaN for no values.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}

	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
