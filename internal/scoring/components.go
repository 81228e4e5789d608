package scoring

import (
	"math"

	"github.com/loghub/countyscore/internal/tile"
)

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// obsolescenceValues returns the component values feeding the
// obsolescence table: built-up intensity, vegetation loss (or health when
// not inverted) and the urban index.
func obsolescenceValues(t *tile.Record, invertVegetation bool) map[string]float64 {
	veg := t.NDVI
	if invertVegetation {
		veg = 1 - t.NDVI
	}
	return map[string]float64{
		BuiltUp:    t.NDBI,
		VegHealth:  veg,
		UrbanIndex: t.UI,
	}
}

// growthValues returns the component values feeding the growth table.
// Vegetation and built-up potential peak at moderate index values
// (NDVI 0.5, NDBI 0.3); water availability is the wetter of NDWI and MNDWI.
func growthValues(t *tile.Record) map[string]float64 {
	return map[string]float64{
		VegHealth:         1 - math.Abs(t.NDVI-0.5)*2,
		BuiltUpPotential:  1 - math.Abs(t.NDBI-0.3)*2,
		WaterAvailability: clip01(math.Max(t.NDWI, t.MNDWI)),
	}
}

// weighted sums in a fixed component order so results are reproducible
// to the last bit.
func weighted(w Weights, order []string, values map[string]float64) float64 {
	sum := 0.0
	for _, name := range order {
		sum += w[name] * values[name]
	}
	return clip01(sum)
}

// TileObsolescence is the clipped weighted obsolescence of a single tile.
func (c Config) TileObsolescence(t *tile.Record) float64 {
	return weighted(c.Obsolescence, obsolescenceComponents, obsolescenceValues(t, c.InvertVegetation))
}

// TileGrowth is the clipped weighted growth potential of a single tile.
func (c Config) TileGrowth(t *tile.Record) float64 {
	return weighted(c.Growth, growthComponents, growthValues(t))
}
