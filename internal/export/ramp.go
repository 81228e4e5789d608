package export

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/loghub/countyscore/internal/scoring"
)

// Score fields that can drive the legend color.
const (
	FieldObsolescence = "obsolescence_score"
	FieldGrowth       = "growth_potential_score"
	FieldBivariate    = "bivariate_score"
	FieldConfidence   = "confidence"
)

// LegendFields lists the accepted legend fields.
var LegendFields = []string{FieldObsolescence, FieldGrowth, FieldBivariate, FieldConfidence}

// DefaultRampColors runs blue to yellow to red.
var DefaultRampColors = []string{"#2c7bb6", "#ffffbf", "#d7191c"}

// FieldValue returns the named score field of s.
func FieldValue(s scoring.CountyScore, field string) (float64, error) {
	switch field {
	case FieldObsolescence:
		return s.ObsolescenceScore, nil
	case FieldGrowth:
		return s.GrowthPotentialScore, nil
	case FieldBivariate:
		return s.BivariateScore, nil
	case FieldConfidence:
		return s.Confidence, nil
	default:
		return 0, eris.Errorf("export: unknown legend field %q (want one of %s)", field, strings.Join(LegendFields, ", "))
	}
}

// Ramp is a piecewise-linear color scale over [0,1] with evenly spaced stops.
type Ramp struct {
	stops []color.RGBA
}

// ParseRamp builds a ramp from "#rrggbb" colors. At least two are required.
func ParseRamp(hex []string) (Ramp, error) {
	if len(hex) < 2 {
		return Ramp{}, eris.Errorf("export: color ramp needs at least 2 colors, got %d", len(hex))
	}
	stops := make([]color.RGBA, len(hex))
	for i, h := range hex {
		c, err := parseHex(h)
		if err != nil {
			return Ramp{}, err
		}
		stops[i] = c
	}
	return Ramp{stops: stops}, nil
}

// DefaultRamp returns the ramp built from DefaultRampColors.
func DefaultRamp() Ramp {
	r, _ := ParseRamp(DefaultRampColors)
	return r
}

func parseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, eris.Errorf("export: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, eris.Wrapf(err, "export: invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// At returns the color for v. Values are clipped to [0,1]; NaN maps to the
// first stop.
func (r Ramp) At(v float64) color.RGBA {
	if len(r.stops) == 0 {
		return color.RGBA{A: 0xff}
	}
	if math.IsNaN(v) || v <= 0 {
		return r.stops[0]
	}
	last := len(r.stops) - 1
	if v >= 1 {
		return r.stops[last]
	}

	pos := v * float64(last)
	i := int(pos)
	frac := pos - float64(i)
	a, b := r.stops[i], r.stops[i+1]
	return color.RGBA{
		R: lerp(a.R, b.R, frac),
		G: lerp(a.G, b.G, frac),
		B: lerp(a.B, b.B, frac),
		A: 0xff,
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// Hex formats c as "#rrggbb".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Stop is one legend entry.
type Stop struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Legend samples the ramp at n evenly spaced values from 0 to 1.
func (r Ramp) Legend(n int) []Stop {
	if n < 2 {
		n = 2
	}
	out := make([]Stop, n)
	for i := range out {
		v := float64(i) / float64(n-1)
		out[i] = Stop{Value: v, Color: Hex(r.At(v))}
	}
	return out
}
