package export

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/vector"
)

const maxAspect = 4

var background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// projection maps lon/lat to pixels with an equirectangular projection
// scaled by the cosine of the mid latitude.
type projection struct {
	bound  orb.Bound
	width  int
	height int
}

func newProjection(b orb.Bound, width int) projection {
	dx := b.Max[0] - b.Min[0]
	dy := b.Max[1] - b.Min[1]
	k := math.Cos((b.Min[1] + b.Max[1]) / 2 * math.Pi / 180)
	if dx <= 0 || dy <= 0 || k <= 0 {
		return projection{bound: b, width: width, height: width}
	}
	h := int(math.Round(float64(width) * dy / (dx * k)))
	h = max(1, min(h, width*maxAspect))
	return projection{bound: b, width: width, height: h}
}

func (p projection) point(pt orb.Point) (float32, float32) {
	dx := p.bound.Max[0] - p.bound.Min[0]
	dy := p.bound.Max[1] - p.bound.Min[1]
	x, y := 0.0, 0.0
	if dx > 0 {
		x = (pt[0] - p.bound.Min[0]) / dx * float64(p.width)
	}
	if dy > 0 {
		y = (p.bound.Max[1] - pt[1]) / dy * float64(p.height)
	}
	return float32(x), float32(y)
}

// RenderPNG rasterises the features as a choropleth colored by the legend
// field. Holes must be wound opposite to their shell to stay unfilled.
func RenderPNG(features []Feature, opts Options, width int) (*image.RGBA, error) {
	if width <= 0 {
		return nil, eris.Errorf("export: image width must be positive, got %d", width)
	}
	if len(features) == 0 {
		return nil, eris.New("export: nothing to render")
	}

	bound := features[0].Boundary.Bound()
	for _, f := range features[1:] {
		bound = bound.Union(f.Boundary.Bound())
	}
	proj := newProjection(bound, width)

	img := image.NewRGBA(image.Rect(0, 0, proj.width, proj.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	z := vector.NewRasterizer(proj.width, proj.height)
	for _, f := range features {
		v, err := FieldValue(f.Score, opts.LegendField)
		if err != nil {
			return nil, err
		}
		z.Reset(proj.width, proj.height)
		for _, poly := range f.Boundary {
			for _, ring := range poly {
				if len(ring) < 3 {
					continue
				}
				z.MoveTo(proj.point(ring[0]))
				for _, pt := range ring[1:] {
					z.LineTo(proj.point(pt))
				}
				z.ClosePath()
			}
		}
		z.Draw(img, img.Bounds(), image.NewUniform(opts.Ramp.At(v)), image.Point{})
	}
	return img, nil
}

// WritePNG renders the choropleth and atomically writes it to path.
func WritePNG(path string, features []Feature, opts Options, width int) error {
	img, err := RenderPNG(features, opts, width)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return eris.Wrap(err, "export: encode png")
	}
	if err := WriteFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	zap.L().With(zap.String("component", "export")).Info("wrote choropleth",
		zap.String("path", path),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return nil
}
