package georeferencer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mradamcox/ohmg/raster"
	"github.com/mradamcox/ohmg/transform"
)

// overviewFactors are the reduced-resolution pyramid levels written when
// overviews are requested.
var overviewFactors = []int{2, 4, 8}

// FinalPath is the stable location of the warped raster for a source.
func (g *Georeferencer) FinalPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	stem := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	return filepath.Join(g.outputDir, stem+"_3857.tif")
}

// warp resamples the source into an EPSG:3857 grid with bilinear sampling
// through the fitted inverse transform.
func (g *Georeferencer) warp(sourcePath string, overviews bool) (string, error) {
	t, err := transform.Fit(g.points, g.kind)
	if err != nil {
		return "", failure(FailTransformFit, err)
	}
	if _, err := t.Inverse(g.points[0].Geo); err != nil {
		return "", failure(FailResample, fmt.Errorf("transform has no usable inverse: %w", err))
	}

	src, err := raster.Open(sourcePath)
	if err != nil {
		return "", failure(FailIO, err)
	}
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()

	bound := forwardBound(t, srcW, srcH)
	resX := (bound.Max[0] - bound.Min[0]) / float64(srcW)
	resY := (bound.Max[1] - bound.Min[1]) / float64(srcH)
	if !isFinite(resX) || !isFinite(resY) || resX <= 0 || resY <= 0 {
		return "", failure(FailResample, fmt.Errorf("transform produces a zero-area output extent"))
	}
	outW := int(math.Ceil((bound.Max[0] - bound.Min[0]) / resX))
	outH := int(math.Ceil((bound.Max[1] - bound.Min[1]) / resY))
	if outW <= 0 || outH <= 0 {
		return "", failure(FailResample, fmt.Errorf("computed output size %dx%d is empty", outW, outH))
	}

	out := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	for row := 0; row < outH; row++ {
		geoY := bound.Max[1] - (float64(row)+0.5)*resY
		for col := 0; col < outW; col++ {
			geoX := bound.Min[0] + (float64(col)+0.5)*resX
			pix, err := t.Inverse(orb.Point{geoX, geoY})
			if err != nil {
				continue
			}
			c, ok := sampleBilinear(src, pix[0], pix[1])
			if ok {
				out.SetNRGBA(col, row, c)
			}
		}
	}

	geo := raster.Geo{
		OriginX: bound.Min[0],
		OriginY: bound.Max[1],
		PixelW:  resX,
		PixelH:  -resY,
		EPSG:    TargetEPSG,
	}

	path := g.FinalPath(sourcePath)
	if err := raster.WriteAtomic(path, out); err != nil {
		return "", failure(FailIO, err)
	}
	if err := raster.WriteSidecars(path, geo); err != nil {
		return "", failure(FailIO, err)
	}

	if overviews {
		if err := writeOverviews(path, out, geo); err != nil {
			return "", err
		}
	}
	return path, nil
}

func writeOverviews(path string, full image.Image, geo raster.Geo) error {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	for _, factor := range overviewFactors {
		ovr := raster.Downsample(full, factor)
		ovrPath := fmt.Sprintf("%s_ovr%d.tif", stem, factor)
		if err := raster.WriteAtomic(ovrPath, ovr); err != nil {
			return failure(FailIO, err)
		}
		ovrGeo := geo
		ovrGeo.PixelW *= float64(factor)
		ovrGeo.PixelH *= float64(factor)
		if err := raster.WriteSidecars(ovrPath, ovrGeo); err != nil {
			return failure(FailIO, err)
		}
	}
	return nil
}

// forwardBound maps a sampled grid along the source border through the
// forward transform and returns the covering geographic extent. Border
// sampling, not just corners, so curved poly2/3 and TPS edges are honored.
func forwardBound(t transform.Transform, w, h int) orb.Bound {
	const samples = 21
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	extend := func(p orb.Point) {
		g := t.Forward(p)
		if g[0] < b.Min[0] {
			b.Min[0] = g[0]
		}
		if g[1] < b.Min[1] {
			b.Min[1] = g[1]
		}
		if g[0] > b.Max[0] {
			b.Max[0] = g[0]
		}
		if g[1] > b.Max[1] {
			b.Max[1] = g[1]
		}
	}
	for i := 0; i < samples; i++ {
		fx := float64(w) * float64(i) / float64(samples-1)
		fy := float64(h) * float64(i) / float64(samples-1)
		extend(orb.Point{fx, 0})
		extend(orb.Point{fx, float64(h)})
		extend(orb.Point{0, fy})
		extend(orb.Point{float64(w), fy})
	}
	return b
}

// sampleBilinear interpolates the four pixels around the continuous source
// location (x, y) measured in pixel-center coordinates.
func sampleBilinear(img image.Image, x, y float64) (color.NRGBA, bool) {
	b := img.Bounds()
	if x < 0 || y < 0 || x > float64(b.Dx()) || y > float64(b.Dy()) {
		return color.NRGBA{}, false
	}

	fx := x - 0.5
	fy := y - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	clampX := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > b.Dx()-1 {
			return b.Dx() - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > b.Dy()-1 {
			return b.Dy() - 1
		}
		return v
	}

	at := func(px, py int) (float64, float64, float64, float64) {
		r, g, bl, a := img.At(b.Min.X+clampX(px), b.Min.Y+clampY(py)).RGBA()
		return float64(r), float64(g), float64(bl), float64(a)
	}

	r00, g00, b00, a00 := at(x0, y0)
	r10, g10, b10, a10 := at(x0+1, y0)
	r01, g01, b01, a01 := at(x0, y0+1)
	r11, g11, b11, a11 := at(x0+1, y0+1)

	lerp2 := func(v00, v10, v01, v11 float64) float64 {
		top := v00 + (v10-v00)*dx
		bot := v01 + (v11-v01)*dx
		return top + (bot-top)*dy
	}

	// 16-bit premultiplied down to 8-bit
	return color.NRGBA{
		R: uint8(lerp2(r00, r10, r01, r11) / 257),
		G: uint8(lerp2(g00, g10, g01, g11) / 257),
		B: uint8(lerp2(b00, b10, b01, b11) / 257),
		A: uint8(lerp2(a00, a10, a01, a11) / 257),
	}, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
