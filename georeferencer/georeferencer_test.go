package georeferencer

import (
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradamcox/ohmg/raster"
	"github.com/mradamcox/ohmg/transform"
)

func sourceImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 5 % 256), G: uint8(y * 7 % 256), B: 99, A: 255})
		}
	}
	path := filepath.Join(dir, "sheet.png")
	require.NoError(t, raster.WriteAtomic(path, img))
	return path
}

// affinePoints maps pixel (x, y) to geo (1000 + 2x, 2000 - 2y): a north-up
// scale-2 placement whose warp should reproduce the source exactly.
func affinePoints(w, h float64) []transform.ControlPoint {
	corners := []orb.Point{{0, 0}, {w, 0}, {w, h}, {0, h}}
	points := make([]transform.ControlPoint, len(corners))
	for i, c := range corners {
		points[i] = transform.ControlPoint{
			Pixel: c,
			Geo:   orb.Point{1000 + 2*c[0], 2000 - 2*c[1]},
		}
	}
	return points
}

func TestPreviewVRT(t *testing.T) {
	dir := t.TempDir()
	src := sourceImage(t, dir, 40, 30)

	g := New(dir)
	require.NoError(t, g.LoadControlPoints(affinePoints(40, 30)))

	out, err := g.Georeference(src, Preview, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sheet.vrt"), out)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var ds vrtDataset
	require.NoError(t, xml.Unmarshal(raw, &ds))
	assert.Equal(t, 40, ds.RasterXSize)
	assert.Equal(t, 30, ds.RasterYSize)
	assert.Equal(t, "EPSG:3857", ds.GCPList.Projection)
	assert.Len(t, ds.GCPList.GCPs, 4)
	require.Len(t, ds.Bands, 3)
	assert.Equal(t, src, ds.Bands[0].Source.SourceFilename.Value)

	// re-running targets the same path, so previews never accumulate
	again, err := g.Georeference(src, Preview, false)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestWarpAffinePlacement(t *testing.T) {
	dir := t.TempDir()
	src := sourceImage(t, dir, 40, 30)

	g := New(dir)
	require.NoError(t, g.LoadControlPoints(affinePoints(40, 30)))

	out, err := g.Georeference(src, Final, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sheet_3857.tif"), out)

	w, h, err := raster.Size(out)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	geo, err := raster.ReadWorldFile(out)
	require.NoError(t, err)
	assert.InDelta(t, 1000, geo.OriginX, 1e-6)
	assert.InDelta(t, 2000, geo.OriginY, 1e-6)
	assert.InDelta(t, 2, geo.PixelW, 1e-6)
	assert.InDelta(t, -2, geo.PixelH, 1e-6)

	// the affine warp grid lines up with the source grid pixel for pixel
	warped, err := raster.Open(out)
	require.NoError(t, err)
	original, err := raster.Open(src)
	require.NoError(t, err)
	for _, p := range []image.Point{{0, 0}, {20, 15}, {39, 29}} {
		or, og, ob, _ := original.At(p.X, p.Y).RGBA()
		wr, wg, wb, _ := warped.At(p.X, p.Y).RGBA()
		// one 8-bit step of slack for float noise in the fitted inverse
		assert.InDeltaf(t, float64(or), float64(wr), 257, "pixel %v red", p)
		assert.InDeltaf(t, float64(og), float64(wg), 257, "pixel %v green", p)
		assert.InDeltaf(t, float64(ob), float64(wb), 257, "pixel %v blue", p)
	}

	for _, factor := range []int{2, 4, 8} {
		ovrPath := filepath.Join(dir, fmt.Sprintf("sheet_3857_ovr%d.tif", factor))
		ow, oh, err := raster.Size(ovrPath)
		require.NoErrorf(t, err, "overview factor %d", factor)
		assert.Equal(t, 40/factor, ow)
		assert.Equal(t, 30/factor, oh)

		ovrGeo, err := raster.ReadWorldFile(ovrPath)
		require.NoError(t, err)
		assert.InDelta(t, 2*float64(factor), ovrGeo.PixelW, 1e-6)
	}
}

func TestWarpRerunOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := sourceImage(t, dir, 20, 20)

	g := New(dir)
	require.NoError(t, g.LoadControlPoints(affinePoints(20, 20)))

	first, err := g.Georeference(src, Final, false)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(first)
	require.NoError(t, err)

	second, err := g.Georeference(src, Final, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// the solver and the encoder are deterministic, so a rerun over the
	// same inputs must reproduce the warp byte for byte
	secondBytes, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)

	entries, err := filepath.Glob(filepath.Join(dir, "*_3857.tif"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGeoreferenceNoPoints(t *testing.T) {
	g := New(t.TempDir())
	_, err := g.Georeference("missing.png", Final, false)
	require.Error(t, err)

	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, FailTransformFit, ge.Kind)
	assert.ErrorIs(t, err, transform.ErrInsufficientOrDegenerate)
}

func TestGeoreferenceMissingSource(t *testing.T) {
	g := New(t.TempDir())
	require.NoError(t, g.LoadControlPoints(affinePoints(10, 10)))

	_, err := g.Georeference(filepath.Join(t.TempDir(), "nope.png"), Final, false)
	require.Error(t, err)
	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, FailIO, ge.Kind)
}

func TestLoadControlPointsRejectsDegenerate(t *testing.T) {
	g := New(t.TempDir())
	err := g.LoadControlPoints([]transform.ControlPoint{
		{Pixel: orb.Point{0, 0}, Geo: orb.Point{0, 0}},
		{Pixel: orb.Point{1, 1}, Geo: orb.Point{2, 2}},
	})
	require.Error(t, err)
	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, FailTransformFit, ge.Kind)
	assert.Empty(t, g.Points())
}

func TestSetTransformationValidatesLoadedPoints(t *testing.T) {
	g := New(t.TempDir())
	require.NoError(t, g.LoadControlPoints(affinePoints(10, 10)))

	err := g.SetTransformation(transform.Poly2)
	require.Error(t, err)
	assert.Equal(t, transform.Poly, g.Kind())

	require.NoError(t, g.SetTransformation(transform.TPS))
	assert.Equal(t, transform.TPS, g.Kind())
}

func TestLoadControlPointsFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "mapX,mapY,pixelX,pixelY,enable\n" +
		"1000,2000,0,-0,1\n" +
		"1080,2000,40,-0,1\n" +
		"1080,1940,40,-30,1\n" +
		"9999,9999,5,-5,0\n" +
		"1000,1940,0,-30,1\n"
	path := filepath.Join(dir, "sheet.points")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	g := New(dir)
	require.NoError(t, g.LoadControlPointsFromFile(path))
	points := g.Points()
	require.Len(t, points, 4)
	assert.Equal(t, orb.Point{40, 30}, points[2].Pixel)
	assert.Equal(t, orb.Point{1080, 1940}, points[2].Geo)
}

func TestApplyMask(t *testing.T) {
	dir := t.TempDir()
	layer := filepath.Join(dir, "layer.tif")

	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	require.NoError(t, raster.WriteAtomic(layer, img))
	require.NoError(t, raster.WriteSidecars(layer, raster.Geo{
		OriginX: 0, OriginY: 10, PixelW: 1, PixelH: -1, EPSG: 3857,
	}))

	out, err := ApplyMask(layer, "POLYGON((0 0,5 0,5 10,0 10,0 0))")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "layer_trim.tif"), out)

	masked, err := raster.Open(out)
	require.NoError(t, err)
	for y := 0; y < 10; y++ {
		_, _, _, left := masked.At(2, y).RGBA()
		_, _, _, right := masked.At(7, y).RGBA()
		assert.NotZero(t, left, "inside pixels keep their alpha")
		assert.Zero(t, right, "outside pixels become transparent")
	}

	// same world placement carries over to the trimmed variant
	geo, err := raster.ReadWorldFile(out)
	require.NoError(t, err)
	assert.InDelta(t, 10, geo.OriginY, 1e-9)
}

func TestApplyMaskBadPolygon(t *testing.T) {
	_, err := ApplyMask("layer.tif", "LINESTRING(0 0,1 1)")
	require.Error(t, err)
	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, FailResample, ge.Kind)
}
