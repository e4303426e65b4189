package splitter

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradamcox/ohmg/raster"
)

// testImage writes a w x h png whose pixel values encode their coordinates,
// so reassembly mismatches are detectable per pixel.
func testImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 251), G: uint8(y % 241), B: uint8((x + y) % 239), A: 255})
		}
	}
	path := filepath.Join(dir, "sheet.png")
	require.NoError(t, raster.WriteAtomic(path, img))
	return path
}

func TestSplitImageVerticalCutline(t *testing.T) {
	dir := t.TempDir()
	src := testImage(t, dir, 1000, 800)

	sp := New(src, dir)
	bounds, err := sp.Bounds()
	require.NoError(t, err)
	divisions, err := GenerateDivisions([]orb.LineString{{{500, 0}, {500, 800}}}, bounds)
	require.NoError(t, err)

	paths, err := sp.SplitImage(divisions)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "sheet_1.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "sheet_2.png"), paths[1])

	for _, p := range paths {
		w, h, err := raster.Size(p)
		require.NoError(t, err)
		assert.Equal(t, 500, w)
		assert.Equal(t, 800, h)
	}
}

// Splitting and pasting the pieces back at their offsets reproduces the
// source image exactly: no pixel is lost or duplicated.
func TestSplitImageReassembly(t *testing.T) {
	dir := t.TempDir()
	src := testImage(t, dir, 600, 400)

	sp := New(src, dir)
	bounds, err := sp.Bounds()
	require.NoError(t, err)
	cutlines := []orb.LineString{
		{{200, 0}, {200, 400}},
		{{0, 150}, {600, 150}},
	}
	divisions, err := GenerateDivisions(cutlines, bounds)
	require.NoError(t, err)
	require.Len(t, divisions, 4)

	paths, err := sp.SplitImage(divisions)
	require.NoError(t, err)

	full := image.Rect(0, 0, 600, 400)
	offsets := DivisionOffsets(divisions, full)

	assembled := image.NewNRGBA(full)
	seen := make([]bool, 600*400)
	for i, p := range paths {
		piece, err := raster.Open(p)
		require.NoError(t, err)
		pb := piece.Bounds()
		for y := 0; y < pb.Dy(); y++ {
			for x := 0; x < pb.Dx(); x++ {
				gx, gy := offsets[i].X+x, offsets[i].Y+y
				idx := gy*600 + gx
				assert.Falsef(t, seen[idx], "pixel (%d,%d) written by two pieces", gx, gy)
				seen[idx] = true
				assembled.Set(gx, gy, piece.At(pb.Min.X+x, pb.Min.Y+y))
			}
		}
	}
	for _, covered := range seen {
		require.True(t, covered)
	}

	original, err := raster.Open(src)
	require.NoError(t, err)
	for y := 0; y < 400; y += 7 {
		for x := 0; x < 600; x += 11 {
			or, og, ob, oa := original.At(x, y).RGBA()
			ar, ag, ab, aa := assembled.At(x, y).RGBA()
			require.Equalf(t, [4]uint32{or, og, ob, oa}, [4]uint32{ar, ag, ab, aa}, "pixel (%d,%d)", x, y)
		}
	}
}

func TestSplitImageNoDivisions(t *testing.T) {
	dir := t.TempDir()
	src := testImage(t, dir, 10, 10)
	_, err := New(src, dir).SplitImage(nil)
	assert.Error(t, err)
}
