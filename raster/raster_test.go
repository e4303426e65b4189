package raster

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestWriteAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{".png", ".tif"} {
		path := filepath.Join(dir, "out"+ext)
		require.NoError(t, WriteAtomic(path, gradient(32, 16)))

		w, h, err := Size(path)
		require.NoError(t, err)
		assert.Equal(t, 32, w)
		assert.Equal(t, 16, h)

		img, err := Open(path)
		require.NoError(t, err)
		r, g, _, _ := img.At(10, 5).RGBA()
		assert.Equal(t, uint32(10*257), r)
		assert.Equal(t, uint32(5*257), g)
	}
}

func TestWriteAtomicUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bmp")
	err := WriteAtomic(path, gradient(4, 4))
	require.Error(t, err)

	// a failed encode must not leave a partial output or temp debris
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCrop(t *testing.T) {
	img := gradient(40, 30)
	out := Crop(img, image.Rect(10, 5, 30, 25))
	b := out.Bounds()
	assert.Equal(t, 20, b.Dx())
	assert.Equal(t, 20, b.Dy())

	r, g, _, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(10*257), r)
	assert.Equal(t, uint32(5*257), g)
}

func TestDownsample(t *testing.T) {
	out := Downsample(gradient(64, 48), 4)
	b := out.Bounds()
	assert.Equal(t, 16, b.Dx())
	assert.Equal(t, 12, b.Dy())

	tiny := Downsample(gradient(3, 3), 8)
	assert.Equal(t, 1, tiny.Bounds().Dx())
	assert.Equal(t, 1, tiny.Bounds().Dy())
}

func TestWorldFilePath(t *testing.T) {
	assert.Equal(t, "/maps/a_3857.tfw", WorldFilePath("/maps/a_3857.tif"))
	assert.Equal(t, "/maps/a.pgw", WorldFilePath("/maps/a.png"))
	assert.Equal(t, "/maps/a.jgw", WorldFilePath("/maps/a.jpg"))
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer.tif")
	g := Geo{OriginX: -8238310.25, OriginY: 4970071.5, PixelW: 1.25, PixelH: -1.25, EPSG: 3857}
	require.NoError(t, WriteSidecars(path, g))

	got, err := ReadWorldFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.OriginX, got.OriginX)
	assert.Equal(t, g.OriginY, got.OriginY)
	assert.Equal(t, g.PixelW, got.PixelW)
	assert.Equal(t, g.PixelH, got.PixelH)

	// the file itself holds the center of the top-left pixel, half a pixel
	// in from the corner origin
	raw, err := os.ReadFile(filepath.Join(dir, "layer.tfw"))
	require.NoError(t, err)
	lines := strings.Fields(string(raw))
	require.Len(t, lines, 6)
	assert.Equal(t, "1.25", lines[0])
	assert.Equal(t, "-1.25", lines[3])
	assert.Equal(t, "-8238309.625", lines[4])
	assert.Equal(t, "4970070.875", lines[5])

	prj, err := os.ReadFile(filepath.Join(dir, "layer.prj"))
	require.NoError(t, err)
	assert.Contains(t, string(prj), `AUTHORITY["EPSG","3857"]`)

	RemoveSidecars(path)
	_, err = ReadWorldFile(path)
	assert.Error(t, err)
}
