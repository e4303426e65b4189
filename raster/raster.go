// Package raster is a thin decode/encode primitive over the Go image codecs,
// plus the georeferencing sidecar files (world file, .prj) that locate an
// encoded raster in a projected CRS.
package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Open decodes a raster from disk.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}
	return img, nil
}

// Size reads only the image header and returns pixel dimensions.
func Size(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode raster header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// WriteAtomic encodes img to path, choosing the codec from the extension.
// The file is written to a temp sibling and renamed into place so a failed
// encode never leaves a partial output behind.
func WriteAtomic(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()

	if err := encode(tmp, img, filepath.Ext(path)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}

func encode(f *os.File, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
		return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".png":
		return png.Encode(f, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	}
	return fmt.Errorf("unsupported raster extension %q", ext)
}

// Downsample scales img down by an integer factor, for overview pyramids.
func Downsample(img image.Image, factor int) image.Image {
	b := img.Bounds()
	w := b.Dx() / factor
	h := b.Dy() / factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// Crop copies the half-open pixel rectangle r out of img into a new image.
func Crop(img image.Image, r image.Rectangle) image.Image {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
