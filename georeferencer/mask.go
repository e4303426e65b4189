package georeferencer

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/mradamcox/ohmg/raster"
)

// MaskedPath is the stable location of a layer's trimmed variant.
func MaskedPath(layerPath string) string {
	ext := filepath.Ext(layerPath)
	return strings.TrimSuffix(layerPath, ext) + "_trim" + ext
}

// ApplyMask writes a trimmed copy of a georeferenced raster, making every
// pixel outside the mask polygon transparent. The mask is a WKT polygon in
// the raster's CRS. Re-running with the same inputs overwrites the same
// output, so the operation is safe to repeat.
func ApplyMask(layerPath string, maskWKT string) (string, error) {
	geom, err := wkt.Unmarshal(maskWKT)
	if err != nil {
		return "", failure(FailResample, fmt.Errorf("parse mask polygon: %w", err))
	}
	var mask orb.Polygon
	switch m := geom.(type) {
	case orb.Polygon:
		mask = m
	case orb.MultiPolygon:
		if len(m) == 0 {
			return "", failure(FailResample, fmt.Errorf("mask multipolygon is empty"))
		}
		mask = m[0]
	default:
		return "", failure(FailResample, fmt.Errorf("mask must be a polygon, got %s", geom.GeoJSONType()))
	}

	geo, err := raster.ReadWorldFile(layerPath)
	if err != nil {
		return "", failure(FailIO, err)
	}
	img, err := raster.Open(layerPath)
	if err != nil {
		return "", failure(FailIO, err)
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for row := 0; row < b.Dy(); row++ {
		geoY := geo.OriginY + (float64(row)+0.5)*geo.PixelH
		for col := 0; col < b.Dx(); col++ {
			geoX := geo.OriginX + (float64(col)+0.5)*geo.PixelW
			if planar.PolygonContains(mask, orb.Point{geoX, geoY}) {
				out.Set(col, row, img.At(b.Min.X+col, b.Min.Y+row))
			} else {
				out.SetNRGBA(col, row, color.NRGBA{})
			}
		}
	}

	path := MaskedPath(layerPath)
	if err := raster.WriteAtomic(path, out); err != nil {
		return "", failure(FailIO, err)
	}
	if err := raster.WriteSidecars(path, geo); err != nil {
		return "", failure(FailIO, err)
	}
	return path, nil
}
