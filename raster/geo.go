package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Geo locates a raster in a projected CRS: the world coordinate of the
// top-left corner and the pixel size (PixelH is negative for north-up
// rasters).
type Geo struct {
	OriginX float64
	OriginY float64
	PixelW  float64
	PixelH  float64
	EPSG    int
}

// epsg3857WKT is the standard Web Mercator definition written to .prj files.
const epsg3857WKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`

// WorldFilePath derives the sidecar world file name: first and last letter
// of the extension plus "w" (.tif -> .tfw, .png -> .pgw).
func WorldFilePath(rasterPath string) string {
	ext := strings.TrimPrefix(filepath.Ext(rasterPath), ".")
	if len(ext) < 2 {
		return rasterPath + "w"
	}
	wext := string(ext[0]) + string(ext[len(ext)-1]) + "w"
	return strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + "." + wext
}

func prjPath(rasterPath string) string {
	return strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + ".prj"
}

// WriteSidecars writes the world file and projection file next to the raster.
// World files store the center of the top-left pixel, so the corner origin is
// shifted by half a pixel on the way out.
func WriteSidecars(rasterPath string, g Geo) error {
	wf := fmt.Sprintf("%s\n0.0\n0.0\n%s\n%s\n%s\n",
		formatFloat(g.PixelW),
		formatFloat(g.PixelH),
		formatFloat(g.OriginX+0.5*g.PixelW),
		formatFloat(g.OriginY+0.5*g.PixelH))
	if err := os.WriteFile(WorldFilePath(rasterPath), []byte(wf), 0644); err != nil {
		return fmt.Errorf("write world file: %w", err)
	}

	if g.EPSG == 3857 {
		if err := os.WriteFile(prjPath(rasterPath), []byte(epsg3857WKT), 0644); err != nil {
			return fmt.Errorf("write prj file: %w", err)
		}
	}
	return nil
}

// ReadWorldFile parses the sidecar world file for a raster, converting the
// stored pixel-center coordinate back to the corner origin Geo carries.
func ReadWorldFile(rasterPath string) (Geo, error) {
	raw, err := os.ReadFile(WorldFilePath(rasterPath))
	if err != nil {
		return Geo{}, fmt.Errorf("read world file: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 6 {
		return Geo{}, fmt.Errorf("world file %s is malformed", WorldFilePath(rasterPath))
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Geo{}, fmt.Errorf("world file %s is malformed: %w", WorldFilePath(rasterPath), err)
		}
		vals[i] = v
	}
	return Geo{
		PixelW:  vals[0],
		PixelH:  vals[3],
		OriginX: vals[4] - 0.5*vals[0],
		OriginY: vals[5] - 0.5*vals[3],
		EPSG:    3857,
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RemoveSidecars deletes the world and projection files if present.
func RemoveSidecars(rasterPath string) {
	os.Remove(WorldFilePath(rasterPath))
	os.Remove(prjPath(rasterPath))
}
