package georeferencer

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mradamcox/ohmg/raster"
)

// VRT warp descriptor in the GDAL VRTDataset shape: the source image plus
// the GCP list, with no resampled pixels of its own.

type vrtDataset struct {
	XMLName     xml.Name  `xml:"VRTDataset"`
	RasterXSize int       `xml:"rasterXSize,attr"`
	RasterYSize int       `xml:"rasterYSize,attr"`
	GCPList     vrtGCPs   `xml:"GCPList"`
	Bands       []vrtBand `xml:"VRTRasterBand"`
}

type vrtGCPs struct {
	Projection string   `xml:"Projection,attr"`
	GCPs       []vrtGCP `xml:"GCP"`
}

type vrtGCP struct {
	ID    string  `xml:"Id,attr"`
	Pixel float64 `xml:"Pixel,attr"`
	Line  float64 `xml:"Line,attr"`
	X     float64 `xml:"X,attr"`
	Y     float64 `xml:"Y,attr"`
}

type vrtBand struct {
	DataType    string    `xml:"dataType,attr"`
	Band        int       `xml:"band,attr"`
	ColorInterp string    `xml:"ColorInterp"`
	Source      vrtSource `xml:"SimpleSource"`
}

type vrtSource struct {
	SourceFilename vrtFilename `xml:"SourceFilename"`
	SourceBand     int         `xml:"SourceBand"`
}

type vrtFilename struct {
	RelativeToVRT int    `xml:"relativeToVRT,attr"`
	Value         string `xml:",chardata"`
}

// PreviewPath is the stable VRT location for a source raster.
func (g *Georeferencer) PreviewPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	stem := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	return filepath.Join(g.outputDir, stem+".vrt")
}

func (g *Georeferencer) writeVRT(sourcePath string) (string, error) {
	w, h, err := raster.Size(sourcePath)
	if err != nil {
		return "", failure(FailIO, err)
	}

	ds := vrtDataset{
		RasterXSize: w,
		RasterYSize: h,
		GCPList:     vrtGCPs{Projection: fmt.Sprintf("EPSG:%d", TargetEPSG)},
	}
	for i, cp := range g.points {
		ds.GCPList.GCPs = append(ds.GCPList.GCPs, vrtGCP{
			ID:    fmt.Sprintf("%d", i+1),
			Pixel: cp.Pixel[0],
			Line:  cp.Pixel[1],
			X:     cp.Geo[0],
			Y:     cp.Geo[1],
		})
	}
	for band, interp := range []string{"Red", "Green", "Blue"} {
		ds.Bands = append(ds.Bands, vrtBand{
			DataType:    "Byte",
			Band:        band + 1,
			ColorInterp: interp,
			Source: vrtSource{
				SourceFilename: vrtFilename{RelativeToVRT: 0, Value: sourcePath},
				SourceBand:     band + 1,
			},
		})
	}

	out := g.PreviewPath(sourcePath)
	if err := os.MkdirAll(filepath.Dir(out), os.ModePerm); err != nil {
		return "", failure(FailIO, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".tmp-*.vrt")
	if err != nil {
		return "", failure(FailIO, err)
	}
	tmpPath := tmp.Name()

	enc := xml.NewEncoder(tmp)
	enc.Indent("", "  ")
	if err := enc.Encode(ds); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", failure(FailIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", failure(FailIO, err)
	}
	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		return "", failure(FailIO, err)
	}
	return out, nil
}
