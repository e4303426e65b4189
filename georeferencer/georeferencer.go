// Package georeferencer orchestrates control point loading, transformation
// selection, and warping of a source raster into a georeferenced output,
// either a lightweight VRT preview or a final EPSG:3857 raster.
package georeferencer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mradamcox/ohmg/transform"
)

// TargetEPSG is the fixed output CRS for this pipeline.
const TargetEPSG = 3857

type Format int

const (
	// Preview produces a re-derivable VRT warp descriptor referencing the
	// original pixels, cheap enough for rapid iteration.
	Preview Format = iota
	// Final performs the full resample into EPSG:3857.
	Final
)

type FailKind string

const (
	FailTransformFit FailKind = "transform_fit"
	FailIO           FailKind = "io"
	FailResample     FailKind = "resample"
)

// Error tags a georeferencing failure with the stage that produced it.
type Error struct {
	Kind FailKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("georeference %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func failure(kind FailKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Georeferencer holds one document's control points and transformation
// choice while producing outputs from them.
type Georeferencer struct {
	points    []transform.ControlPoint
	kind      transform.Kind
	outputDir string
}

// New returns a Georeferencer writing outputs under outputDir.
func New(outputDir string) *Georeferencer {
	return &Georeferencer{kind: transform.Poly, outputDir: outputDir}
}

// LoadControlPoints validates the point set against the current
// transformation kind and keeps it for later output generation.
func (g *Georeferencer) LoadControlPoints(points []transform.ControlPoint) error {
	if _, err := transform.Fit(points, g.kind); err != nil {
		return failure(FailTransformFit, err)
	}
	g.points = points
	return nil
}

// SetTransformation selects the transformation kind for subsequent outputs.
// When points are already loaded the new kind is validated against them.
func (g *Georeferencer) SetTransformation(kind transform.Kind) error {
	if _, err := transform.Resolve(kind, len(g.points)); err != nil && len(g.points) > 0 {
		return failure(FailTransformFit, err)
	}
	g.kind = kind
	return nil
}

// Points returns the loaded control points.
func (g *Georeferencer) Points() []transform.ControlPoint { return g.points }

// Kind returns the current transformation kind.
func (g *Georeferencer) Kind() transform.Kind { return g.kind }

// LoadControlPointsFromFile reads a QGIS georeferencer points file:
// a header line, then mapX,mapY,pixelX,pixelY[,enable] rows. QGIS stores
// pixel rows as negative values; they are flipped here. Map coordinates are
// taken as already projected into the target CRS.
func (g *Georeferencer) LoadControlPointsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return failure(FailIO, err)
	}
	defer f.Close()

	var points []transform.ControlPoint
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return failure(FailIO, fmt.Errorf("points file row %q is malformed", line))
		}
		vals := make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return failure(FailIO, fmt.Errorf("points file row %q: %w", line, err))
			}
			vals[i] = v
		}
		if len(fields) >= 5 && strings.TrimSpace(fields[4]) == "0" {
			continue
		}
		points = append(points, transform.ControlPoint{
			Pixel: orb.Point{vals[2], -vals[3]},
			Geo:   orb.Point{vals[0], vals[1]},
		})
	}
	if err := scanner.Err(); err != nil {
		return failure(FailIO, err)
	}
	return g.LoadControlPoints(points)
}

// Georeference produces the requested output for the source raster and
// returns its path. Output paths derive deterministically from the source
// name, so re-running with updated control points overwrites the prior
// output. Writes are atomic; a failure never leaves a partial file.
func (g *Georeferencer) Georeference(sourcePath string, format Format, overviews bool) (string, error) {
	if len(g.points) == 0 {
		return "", failure(FailTransformFit, fmt.Errorf("no control points loaded: %w", transform.ErrInsufficientOrDegenerate))
	}
	switch format {
	case Preview:
		return g.writeVRT(sourcePath)
	case Final:
		return g.warp(sourcePath, overviews)
	}
	return "", failure(FailResample, fmt.Errorf("unknown output format %d", format))
}
