package splitter

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/mradamcox/ohmg/raster"
)

// Splitter executes the physical split of a source raster.
type Splitter struct {
	SourcePath string
	OutputDir  string
}

func New(sourcePath, outputDir string) *Splitter {
	if outputDir == "" {
		outputDir = filepath.Dir(sourcePath)
	}
	return &Splitter{SourcePath: sourcePath, OutputDir: outputDir}
}

// Bounds reads the source raster header and returns its pixel rectangle.
func (s *Splitter) Bounds() (orb.Bound, error) {
	w, h, err := raster.Size(s.SourcePath)
	if err != nil {
		return orb.Bound{}, err
	}
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(w), float64(h)}}, nil
}

// SplitImage crops the source raster to each division's bounding rectangle,
// one output file per division in the given order. Crops use a half-open
// pixel convention so adjacent divisions share their boundary column or row
// exactly once. Crops run in parallel; outputs are written atomically.
func (s *Splitter) SplitImage(divisions []orb.Ring) ([]string, error) {
	if len(divisions) == 0 {
		return nil, fmt.Errorf("no divisions to split by")
	}

	img, err := raster.Open(s.SourcePath)
	if err != nil {
		return nil, err
	}
	full := img.Bounds()

	ext := filepath.Ext(s.SourcePath)
	stem := strings.TrimSuffix(filepath.Base(s.SourcePath), ext)

	paths := make([]string, len(divisions))
	var g errgroup.Group
	for i := range divisions {
		i := i
		g.Go(func() error {
			rect := divisionRect(divisions[i], full)
			if rect.Empty() {
				return fmt.Errorf("division %d produces an empty crop", i+1)
			}
			out := filepath.Join(s.OutputDir, fmt.Sprintf("%s_%d%s", stem, i+1, ext))
			if err := raster.WriteAtomic(out, raster.Crop(img, rect)); err != nil {
				return fmt.Errorf("division %d: %w", i+1, err)
			}
			paths[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// DivisionOffsets returns each division's crop origin, for callers that
// reassemble or position the sub-images.
func DivisionOffsets(divisions []orb.Ring, full image.Rectangle) []image.Point {
	offsets := make([]image.Point, len(divisions))
	for i, div := range divisions {
		r := divisionRect(div, full)
		offsets[i] = r.Min
	}
	return offsets
}

func divisionRect(div orb.Ring, full image.Rectangle) image.Rectangle {
	b := div.Bound()
	rect := image.Rect(
		int(math.Round(b.Min[0])),
		int(math.Round(b.Min[1])),
		int(math.Round(b.Max[0])),
		int(math.Round(b.Max[1])),
	)
	return rect.Intersect(full)
}
