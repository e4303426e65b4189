package transform

import (
	"fmt"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// polynomial term counts per degree: 1+x+y, +x2+xy+y2, +x3+x2y+xy2+y3.
var termCounts = map[int]int{1: 3, 2: 6, 3: 10}

// Polynomial is a degree 1-3 polynomial transform. The inverse direction is
// fitted independently by swapping the point pairs, which is the standard
// GCP warping practice rather than an algebraic inversion.
type Polynomial struct {
	degree int
	// coefficient rows for the two output components
	cx, cy []float64
	// swapped-direction fit for Inverse; nil when the geo side is degenerate
	inv *Polynomial
	rms float64
}

func basis(p orb.Point, degree int) []float64 {
	x, y := p[0], p[1]
	terms := []float64{1, x, y}
	if degree >= 2 {
		terms = append(terms, x*x, x*y, y*y)
	}
	if degree >= 3 {
		terms = append(terms, x*x*x, x*x*y, x*y*y, y*y*y)
	}
	return terms
}

// solveLeastSquares fits coefficient vectors for both output components at
// once. A rank-deficient design matrix (collinear or duplicated points)
// surfaces as a solver error and is reported as degeneracy.
func solveLeastSquares(points []ControlPoint, degree int) (cx, cy []float64, err error) {
	n := len(points)
	terms := termCounts[degree]

	a := mat.NewDense(n, terms, nil)
	b := mat.NewDense(n, 2, nil)
	for i, cp := range points {
		a.SetRow(i, basis(cp.Pixel, degree))
		b.Set(i, 0, cp.Geo[0])
		b.Set(i, 1, cp.Geo[1])
	}

	var sol mat.Dense
	if err := sol.Solve(a, b); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientOrDegenerate, err)
	}

	cx = make([]float64, terms)
	cy = make([]float64, terms)
	for j := 0; j < terms; j++ {
		cx[j] = sol.At(j, 0)
		cy[j] = sol.At(j, 1)
	}
	return cx, cy, nil
}

func fitPolynomial(points []ControlPoint, degree int) (*Polynomial, error) {
	if distinctPixels(points) < termCounts[degree] {
		return nil, fmt.Errorf("%w: degree %d needs %d distinct points", ErrInsufficientOrDegenerate, degree, termCounts[degree])
	}

	cx, cy, err := solveLeastSquares(points, degree)
	if err != nil {
		return nil, err
	}

	p := &Polynomial{degree: degree, cx: cx, cy: cy}

	// the geo side can be degenerate even when the pixel side is not;
	// in that case the transform is still usable forward-only
	if icx, icy, ierr := solveLeastSquares(swap(points), degree); ierr == nil {
		p.inv = &Polynomial{degree: degree, cx: icx, cy: icy}
	}

	p.rms = rmsResidual(p, points)
	return p, nil
}

func distinctPixels(points []ControlPoint) int {
	seen := make(map[orb.Point]struct{}, len(points))
	for _, cp := range points {
		seen[cp.Pixel] = struct{}{}
	}
	return len(seen)
}

func (p *Polynomial) Forward(pt orb.Point) orb.Point {
	terms := basis(pt, p.degree)
	var x, y float64
	for j, t := range terms {
		x += p.cx[j] * t
		y += p.cy[j] * t
	}
	return orb.Point{x, y}
}

func (p *Polynomial) Inverse(pt orb.Point) (orb.Point, error) {
	if p.inv == nil {
		return orb.Point{}, ErrInverseUnsupported
	}
	return p.inv.Forward(pt), nil
}

func (p *Polynomial) Kind() Kind {
	switch p.degree {
	case 2:
		return Poly2
	case 3:
		return Poly3
	}
	return Poly1
}

func (p *Polynomial) RMS() float64 { return p.rms }
