package transform

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// ThinPlateSpline interpolates exactly through every control point. The
// inverse direction is fitted from the swapped point pairs and is therefore
// approximate; it is absent when the geo side cannot be fitted.
type ThinPlateSpline struct {
	sources []orb.Point
	// per output component: n kernel weights followed by a0, ax, ay
	wx, wy []float64
	inv    *ThinPlateSpline
	rms    float64
}

// tpsKernel is U(r) = r^2 log r^2, with U(0) = 0.
func tpsKernel(dx, dy float64) float64 {
	r2 := dx*dx + dy*dy
	if r2 == 0 {
		return 0
	}
	return r2 * math.Log(r2)
}

func solveTPS(points []ControlPoint) (wx, wy []float64, err error) {
	n := len(points)
	size := n + 3

	l := mat.NewDense(size, size, nil)
	b := mat.NewDense(size, 2, nil)

	for i := 0; i < n; i++ {
		pi := points[i].Pixel
		for j := 0; j < n; j++ {
			pj := points[j].Pixel
			l.Set(i, j, tpsKernel(pi[0]-pj[0], pi[1]-pj[1]))
		}
		l.Set(i, n, 1)
		l.Set(i, n+1, pi[0])
		l.Set(i, n+2, pi[1])
		l.Set(n, i, 1)
		l.Set(n+1, i, pi[0])
		l.Set(n+2, i, pi[1])

		b.Set(i, 0, points[i].Geo[0])
		b.Set(i, 1, points[i].Geo[1])
	}

	var sol mat.Dense
	if err := sol.Solve(l, b); err != nil {
		// collinear or duplicated pixels make the bordered system singular
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientOrDegenerate, err)
	}

	wx = make([]float64, size)
	wy = make([]float64, size)
	for i := 0; i < size; i++ {
		wx[i] = sol.At(i, 0)
		wy[i] = sol.At(i, 1)
	}
	return wx, wy, nil
}

func fitTPS(points []ControlPoint) (*ThinPlateSpline, error) {
	if distinctPixels(points) < 3 {
		return nil, fmt.Errorf("%w: tps needs at least 3 distinct points", ErrInsufficientOrDegenerate)
	}

	wx, wy, err := solveTPS(points)
	if err != nil {
		return nil, err
	}

	sources := make([]orb.Point, len(points))
	for i, cp := range points {
		sources[i] = cp.Pixel
	}
	t := &ThinPlateSpline{sources: sources, wx: wx, wy: wy}

	if iwx, iwy, ierr := solveTPS(swap(points)); ierr == nil {
		isources := make([]orb.Point, len(points))
		for i, cp := range points {
			isources[i] = cp.Geo
		}
		t.inv = &ThinPlateSpline{sources: isources, wx: iwx, wy: iwy}
	}

	t.rms = rmsResidual(t, points)
	return t, nil
}

func (t *ThinPlateSpline) eval(p orb.Point, w []float64) float64 {
	n := len(t.sources)
	v := w[n] + w[n+1]*p[0] + w[n+2]*p[1]
	for i, s := range t.sources {
		v += w[i] * tpsKernel(p[0]-s[0], p[1]-s[1])
	}
	return v
}

func (t *ThinPlateSpline) Forward(p orb.Point) orb.Point {
	return orb.Point{t.eval(p, t.wx), t.eval(p, t.wy)}
}

func (t *ThinPlateSpline) Inverse(p orb.Point) (orb.Point, error) {
	if t.inv == nil {
		return orb.Point{}, ErrInverseUnsupported
	}
	return t.inv.Forward(p), nil
}

func (t *ThinPlateSpline) Kind() Kind { return TPS }

func (t *ThinPlateSpline) RMS() float64 { return t.rms }
