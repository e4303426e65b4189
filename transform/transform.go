// Package transform fits and evaluates 2D coordinate transformations from
// ground control point pairs: polynomial degree 1-3 or thin plate spline.
package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

type Kind string

const (
	Poly  Kind = "poly" // highest polynomial degree the point count supports
	Poly1 Kind = "poly1"
	Poly2 Kind = "poly2"
	Poly3 Kind = "poly3"
	TPS   Kind = "tps"
)

var (
	ErrInsufficientOrDegenerate = errors.New("insufficient or degenerate control points")
	ErrInverseUnsupported       = errors.New("inverse transformation unsupported")
	ErrUnknownKind              = errors.New("unknown transformation kind")
)

// ControlPoint pairs a source pixel location with its geographic location.
// Geo coordinates are expected in the target CRS of the fit.
type ControlPoint struct {
	Pixel orb.Point
	Geo   orb.Point
}

// Transform evaluates a fitted coordinate transformation.
type Transform interface {
	// Forward maps a pixel coordinate into geographic space.
	Forward(p orb.Point) orb.Point
	// Inverse maps a geographic coordinate back to pixel space. For TPS the
	// inverse is a separately fitted approximation.
	Inverse(p orb.Point) (orb.Point, error)
	Kind() Kind
	// RMS is the root mean square forward residual over the control points.
	RMS() float64
}

// MinPoints returns the minimum control point count for a kind.
func MinPoints(k Kind) int {
	switch k {
	case Poly1, TPS, Poly:
		return 3
	case Poly2:
		return 6
	case Poly3:
		return 10
	}
	return 0
}

// Resolve maps the auto "poly" kind onto the highest polynomial degree the
// point count supports, capped at degree 3: 3-5 points gives poly1, 6-9
// gives poly2, 10 or more gives poly3.
func Resolve(k Kind, n int) (Kind, error) {
	switch k {
	case Poly1, Poly2, Poly3, TPS:
		if n < MinPoints(k) {
			return k, fmt.Errorf("%w: kind %s needs at least %d points, got %d", ErrInsufficientOrDegenerate, k, MinPoints(k), n)
		}
		return k, nil
	case Poly:
		switch {
		case n >= 10:
			return Poly3, nil
		case n >= 6:
			return Poly2, nil
		case n >= 3:
			return Poly1, nil
		default:
			return k, fmt.Errorf("%w: kind %s needs at least 3 points, got %d", ErrInsufficientOrDegenerate, k, n)
		}
	}
	return k, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Fit builds a transform of the given kind from the control points. The fit
// is a direct least-squares solve, deterministic for a given input set.
func Fit(points []ControlPoint, kind Kind) (Transform, error) {
	resolved, err := Resolve(kind, len(points))
	if err != nil {
		return nil, err
	}

	switch resolved {
	case Poly1:
		return fitPolynomial(points, 1)
	case Poly2:
		return fitPolynomial(points, 2)
	case Poly3:
		return fitPolynomial(points, 3)
	case TPS:
		return fitTPS(points)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func rmsResidual(t Transform, points []ControlPoint) float64 {
	var sum float64
	for _, cp := range points {
		got := t.Forward(cp.Pixel)
		dx := got[0] - cp.Geo[0]
		dy := got[1] - cp.Geo[1]
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / float64(len(points)))
}

func swap(points []ControlPoint) []ControlPoint {
	out := make([]ControlPoint, len(points))
	for i, cp := range points {
		out[i] = ControlPoint{Pixel: cp.Geo, Geo: cp.Pixel}
	}
	return out
}
