// Package splitter partitions a scanned sheet into sub-images along
// user-drawn cutlines. Divisions are pixel-space polygons whose union is
// exactly the image rectangle with no overlaps.
package splitter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

var (
	ErrDegenerateLine  = errors.New("cutline has fewer than 2 distinct points")
	ErrLineOutOfBounds = errors.New("cutline endpoint lies outside image bounds")
)

const eps = 1e-9

// GenerateDivisions partitions the image rectangle by each cutline in order.
// Every cutline is extended along its end segments to the rectangle border
// and then acts as a dividing chord through each polygon it crosses. Zero
// cutlines yields one division equal to the full bounds.
func GenerateDivisions(cutlines []orb.LineString, bounds orb.Bound) ([]orb.Ring, error) {
	for i, line := range cutlines {
		if distinctVertices(line) < 2 {
			return nil, fmt.Errorf("cutline %d: %w", i, ErrDegenerateLine)
		}
		for _, p := range []orb.Point{line[0], line[len(line)-1]} {
			if !bounds.Contains(p) {
				return nil, fmt.Errorf("cutline %d endpoint (%v): %w", i, p, ErrLineOutOfBounds)
			}
		}
	}

	divisions := []orb.Ring{bounds.ToRing()}
	for _, line := range cutlines {
		extended := extendToBounds(line, bounds)
		var next []orb.Ring
		for _, div := range divisions {
			next = append(next, splitRing(div, extended)...)
		}
		divisions = next
	}

	// deterministic reading order: top-to-bottom, then left-to-right
	sort.SliceStable(divisions, func(i, j int) bool {
		bi, bj := divisions[i].Bound(), divisions[j].Bound()
		if bi.Min[1] != bj.Min[1] {
			return bi.Min[1] < bj.Min[1]
		}
		return bi.Min[0] < bj.Min[0]
	})
	return divisions, nil
}

func distinctVertices(line orb.LineString) int {
	n := 0
	for i, p := range line {
		dup := false
		for _, q := range line[:i] {
			if math.Abs(p[0]-q[0]) < eps && math.Abs(p[1]-q[1]) < eps {
				dup = true
				break
			}
		}
		if !dup {
			n++
		}
	}
	return n
}

// extendToBounds pushes both cutline ends outward along their end segments
// far enough to guarantee the chord fully traverses the rectangle.
func extendToBounds(line orb.LineString, bounds orb.Bound) orb.LineString {
	reach := math.Hypot(bounds.Max[0]-bounds.Min[0], bounds.Max[1]-bounds.Min[1]) * 2

	out := make(orb.LineString, len(line))
	copy(out, line)

	first, second := out[0], out[1]
	out[0] = project(first, direction(second, first), reach)

	last, prev := out[len(out)-1], out[len(out)-2]
	out[len(out)-1] = project(last, direction(prev, last), reach)

	return out
}

func direction(from, to orb.Point) orb.Point {
	dx, dy := to[0]-from[0], to[1]-from[1]
	l := math.Hypot(dx, dy)
	if l < eps {
		return orb.Point{0, 0}
	}
	return orb.Point{dx / l, dy / l}
}

func project(p, dir orb.Point, dist float64) orb.Point {
	return orb.Point{p[0] + dir[0]*dist, p[1] + dir[1]*dist}
}

// crossing is an intersection between the cutline and a ring boundary,
// positioned along both (t on the line, s on the ring edges).
type crossing struct {
	pt   orb.Point
	t, s float64
}

// splitRing divides a polygon by a polyline, possibly into more than two
// pieces when the polyline crosses it repeatedly.
func splitRing(ring orb.Ring, line orb.LineString) []orb.Ring {
	queue := []orb.Ring{ring}
	var out []orb.Ring

	for guard := 0; len(queue) > 0 && guard < 10000; guard++ {
		r := queue[0]
		queue = queue[1:]

		a, b, ok := firstCrossingPair(r, line)
		if !ok {
			out = append(out, r)
			continue
		}
		r1, r2 := cutRing(r, line, a, b)
		if ringArea(r1) < eps || ringArea(r2) < eps {
			// cut ran along the boundary; nothing meaningful to divide
			out = append(out, r)
			continue
		}
		queue = append(queue, r1, r2)
	}
	// never drop area, even if the guard trips on pathological input
	out = append(out, queue...)
	return out
}

// firstCrossingPair finds the first adjacent pair of line/ring crossings
// whose connecting span runs through the polygon interior.
func firstCrossingPair(ring orb.Ring, line orb.LineString) (crossing, crossing, bool) {
	crossings := ringCrossings(ring, line)
	if len(crossings) < 2 {
		return crossing{}, crossing{}, false
	}

	for i := 0; i+1 < len(crossings); i++ {
		a, b := crossings[i], crossings[i+1]
		if math.Hypot(a.pt[0]-b.pt[0], a.pt[1]-b.pt[1]) < eps {
			continue
		}
		mid := midpointAlong(line, a, b)
		if pointInRing(ring, mid) && distanceToRing(ring, mid) > eps {
			return a, b, true
		}
	}
	return crossing{}, crossing{}, false
}

func ringCrossings(ring orb.Ring, line orb.LineString) []crossing {
	var crossings []crossing
	for li := 0; li+1 < len(line); li++ {
		for ri := 0; ri+1 < len(ring); ri++ {
			pt, tp, tq, ok := segmentIntersection(line[li], line[li+1], ring[ri], ring[ri+1])
			if !ok {
				continue
			}
			c := crossing{pt: pt, t: float64(li) + tp, s: float64(ri) + tq}
			dup := false
			for _, prev := range crossings {
				if math.Hypot(prev.pt[0]-c.pt[0], prev.pt[1]-c.pt[1]) < eps {
					dup = true
					break
				}
			}
			if !dup {
				crossings = append(crossings, c)
			}
		}
	}
	sort.Slice(crossings, func(i, j int) bool { return crossings[i].t < crossings[j].t })
	return crossings
}

// midpointAlong returns the point halfway between two crossings measured
// along the polyline, honoring interior vertices between them.
func midpointAlong(line orb.LineString, a, b crossing) orb.Point {
	path := append(orb.LineString{a.pt}, interiorVertices(line, a.t, b.t)...)
	path = append(path, b.pt)

	var total float64
	for i := 0; i+1 < len(path); i++ {
		total += math.Hypot(path[i+1][0]-path[i][0], path[i+1][1]-path[i][1])
	}
	want := total / 2
	for i := 0; i+1 < len(path); i++ {
		d := math.Hypot(path[i+1][0]-path[i][0], path[i+1][1]-path[i][1])
		if want <= d {
			f := 0.5
			if d > eps {
				f = want / d
			}
			return orb.Point{path[i][0] + (path[i+1][0]-path[i][0])*f, path[i][1] + (path[i+1][1]-path[i][1])*f}
		}
		want -= d
	}
	return path[len(path)-1]
}

func interiorVertices(line orb.LineString, ta, tb float64) []orb.Point {
	var pts []orb.Point
	for j := 0; j < len(line); j++ {
		t := float64(j)
		if t > ta+eps && t < tb-eps {
			pts = append(pts, line[j])
		}
	}
	return pts
}

// cutRing splits ring into the two polygons on either side of the line span
// between crossings a and b (a.t < b.t).
func cutRing(ring orb.Ring, line orb.LineString, a, b crossing) (orb.Ring, orb.Ring) {
	span := interiorVertices(line, a.t, b.t)

	r1 := orb.Ring{a.pt}
	r1 = append(r1, verticesBetween(ring, a.s, b.s)...)
	r1 = append(r1, b.pt)
	for j := len(span) - 1; j >= 0; j-- {
		r1 = append(r1, span[j])
	}
	r1 = append(r1, a.pt)

	r2 := orb.Ring{b.pt}
	r2 = append(r2, verticesBetween(ring, b.s, a.s)...)
	r2 = append(r2, a.pt)
	r2 = append(r2, span...)
	r2 = append(r2, b.pt)

	return r1, r2
}

// verticesBetween collects ring vertices strictly between positions sa and
// sb, walking the closed ring forward (cyclically).
func verticesBetween(ring orb.Ring, sa, sb float64) []orb.Point {
	m := len(ring) - 1 // edge count
	span := sb - sa
	if span <= 0 {
		span += float64(m)
	}

	var pts []orb.Point
	start := int(math.Floor(sa)) + 1
	for k := 0; k < m; k++ {
		idx := (start + k) % m
		d := float64(idx) - sa
		for d <= 0 {
			d += float64(m)
		}
		if d >= span {
			break
		}
		pts = append(pts, ring[idx])
	}
	return pts
}

func segmentIntersection(p1, p2, q1, q2 orb.Point) (orb.Point, float64, float64, bool) {
	rx, ry := p2[0]-p1[0], p2[1]-p1[1]
	sx, sy := q2[0]-q1[0], q2[1]-q1[1]

	den := rx*sy - ry*sx
	if math.Abs(den) < 1e-12 {
		return orb.Point{}, 0, 0, false
	}

	qpx, qpy := q1[0]-p1[0], q1[1]-p1[1]
	tp := (qpx*sy - qpy*sx) / den
	tq := (qpx*ry - qpy*rx) / den
	if tp < -eps || tp > 1+eps || tq < -eps || tq > 1+eps {
		return orb.Point{}, 0, 0, false
	}
	return orb.Point{p1[0] + tp*rx, p1[1] + tp*ry}, clamp01(tp), clamp01(tq), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ringArea is the unsigned shoelace area of a closed ring.
func ringArea(ring orb.Ring) float64 {
	var area float64
	for i := 0; i+1 < len(ring); i++ {
		area += ring[i][0] * ring[i+1][1]
		area -= ring[i+1][0] * ring[i][1]
	}
	return math.Abs(area) / 2
}

// pointInRing is a ray-casting containment test; boundary points are not
// treated specially, callers pair this with distanceToRing.
func pointInRing(ring orb.Ring, p orb.Point) bool {
	inside := false
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := a[0] + (p[1]-a[1])/(b[1]-a[1])*(b[0]-a[0])
			if p[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

func distanceToRing(ring orb.Ring, p orb.Point) float64 {
	min := math.Inf(1)
	for i := 0; i+1 < len(ring); i++ {
		d := pointSegmentDistance(p, ring[i], ring[i+1])
		if d < min {
			min = d
		}
	}
	return min
}

func pointSegmentDistance(p, a, b orb.Point) float64 {
	abx, aby := b[0]-a[0], b[1]-a[1]
	apx, apy := p[0]-a[0], p[1]-a[1]
	l2 := abx*abx + aby*aby
	if l2 < eps*eps {
		return math.Hypot(apx, apy)
	}
	t := (apx*abx + apy*aby) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p[0]-(a[0]+t*abx), p[1]-(a[1]+t*aby))
}
