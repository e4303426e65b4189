package transform

import (
	"math"

	"github.com/paulmach/orb"
)

const semimajorAxis = 6378137.0

// LonLatToMercator projects an EPSG:4326 lon/lat point into EPSG:3857.
func LonLatToMercator(p orb.Point) orb.Point {
	x := semimajorAxis * (math.Pi / 180) * p[0]
	y := semimajorAxis * math.Log(math.Tan((math.Pi/4)+((math.Pi/180)*p[1]/2)))
	return orb.Point{x, y}
}

// MercatorToLonLat projects an EPSG:3857 point back to EPSG:4326 lon/lat.
func MercatorToLonLat(p orb.Point) orb.Point {
	lon := (p[0] / semimajorAxis) * (180 / math.Pi)
	lat := (2*math.Atan(math.Exp(p[1]/semimajorAxis)) - math.Pi/2) * (180 / math.Pi)
	return orb.Point{lon, lat}
}
