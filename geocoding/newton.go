package geocoding

import "math"

const (
	newtonStep      = 1e-3
	newtonSingular  = 1e-10
	newtonTolerance = 1e-6
)

// newtonSolve searches the pixel position p with geo(p) == target by local
// linearization, starting at start. It reports false when the Jacobian becomes
// near-singular, the iterate leaves the finite plane, or maxIter is exhausted.
func newtonSolve(target GeoPos, start PixelPos, geo func(x, y float64) GeoPos, maxIter int) (PixelPos, bool) {
	p := start
	for it := 0; it < maxIter; it++ {
		cur := geo(p.X, p.Y)
		if !cur.IsValid() {
			return p, false
		}
		fLat := target.Lat - cur.Lat
		fLon := lonDelta(target.Lon, cur.Lon)

		gx0, gx1 := geo(p.X-newtonStep, p.Y), geo(p.X+newtonStep, p.Y)
		gy0, gy1 := geo(p.X, p.Y-newtonStep), geo(p.X, p.Y+newtonStep)
		a := (gx1.Lat - gx0.Lat) / (2 * newtonStep)
		b := (gy1.Lat - gy0.Lat) / (2 * newtonStep)
		c := lonDelta(gx1.Lon, gx0.Lon) / (2 * newtonStep)
		d := lonDelta(gy1.Lon, gy0.Lon) / (2 * newtonStep)

		det := a*d - b*c
		scale := (math.Abs(a) + math.Abs(b)) * (math.Abs(c) + math.Abs(d))
		if math.IsNaN(det) || math.Abs(det) <= newtonSingular*scale || scale == 0 {
			return p, false
		}
		dx := (d*fLat - b*fLon) / det
		dy := (a*fLon - c*fLat) / det
		p.X += dx
		p.Y += dy
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return p, false
		}
		if math.Abs(dx) < newtonTolerance && math.Abs(dy) < newtonTolerance {
			return p, true
		}
	}
	return p, false
}
