package geocoding

import (
	"fmt"
	"math"
)

// PixelPos is a fractional position in image space. Integer coordinates are
// sample locations.
type PixelPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GeoPos is a geodetic position in degrees.
type GeoPos struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InvalidPixelPos is returned when no pixel position exists for a query.
var InvalidPixelPos = PixelPos{X: math.NaN(), Y: math.NaN()}

// InvalidGeoPos is returned when no geo position exists for a query.
var InvalidGeoPos = GeoPos{Lat: math.NaN(), Lon: math.NaN()}

func (p PixelPos) IsValid() bool { return !math.IsNaN(p.X) && !math.IsNaN(p.Y) }

func (p PixelPos) String() string { return fmt.Sprintf("(X: %f, Y: %f)", p.X, p.Y) }

func (g GeoPos) IsValid() bool { return !math.IsNaN(g.Lat) && !math.IsNaN(g.Lon) }

func (g GeoPos) String() string { return fmt.Sprintf("(Lat: %f, Lon: %f)", g.Lat, g.Lon) }

// Normalize wraps the longitude into [-180, 180].
func (g GeoPos) Normalize() GeoPos {
	return GeoPos{Lat: g.Lat, Lon: normalizeLon(g.Lon)}
}

func normalizeLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return lon
	}
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// lonDelta returns a-b wrapped into [-180, 180).
func lonDelta(a, b float64) float64 {
	d := math.Mod(a-b+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// insideRaster reports whether p lies in [0, w] x [0, h].
func insideRaster(p PixelPos, w, h int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(w) && p.Y <= float64(h)
}

// edgeTolerance absorbs the round-off of solved positions on the raster border.
const edgeTolerance = 1e-6

// clampToRaster snaps p onto [0, w] x [0, h] when it lies within edgeTolerance
// of it and reports whether the result is inside.
func clampToRaster(p PixelPos, w, h int) (PixelPos, bool) {
	if !p.IsValid() {
		return p, false
	}
	fw, fh := float64(w), float64(h)
	if p.X < -edgeTolerance || p.Y < -edgeTolerance || p.X > fw+edgeTolerance || p.Y > fh+edgeTolerance {
		return p, false
	}
	return PixelPos{X: math.Min(math.Max(p.X, 0), fw), Y: math.Min(math.Max(p.Y, 0), fh)}, true
}
