package geocoding

import (
	"fmt"
	"math"
)

const tiePointMaxIter = 20

// TiePointGeoCoding interpolates latitude and longitude tie-point grids.
type TiePointGeoCoding struct {
	lat      *TiePointGrid
	lon      *TiePointGrid // unwrapped across 180
	datum    Datum
	width    int
	height   int
	crossing bool
}

// NewTiePointGeoCoding builds a geocoding for a width x height raster from two
// co-registered grids.
func NewTiePointGeoCoding(lat, lon *TiePointGrid, width, height int, datum Datum) (*TiePointGeoCoding, error) {
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("%w: missing latitude or longitude grid", ErrGridMismatch)
	}
	if lat.Width != lon.Width || lat.Height != lon.Height ||
		lat.OffsetX != lon.OffsetX || lat.OffsetY != lon.OffsetY ||
		lat.SubSamplingX != lon.SubSamplingX || lat.SubSamplingY != lon.SubSamplingY {
		return nil, fmt.Errorf("%w: %s and %s differ in geometry", ErrGridMismatch, lat.Name, lon.Name)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if err := datum.Validate(); err != nil {
		return nil, err
	}
	t := &TiePointGeoCoding{
		lat:    lat,
		lon:    lon.unwrapped(),
		datum:  datum,
		width:  width,
		height: height,
	}
	for _, v := range t.lon.values {
		if v > 180 || v < -180 {
			t.crossing = true
			break
		}
	}
	return t, nil
}

func (t *TiePointGeoCoding) CanGetPixelPos() bool          { return true }
func (t *TiePointGeoCoding) CanGetGeoPos() bool            { return true }
func (t *TiePointGeoCoding) IsCrossingMeridianAt180() bool { return t.crossing }
func (t *TiePointGeoCoding) Datum() Datum                  { return t.datum }

// LatGrid returns the latitude grid.
func (t *TiePointGeoCoding) LatGrid() *TiePointGrid { return t.lat }

// LonGrid returns the longitude grid, unwrapped across the 180 meridian.
func (t *TiePointGeoCoding) LonGrid() *TiePointGrid { return t.lon }

// geoAt interpolates both grids without bounds checks; longitude stays unwrapped.
func (t *TiePointGeoCoding) geoAt(x, y float64) GeoPos {
	return GeoPos{Lat: t.lat.PixelValue(x, y), Lon: t.lon.PixelValue(x, y)}
}

func (t *TiePointGeoCoding) GeoPos(p PixelPos) GeoPos {
	if !p.IsValid() || !insideRaster(p, t.width, t.height) {
		return InvalidGeoPos
	}
	return t.geoAt(p.X, p.Y).Normalize()
}

// PixelPos solves the interpolation by Newton iteration seeded from the grid
// node nearest to g.
func (t *TiePointGeoCoding) PixelPos(g GeoPos) PixelPos {
	if !g.IsValid() {
		return InvalidPixelPos
	}
	seed := t.nearestNode(g)
	p, ok := newtonSolve(g, seed, t.geoAt, tiePointMaxIter)
	if !ok {
		return InvalidPixelPos
	}
	p, ok = clampToRaster(p, t.width, t.height)
	if !ok {
		return InvalidPixelPos
	}
	return p
}

func (t *TiePointGeoCoding) nearestNode(g GeoPos) PixelPos {
	coslat := math.Cos(g.Lat * math.Pi / 180)
	best, bi, bj := math.Inf(1), 0, 0
	for j := 0; j < t.lat.Height; j++ {
		for i := 0; i < t.lat.Width; i++ {
			dlat := t.lat.Value(i, j) - g.Lat
			dlon := lonDelta(t.lon.Value(i, j), g.Lon) * coslat
			if d := dlat*dlat + dlon*dlon; d < best {
				best, bi, bj = d, i, j
			}
		}
	}
	return t.lat.NodePos(bi, bj)
}

// TransferGeoCoding resamples the grids at the destination geometry. Spacing is
// divided by the sub-sampling factor and never drops below one pixel.
func (t *TiePointGeoCoding) TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	w, h := dst.SceneRasterWidth(), dst.SceneRasterHeight()
	if w <= 0 || h <= 0 {
		return false
	}
	sx, sy := subset.Steps()
	subX := math.Max(1, t.lat.SubSamplingX/float64(sx))
	subY := math.Max(1, t.lat.SubSamplingY/float64(sy))
	gw := max(int(math.Ceil(float64(w)/subX))+1, 2)
	gh := max(int(math.Ceil(float64(h)/subY))+1, 2)

	lats := make([]float64, gw*gh)
	lons := make([]float64, gw*gh)
	for j := 0; j < gh; j++ {
		for i := 0; i < gw; i++ {
			sp := subset.SourcePos(PixelPos{X: float64(i) * subX, Y: float64(j) * subY})
			g := t.geoAt(sp.X, sp.Y)
			lats[j*gw+i] = g.Lat
			lons[j*gw+i] = g.Lon
		}
	}
	latGrid, err := NewTiePointGrid(t.lat.Name, gw, gh, 0, 0, subX, subY, lats)
	if err != nil {
		return false
	}
	lonGrid, err := NewTiePointGrid(t.lon.Name, gw, gh, 0, 0, subX, subY, lons)
	if err != nil {
		return false
	}
	gc, err := NewTiePointGeoCoding(latGrid, lonGrid, w, h, t.datum)
	if err != nil {
		return false
	}
	dst.SetGeoCoding(gc)
	return true
}

func (t *TiePointGeoCoding) Dispose() {}
