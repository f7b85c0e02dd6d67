package geocoding

import (
	"fmt"

	"github.com/akhenakh/rastercoding/rational"
)

// GcpMethod selects the polynomial degree of a GCP geocoding.
type GcpMethod int

const (
	Polynomial1 GcpMethod = 1
	Polynomial2 GcpMethod = 2
	Polynomial3 GcpMethod = 3
)

// ParseGcpMethod accepts "POLYNOMIAL1".."POLYNOMIAL3"; empty selects Polynomial1.
func ParseGcpMethod(s string) (GcpMethod, error) {
	switch s {
	case "", "POLYNOMIAL1":
		return Polynomial1, nil
	case "POLYNOMIAL2":
		return Polynomial2, nil
	case "POLYNOMIAL3":
		return Polynomial3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func (m GcpMethod) String() string { return fmt.Sprintf("POLYNOMIAL%d", int(m)) }

// TermCount returns the number of polynomial coefficients of the method.
func (m GcpMethod) TermCount() int { return rational.TermCount(int(m)) }

// GroundControlPoint is a (pixel, geo) correspondence.
type GroundControlPoint struct {
	Pixel PixelPos `json:"pixel"`
	Geo   GeoPos   `json:"geo"`
}

// GcpGeoCoding evaluates polynomials fitted to ground control points. The
// inverse direction is an independent fit, not an inversion of the forward
// polynomials.
type GcpGeoCoding struct {
	method   GcpMethod
	gcps     []GroundControlPoint
	refLon   float64
	lat      *rational.Model // pixel -> lat
	lon      *rational.Model // pixel -> unwrapped lon
	x        *rational.Model // (lat, unwrapped lon) -> x
	y        *rational.Model // (lat, unwrapped lon) -> y
	datum    Datum
	width    int
	height   int
	crossing bool
}

// NewGcpGeoCoding fits the forward and inverse polynomials. Too few or
// collinear points are not rejected; they produce a degenerate model.
func NewGcpGeoCoding(method GcpMethod, gcps []GroundControlPoint, width, height int, datum Datum) (*GcpGeoCoding, error) {
	if method < Polynomial1 || method > Polynomial3 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, int(method))
	}
	if len(gcps) == 0 {
		return nil, ErrNoGCPs
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if err := datum.Validate(); err != nil {
		return nil, err
	}
	for i, p := range gcps {
		if !p.Pixel.IsValid() || !p.Geo.IsValid() {
			return nil, fmt.Errorf("gcp %d is undefined: pixel %s geo %s", i, p.Pixel, p.Geo)
		}
	}

	g := &GcpGeoCoding{
		method: method,
		gcps:   append([]GroundControlPoint(nil), gcps...),
		refLon: gcps[0].Geo.Lon,
		datum:  datum,
		width:  width,
		height: height,
	}
	n := len(gcps)
	xs, ys := make([]float64, n), make([]float64, n)
	lats, lons := make([]float64, n), make([]float64, n)
	for i, p := range gcps {
		xs[i], ys[i] = p.Pixel.X, p.Pixel.Y
		lats[i] = p.Geo.Lat
		lons[i] = g.unwrap(p.Geo.Lon)
		if lons[i] > 180 || lons[i] < -180 {
			g.crossing = true
		}
	}

	deg := int(method)
	var err error
	if g.lat, err = rational.NewModel(deg, 0, xs, ys, lats, 0); err != nil {
		return nil, fmt.Errorf("fitting latitude: %w", err)
	}
	if g.lon, err = rational.NewModel(deg, 0, xs, ys, lons, 0); err != nil {
		return nil, fmt.Errorf("fitting longitude: %w", err)
	}
	if g.x, err = rational.NewModel(deg, 0, lats, lons, xs, 0); err != nil {
		return nil, fmt.Errorf("fitting pixel x: %w", err)
	}
	if g.y, err = rational.NewModel(deg, 0, lats, lons, ys, 0); err != nil {
		return nil, fmt.Errorf("fitting pixel y: %w", err)
	}
	return g, nil
}

func (g *GcpGeoCoding) unwrap(lon float64) float64 { return g.refLon + lonDelta(lon, g.refLon) }

func (g *GcpGeoCoding) CanGetPixelPos() bool          { return true }
func (g *GcpGeoCoding) CanGetGeoPos() bool            { return true }
func (g *GcpGeoCoding) IsCrossingMeridianAt180() bool { return g.crossing }
func (g *GcpGeoCoding) Datum() Datum                  { return g.datum }
func (g *GcpGeoCoding) Method() GcpMethod             { return g.method }

// GCPs returns a copy of the control points.
func (g *GcpGeoCoding) GCPs() []GroundControlPoint {
	return append([]GroundControlPoint(nil), g.gcps...)
}

// ForwardRMSE returns the latitude and longitude fit errors in degrees.
func (g *GcpGeoCoding) ForwardRMSE() (lat, lon float64) { return g.lat.RMSE(), g.lon.RMSE() }

// InverseRMSE returns the pixel x and y fit errors.
func (g *GcpGeoCoding) InverseRMSE() (x, y float64) { return g.x.RMSE(), g.y.RMSE() }

func (g *GcpGeoCoding) GeoPos(p PixelPos) GeoPos {
	if !p.IsValid() || !insideRaster(p, g.width, g.height) {
		return InvalidGeoPos
	}
	return GeoPos{Lat: g.lat.Value(p.X, p.Y), Lon: g.lon.Value(p.X, p.Y)}.Normalize()
}

func (g *GcpGeoCoding) PixelPos(gp GeoPos) PixelPos {
	if !gp.IsValid() {
		return InvalidPixelPos
	}
	lon := g.unwrap(gp.Lon)
	p := PixelPos{X: g.x.Value(gp.Lat, lon), Y: g.y.Value(gp.Lat, lon)}
	p, ok := clampToRaster(p, g.width, g.height)
	if !ok {
		return InvalidPixelPos
	}
	return p
}

// TransferGeoCoding reuses the fitted polynomials for the destination raster.
// The fit is parametric in pixel coordinates, so the subset is not applied;
// callers must adjust GCP pixel coordinates themselves.
func (g *GcpGeoCoding) TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	w, h := dst.SceneRasterWidth(), dst.SceneRasterHeight()
	if w <= 0 || h <= 0 {
		return false
	}
	c := *g
	c.gcps = append([]GroundControlPoint(nil), g.gcps...)
	c.width, c.height = w, h
	dst.SetGeoCoding(&c)
	return true
}

func (g *GcpGeoCoding) Dispose() {}
