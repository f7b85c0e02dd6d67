package geocoding

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/akhenakh/rastercoding/rational"
)

// PixelOptions tunes the coarse approximation and refinement of a
// PixelGeoCoding. Zero fields take the defaults.
type PixelOptions struct {
	// ApproxStep is the sub-sampling step of the samples used for the coarse
	// approximation. Zero derives it from the raster size.
	ApproxStep int
	// DegreeP and DegreeQ are the rational function degrees of the coarse
	// approximation.
	DegreeP int
	DegreeQ int
	// Iterations is the number of reweighting passes of the rational fit.
	Iterations int
	// RefineIterations bounds the Newton refinement against the rasters.
	RefineIterations int
	// Eager builds the approximation at construction time.
	Eager bool
}

const (
	defaultDegreeP          = 3
	defaultRefineIterations = 10
	approxTargetSamples     = 32
)

func (o PixelOptions) withDefaults(w, h int) PixelOptions {
	if o.ApproxStep <= 0 {
		o.ApproxStep = max(1, max(w, h)/approxTargetSamples)
	}
	if o.DegreeP <= 0 {
		o.DegreeP = defaultDegreeP
	}
	if o.DegreeQ < 0 {
		o.DegreeQ = 0
	}
	if o.Iterations < 0 {
		o.Iterations = 0
	}
	if o.RefineIterations <= 0 {
		o.RefineIterations = defaultRefineIterations
	}
	return o
}

// PixelGeoCoding is backed by one latitude and one longitude sample per pixel.
//
// PixelPos seeds from a coarse rational approximation of the inverse mapping,
// built once on first use, and refines the seed against the rasters.
type PixelGeoCoding struct {
	lat      []float64
	lon      []float64 // unwrapped across 180
	width    int
	height   int
	datum    Datum
	opts     PixelOptions
	crossing bool

	once   sync.Once
	approx *pixelApprox
}

// pixelApprox is the coarse inverse mapping (lat, lon) -> (x, y).
type pixelApprox struct {
	refLon float64
	x, y   *rational.Model
}

// NewPixelGeoCoding copies the rasters; both must hold width*height samples.
// NaN samples mark pixels without a geo position. Single row or column rasters
// interpolate along their one axis only.
func NewPixelGeoCoding(lat, lon []float64, width, height int, datum Datum, opts PixelOptions) (*PixelGeoCoding, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: invalid raster size %dx%d", ErrRasterSize, width, height)
	}
	if len(lat) != width*height || len(lon) != width*height {
		return nil, fmt.Errorf("%w: lat=%d lon=%d for %dx%d", ErrRasterSize, len(lat), len(lon), width, height)
	}
	if err := datum.Validate(); err != nil {
		return nil, err
	}
	p := &PixelGeoCoding{
		lat:    append([]float64(nil), lat...),
		lon:    unwrapRaster(lon, width, height),
		width:  width,
		height: height,
		datum:  datum,
		opts:   opts.withDefaults(width, height),
	}
	for _, v := range p.lon {
		if v > 180 || v < -180 {
			p.crossing = true
			break
		}
	}
	if p.opts.Eager {
		p.approximation()
	}
	return p, nil
}

// unwrapRaster removes 360 degree jumps between neighbouring valid samples.
func unwrapRaster(lon []float64, w, h int) []float64 {
	u := append([]float64(nil), lon...)
	ref := math.NaN()
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			k := j*w + i
			if math.IsNaN(u[k]) {
				continue
			}
			prev := ref
			if i > 0 && !math.IsNaN(u[k-1]) {
				prev = u[k-1]
			} else if j > 0 && !math.IsNaN(u[k-w]) {
				prev = u[k-w]
			}
			if !math.IsNaN(prev) {
				u[k] = prev + lonDelta(u[k], prev)
			}
			if math.IsNaN(ref) {
				ref = u[k]
			}
		}
	}
	return u
}

func (p *PixelGeoCoding) CanGetPixelPos() bool          { return true }
func (p *PixelGeoCoding) CanGetGeoPos() bool            { return true }
func (p *PixelGeoCoding) IsCrossingMeridianAt180() bool { return p.crossing }
func (p *PixelGeoCoding) Datum() Datum                  { return p.datum }
func (p *PixelGeoCoding) Options() PixelOptions         { return p.opts }

// geoAt bilinearly interpolates the rasters, extrapolating from the border
// cells; longitude stays unwrapped.
func (p *PixelGeoCoding) geoAt(x, y float64) GeoPos {
	if p.lat == nil || math.IsNaN(x) || math.IsNaN(y) {
		return InvalidGeoPos
	}
	i, di, wi := cell(x, p.width)
	j, dj, wj := cell(y, p.height)
	k := j*p.width + i
	dj *= p.width
	return GeoPos{
		Lat: bilinear(p.lat[k], p.lat[k+di], p.lat[k+dj], p.lat[k+di+dj], wi, wj),
		Lon: bilinear(p.lon[k], p.lon[k+di], p.lon[k+dj], p.lon[k+di+dj], wi, wj),
	}
}

// cell returns the lower sample index, the step to the upper sample and the
// interpolation weight of v along an axis of n samples. A single sample axis
// has step and weight zero.
func cell(v float64, n int) (int, int, float64) {
	if n == 1 {
		return 0, 0, 0
	}
	i := clampInt(int(math.Floor(v)), 0, n-2)
	return i, 1, v - float64(i)
}

func (p *PixelGeoCoding) GeoPos(pp PixelPos) GeoPos {
	if !pp.IsValid() || !insideRaster(pp, p.width, p.height) {
		return InvalidGeoPos
	}
	return p.geoAt(pp.X, pp.Y).Normalize()
}

// PixelPos returns the refined position when the refinement converges and the
// coarse seed otherwise. It is NaN only when there is no usable seed or the
// result lies outside the raster.
func (p *PixelGeoCoding) PixelPos(g GeoPos) PixelPos {
	if !g.IsValid() {
		return InvalidPixelPos
	}
	a := p.approximation()
	if a == nil {
		return InvalidPixelPos
	}
	lon := a.refLon + lonDelta(g.Lon, a.refLon)
	seed := PixelPos{X: a.x.Value(g.Lat, lon), Y: a.y.Value(g.Lat, lon)}
	if math.IsNaN(seed.X) || math.IsNaN(seed.Y) || math.IsInf(seed.X, 0) || math.IsInf(seed.Y, 0) {
		return InvalidPixelPos
	}
	refined, ok := newtonSolve(g, seed, p.geoAt, p.opts.RefineIterations)
	if ok {
		if refined, ok = clampToRaster(refined, p.width, p.height); !ok {
			return InvalidPixelPos
		}
		return refined
	}
	if seed, ok = clampToRaster(seed, p.width, p.height); !ok {
		return InvalidPixelPos
	}
	slog.Debug("pixel geocoding refinement did not converge, using coarse position",
		"geo", g.String(), "seed", seed.String())
	return seed
}

// approximation builds the coarse inverse model at most once.
func (p *PixelGeoCoding) approximation() *pixelApprox {
	p.once.Do(func() {
		p.approx = p.buildApproximation()
	})
	return p.approx
}

func (p *PixelGeoCoding) buildApproximation() *pixelApprox {
	if p.lat == nil {
		return nil
	}
	step := p.opts.ApproxStep
	var xs, ys, lats, lons []float64
	add := func(i, j int) {
		k := j*p.width + i
		if math.IsNaN(p.lat[k]) || math.IsNaN(p.lon[k]) {
			return
		}
		xs = append(xs, float64(i))
		ys = append(ys, float64(j))
		lats = append(lats, p.lat[k])
		lons = append(lons, p.lon[k])
	}
	for j := 0; j < p.height; j += step {
		for i := 0; i < p.width; i += step {
			add(i, j)
		}
		if (p.width-1)%step != 0 {
			add(p.width-1, j)
		}
	}
	if (p.height-1)%step != 0 {
		for i := 0; i < p.width; i += step {
			add(i, p.height-1)
		}
		if (p.width-1)%step != 0 {
			add(p.width-1, p.height-1)
		}
	}

	degP, degQ := p.opts.DegreeP, p.opts.DegreeQ
	for degP > 0 && len(xs) < rational.TermCount(degP)+rational.TermCount(degQ)-1 {
		if degQ > 0 {
			degQ--
		} else {
			degP--
		}
	}
	if len(xs) < rational.TermCount(degP)+rational.TermCount(degQ)-1 {
		slog.Warn("too few valid samples for pixel geocoding approximation", "samples", len(xs))
		return nil
	}
	a := &pixelApprox{refLon: lons[0]}
	var err error
	if a.x, err = rational.NewModel(degP, degQ, lats, lons, xs, p.opts.Iterations); err != nil {
		slog.Warn("pixel geocoding approximation failed", "error", err)
		return nil
	}
	if a.y, err = rational.NewModel(degP, degQ, lats, lons, ys, p.opts.Iterations); err != nil {
		slog.Warn("pixel geocoding approximation failed", "error", err)
		return nil
	}
	slog.Debug("built pixel geocoding approximation",
		"samples", len(xs), "p", degP, "q", degQ, "rmseX", a.x.RMSE(), "rmseY", a.y.RMSE())
	return a
}

// TransferGeoCoding resamples the rasters at (x0 + i*sx, y0 + j*sy) for every
// destination pixel and builds a new pixel geocoding.
func (p *PixelGeoCoding) TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	if p.lat == nil {
		return false
	}
	w, h := dst.SceneRasterWidth(), dst.SceneRasterHeight()
	if w < 1 || h < 1 {
		return false
	}
	lats := make([]float64, w*h)
	lons := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			sp := subset.SourcePos(PixelPos{X: float64(i), Y: float64(j)})
			g := InvalidGeoPos
			if insideRaster(sp, p.width, p.height) {
				g = p.geoAt(sp.X, sp.Y)
			}
			lats[j*w+i] = g.Lat
			lons[j*w+i] = g.Lon
		}
	}
	opts := p.opts
	opts.ApproxStep = 0
	gc, err := NewPixelGeoCoding(lats, lons, w, h, p.datum, opts)
	if err != nil {
		return false
	}
	dst.SetGeoCoding(gc)
	return true
}

// Dispose drops the rasters and the approximation; later queries return NaN.
func (p *PixelGeoCoding) Dispose() {
	p.once.Do(func() {})
	p.lat, p.lon = nil, nil
	p.approx = nil
}
