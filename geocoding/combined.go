package geocoding

import (
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
)

// CodingWrapper places a geocoding over a rectangle of the combined raster. The
// wrapped geocoding works in local pixel coordinates relative to Region.Min.
type CodingWrapper struct {
	GeoCoding GeoCoding
	Region    image.Rectangle
}

type wrapperState struct {
	CodingWrapper
	// bound is the geo extent sampled at construction; empty when the
	// wrapped geocoding crosses 180 and bounds are not usable.
	bound    orb.Bound
	hasBound bool
}

// CombinedGeoCoding dispatches to geocodings that exactly tile the raster.
// Wrappers are consulted in registration order and the first match wins.
type CombinedGeoCoding struct {
	wrappers []wrapperState
	width    int
	height   int
	datum    Datum
	crossing bool
}

// NewCombinedGeoCoding fails unless the wrapper regions cover the raster with
// no gaps or overlaps and all geocodings share a datum.
func NewCombinedGeoCoding(wrappers []CodingWrapper, width, height int) (*CombinedGeoCoding, error) {
	if len(wrappers) == 0 {
		return nil, fmt.Errorf("%w: no wrappers", ErrTiling)
	}
	if err := validateTiling(wrappers, width, height); err != nil {
		return nil, err
	}
	c := &CombinedGeoCoding{
		width:  width,
		height: height,
		datum:  wrappers[0].GeoCoding.Datum(),
	}
	for i, w := range wrappers {
		if !w.GeoCoding.Datum().Equal(c.datum) {
			return nil, fmt.Errorf("%w: wrapper %d uses %s, wrapper 0 uses %s", ErrDatumMismatch, i, w.GeoCoding.Datum(), c.datum)
		}
		st := wrapperState{CodingWrapper: w}
		if w.GeoCoding.IsCrossingMeridianAt180() {
			c.crossing = true
		} else if w.GeoCoding.CanGetGeoPos() {
			st.bound, st.hasBound = geoBound(w.GeoCoding, w.Region.Dx(), w.Region.Dy())
		}
		c.wrappers = append(c.wrappers, st)
	}
	return c, nil
}

func validateTiling(wrappers []CodingWrapper, width, height int) error {
	bounds := image.Rect(0, 0, width, height)
	area := 0
	for i, w := range wrappers {
		if w.GeoCoding == nil {
			return fmt.Errorf("%w: wrapper %d has no geocoding", ErrTiling, i)
		}
		if w.Region.Empty() || !w.Region.In(bounds) {
			return fmt.Errorf("%w: region %v of wrapper %d not inside %v", ErrTiling, w.Region, i, bounds)
		}
		for j := 0; j < i; j++ {
			if w.Region.Overlaps(wrappers[j].Region) {
				return fmt.Errorf("%w: regions %v and %v overlap", ErrTiling, wrappers[j].Region, w.Region)
			}
		}
		area += w.Region.Dx() * w.Region.Dy()
	}
	if area != width*height {
		return fmt.Errorf("%w: regions cover %d of %d pixels", ErrTiling, area, width*height)
	}
	return nil
}

// geoBound samples a grid over a w x h local raster and pads the resulting
// extent by the largest sampled step.
func geoBound(gc GeoCoding, w, h int) (orb.Bound, bool) {
	const n = 8
	var b orb.Bound
	found := false
	pad := 0.0
	var prev GeoPos
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			g := gc.GeoPos(PixelPos{X: float64(w) * float64(i) / n, Y: float64(h) * float64(j) / n})
			if !g.IsValid() {
				continue
			}
			pt := orb.Point{g.Lon, g.Lat}
			if !found {
				b = orb.Bound{Min: pt, Max: pt}
				found = true
			} else {
				b = b.Extend(pt)
				if i > 0 && prev.IsValid() {
					pad = math.Max(pad, math.Max(math.Abs(g.Lat-prev.Lat), math.Abs(lonDelta(g.Lon, prev.Lon))))
				}
			}
			prev = g
		}
	}
	if !found {
		return b, false
	}
	return b.Pad(pad), true
}

func (c *CombinedGeoCoding) CanGetPixelPos() bool {
	for _, w := range c.wrappers {
		if !w.GeoCoding.CanGetPixelPos() {
			return false
		}
	}
	return true
}

func (c *CombinedGeoCoding) CanGetGeoPos() bool {
	for _, w := range c.wrappers {
		if !w.GeoCoding.CanGetGeoPos() {
			return false
		}
	}
	return true
}

func (c *CombinedGeoCoding) IsCrossingMeridianAt180() bool { return c.crossing }
func (c *CombinedGeoCoding) Datum() Datum                  { return c.datum }

// Wrappers returns the wrappers in registration order.
func (c *CombinedGeoCoding) Wrappers() []CodingWrapper {
	out := make([]CodingWrapper, len(c.wrappers))
	for i, w := range c.wrappers {
		out[i] = w.CodingWrapper
	}
	return out
}

// wrapperAt returns the index of the wrapper containing p. Positions on the
// right or bottom raster edge belong to the wrapper touching that edge.
func (c *CombinedGeoCoding) wrapperAt(p PixelPos) int {
	for i, w := range c.wrappers {
		r := w.Region
		inX := p.X >= float64(r.Min.X) && (p.X < float64(r.Max.X) || p.X == float64(c.width) && r.Max.X == c.width)
		inY := p.Y >= float64(r.Min.Y) && (p.Y < float64(r.Max.Y) || p.Y == float64(c.height) && r.Max.Y == c.height)
		if inX && inY {
			return i
		}
	}
	return -1
}

func (c *CombinedGeoCoding) GeoPos(p PixelPos) GeoPos {
	if !p.IsValid() {
		return InvalidGeoPos
	}
	i := c.wrapperAt(p)
	if i < 0 {
		return InvalidGeoPos
	}
	w := c.wrappers[i]
	return w.GeoCoding.GeoPos(PixelPos{X: p.X - float64(w.Region.Min.X), Y: p.Y - float64(w.Region.Min.Y)})
}

func (c *CombinedGeoCoding) PixelPos(g GeoPos) PixelPos {
	if !g.IsValid() {
		return InvalidPixelPos
	}
	pt := orb.Point{normalizeLon(g.Lon), g.Lat}
	for _, w := range c.wrappers {
		if w.hasBound && !w.bound.Contains(pt) {
			continue
		}
		lp, ok := clampToRaster(w.GeoCoding.PixelPos(g), w.Region.Dx(), w.Region.Dy())
		if !ok {
			continue
		}
		return PixelPos{X: lp.X + float64(w.Region.Min.X), Y: lp.Y + float64(w.Region.Min.Y)}
	}
	return InvalidPixelPos
}

// TransferGeoCoding intersects every wrapper with the subset region, maps the
// intersection through the sub-sampling and transfers the wrapped geocoding
// onto the resulting destination rectangle. Wrappers outside the region are
// dropped; the order of the rest is kept.
func (c *CombinedGeoCoding) TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	region := subset.RegionOf(c.width, c.height)
	sx, sy := subset.Steps()
	dw, dh := subset.SceneSize(c.width, c.height)
	if dst.SceneRasterWidth() != dw || dst.SceneRasterHeight() != dh {
		return false
	}

	var out []CodingWrapper
	for _, w := range c.wrappers {
		in := w.Region.Intersect(region)
		if in.Empty() {
			continue
		}
		dr := image.Rect(
			ceilDiv(in.Min.X-region.Min.X, sx), ceilDiv(in.Min.Y-region.Min.Y, sy),
			ceilDiv(in.Max.X-region.Min.X, sx), ceilDiv(in.Max.Y-region.Min.Y, sy),
		)
		if dr.Empty() {
			continue
		}
		lx := region.Min.X + dr.Min.X*sx - w.Region.Min.X
		ly := region.Min.Y + dr.Min.Y*sy - w.Region.Min.Y
		local := image.Rect(lx, ly, lx+(dr.Dx()-1)*sx+1, ly+(dr.Dy()-1)*sy+1)
		subSrc := &sceneSize{width: w.Region.Dx(), height: w.Region.Dy(), gc: w.GeoCoding}
		subDst := &sceneSize{width: dr.Dx(), height: dr.Dy()}
		if !w.GeoCoding.TransferGeoCoding(subSrc, subDst, &SubsetDef{Region: &local, SubSamplingX: sx, SubSamplingY: sy}) {
			return false
		}
		out = append(out, CodingWrapper{GeoCoding: subDst.gc, Region: dr})
	}
	gc, err := NewCombinedGeoCoding(out, dw, dh)
	if err != nil {
		return false
	}
	dst.SetGeoCoding(gc)
	return true
}

func (c *CombinedGeoCoding) Dispose() {
	for _, w := range c.wrappers {
		w.GeoCoding.Dispose()
	}
}
