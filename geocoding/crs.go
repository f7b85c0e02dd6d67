package geocoding

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// CrsGeoCoding maps pixels through an affine image-to-map transform followed
// by a map projection.
type CrsGeoCoding struct {
	imageToMap *Affine
	mapToImage *Affine
	proj       Projection
	width      int
	height     int
	crossing   bool
}

// NewCrsGeoCoding fails if imageToMap is singular.
func NewCrsGeoCoding(imageToMap *Affine, proj Projection, width, height int) (*CrsGeoCoding, error) {
	if imageToMap == nil {
		return nil, fmt.Errorf("%w: nil image-to-map transform", ErrSingularTransform)
	}
	if proj == nil {
		return nil, ErrNoProjection
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if err := proj.Datum().Validate(); err != nil {
		return nil, err
	}
	inv, err := imageToMap.Inverse()
	if err != nil {
		return nil, err
	}
	fwd := *imageToMap
	c := &CrsGeoCoding{
		imageToMap: &fwd,
		mapToImage: inv,
		proj:       proj,
		width:      width,
		height:     height,
	}
	c.crossing = crossesMeridian(borderPath(width, height, c.rawGeo))
	return c, nil
}

func (c *CrsGeoCoding) CanGetPixelPos() bool { return true }
func (c *CrsGeoCoding) CanGetGeoPos() bool   { return true }

func (c *CrsGeoCoding) IsCrossingMeridianAt180() bool { return c.crossing }

func (c *CrsGeoCoding) Datum() Datum { return c.proj.Datum() }

// ImageToMap returns a copy of the image-to-map transform.
func (c *CrsGeoCoding) ImageToMap() Affine { return *c.imageToMap }

func (c *CrsGeoCoding) Projection() Projection { return c.proj }

// MapBounds returns the map-coordinate extent of the pixel areas. Integer
// positions are pixel centres, so the extent spans [-0.5, w-0.5] x [-0.5, h-0.5].
func (c *CrsGeoCoding) MapBounds() orb.Bound {
	w, h := float64(c.width)-0.5, float64(c.height)-0.5
	var b orb.Bound
	for i, p := range [][2]float64{{-0.5, -0.5}, {w, -0.5}, {-0.5, h}, {w, h}} {
		x, y := c.imageToMap.Transform(p[0], p[1])
		if i == 0 {
			b = orb.Point{x, y}.Bound()
			continue
		}
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// rawGeo returns the un-normalized geo position, used to detect meridian
// crossings of geographic grids extending past 180 degrees.
func (c *CrsGeoCoding) rawGeo(x, y float64) GeoPos {
	mx, my := c.imageToMap.Transform(x, y)
	lon, lat := c.proj.ToWGS84(mx, my)
	return GeoPos{Lat: lat, Lon: lon}
}

func (c *CrsGeoCoding) GeoPos(p PixelPos) GeoPos {
	if !p.IsValid() {
		return InvalidGeoPos
	}
	return c.rawGeo(p.X, p.Y).Normalize()
}

func (c *CrsGeoCoding) PixelPos(g GeoPos) PixelPos {
	if !g.IsValid() {
		return InvalidPixelPos
	}
	lon := g.Lon
	if c.crossing {
		// Unwrap around the raster center so both sides of 180 stay continuous.
		ref := c.rawGeo(float64(c.width)/2, float64(c.height)/2).Lon
		lon = ref + lonDelta(lon, ref)
	}
	mx, my := c.proj.FromWGS84(lon, g.Lat)
	if math.IsNaN(mx) || math.IsNaN(my) {
		return InvalidPixelPos
	}
	x, y := c.mapToImage.Transform(mx, my)
	return PixelPos{X: x, Y: y}
}

// TransferGeoCoding composes the subset offset and sub-sampling into the
// affine transform. The result is exact.
func (c *CrsGeoCoding) TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	var x0, y0 float64
	if subset != nil && subset.Region != nil {
		x0, y0 = float64(subset.Region.Min.X), float64(subset.Region.Min.Y)
	}
	sx, sy := subset.Steps()
	t := c.imageToMap.Multiply(Translation(x0, y0)).Multiply(Scale(float64(sx), float64(sy)))
	gc, err := NewCrsGeoCoding(t, c.proj, dst.SceneRasterWidth(), dst.SceneRasterHeight())
	if err != nil {
		return false
	}
	dst.SetGeoCoding(gc)
	return true
}

func (c *CrsGeoCoding) Dispose() {}
