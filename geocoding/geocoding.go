// Package geocoding maps raster pixel positions to geodetic positions and back,
// and re-derives those mappings when a raster is cropped or sub-sampled.
package geocoding

import (
	"fmt"
	"image"
	"log/slog"
	"math"
)

// GeoCoding converts between pixel and geo positions of one raster.
//
// At most one of CanGetPixelPos and CanGetGeoPos may be false. Queries that have
// no solution return InvalidPixelPos or InvalidGeoPos rather than an error.
type GeoCoding interface {
	CanGetPixelPos() bool
	CanGetGeoPos() bool

	// GeoPos returns the geo position of the given pixel position.
	GeoPos(p PixelPos) GeoPos
	// PixelPos returns the pixel position of the given geo position.
	PixelPos(g GeoPos) PixelPos

	IsCrossingMeridianAt180() bool
	Datum() Datum

	// TransferGeoCoding builds a geocoding valid for dst, given that dst is the
	// result of applying subset to src, and installs it on dst. It returns false
	// when the variant cannot be transferred.
	TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool

	// Dispose releases cached structures. It is safe to call more than once.
	Dispose()
}

// Scene is a raster entity owning a geocoding.
type Scene interface {
	SceneRasterWidth() int
	SceneRasterHeight() int
	GeoCoding() GeoCoding
	SetGeoCoding(gc GeoCoding)
}

// SubsetDef describes a crop region and sub-sampling factors. A nil Region means
// no crop. Sub-sampling factors below 1 are treated as 1.
type SubsetDef struct {
	Region       *image.Rectangle `json:"region,omitempty"`
	SubSamplingX int              `json:"subSamplingX,omitempty"`
	SubSamplingY int              `json:"subSamplingY,omitempty"`
}

// Steps returns the effective sub-sampling factors.
func (s *SubsetDef) Steps() (int, int) {
	if s == nil {
		return 1, 1
	}
	return max(s.SubSamplingX, 1), max(s.SubSamplingY, 1)
}

// RegionOf returns the crop region clipped to a w x h raster.
func (s *SubsetDef) RegionOf(w, h int) image.Rectangle {
	bounds := image.Rect(0, 0, w, h)
	if s == nil || s.Region == nil {
		return bounds
	}
	return s.Region.Intersect(bounds)
}

// SceneSize returns the size of the raster produced by applying the subset to
// a w x h raster.
func (s *SubsetDef) SceneSize(w, h int) (int, int) {
	r := s.RegionOf(w, h)
	sx, sy := s.Steps()
	return ceilDiv(r.Dx(), sx), ceilDiv(r.Dy(), sy)
}

// SourcePos maps a destination pixel position to the source raster:
// (i, j) -> (x0 + i*sx, y0 + j*sy).
func (s *SubsetDef) SourcePos(p PixelPos) PixelPos {
	var x0, y0 int
	if s != nil && s.Region != nil {
		x0, y0 = s.Region.Min.X, s.Region.Min.Y
	}
	sx, sy := s.Steps()
	return PixelPos{X: float64(x0) + p.X*float64(sx), Y: float64(y0) + p.Y*float64(sy)}
}

// Validate checks that the subset selects a non-empty part of a w x h raster.
func (s *SubsetDef) Validate(w, h int) error {
	if s == nil {
		return nil
	}
	if s.SubSamplingX < 0 || s.SubSamplingY < 0 {
		return fmt.Errorf("%w: negative sub-sampling (%d, %d)", ErrInvalidSubset, s.SubSamplingX, s.SubSamplingY)
	}
	if s.Region != nil {
		if s.Region.Empty() {
			return fmt.Errorf("%w: empty region %v", ErrInvalidSubset, *s.Region)
		}
		if !s.Region.In(image.Rect(0, 0, w, h)) {
			return fmt.Errorf("%w: region %v outside raster %dx%d", ErrInvalidSubset, *s.Region, w, h)
		}
	}
	return nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// TransferGeoCoding asks the geocoding of src to install a geocoding on dst.
func TransferGeoCoding(src, dst Scene, subset *SubsetDef) bool {
	gc := src.GeoCoding()
	if gc == nil {
		return false
	}
	if err := subset.Validate(src.SceneRasterWidth(), src.SceneRasterHeight()); err != nil {
		slog.Warn("rejecting geocoding transfer", "error", err)
		return false
	}
	if !gc.TransferGeoCoding(src, dst, subset) {
		slog.Warn("geocoding transfer not supported", "type", fmt.Sprintf("%T", gc))
		return false
	}
	return true
}

// Raster is a scene with an owned geocoding.
type Raster struct {
	Name      string
	width     int
	height    int
	geoCoding GeoCoding
}

func NewRaster(name string, width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	return &Raster{Name: name, width: width, height: height}, nil
}

func (r *Raster) SceneRasterWidth() int  { return r.width }
func (r *Raster) SceneRasterHeight() int { return r.height }
func (r *Raster) GeoCoding() GeoCoding   { return r.geoCoding }

// SetGeoCoding installs gc and disposes the geocoding it replaces.
func (r *Raster) SetGeoCoding(gc GeoCoding) {
	if r.geoCoding != nil && r.geoCoding != gc {
		r.geoCoding.Dispose()
	}
	r.geoCoding = gc
}

// Subset creates the raster described by applying subset to r. When the
// geocoding cannot be transferred the returned raster has no geocoding.
func (r *Raster) Subset(name string, subset *SubsetDef) (*Raster, error) {
	if err := subset.Validate(r.width, r.height); err != nil {
		return nil, err
	}
	w, h := subset.SceneSize(r.width, r.height)
	dst, err := NewRaster(name, w, h)
	if err != nil {
		return nil, err
	}
	if r.geoCoding != nil {
		TransferGeoCoding(r, dst, subset)
	}
	return dst, nil
}

// Dispose releases the geocoding owned by the raster.
func (r *Raster) Dispose() {
	if r.geoCoding != nil {
		r.geoCoding.Dispose()
		r.geoCoding = nil
	}
}

// sceneSize is a Scene without a backing raster, used when transferring parts
// of a combined geocoding.
type sceneSize struct {
	width, height int
	gc            GeoCoding
}

func (s *sceneSize) SceneRasterWidth() int     { return s.width }
func (s *sceneSize) SceneRasterHeight() int    { return s.height }
func (s *sceneSize) GeoCoding() GeoCoding      { return s.gc }
func (s *sceneSize) SetGeoCoding(gc GeoCoding) { s.gc = gc }

// crossesMeridian reports whether a path of geo positions jumps across the
// 180 degree meridian.
func crossesMeridian(path []GeoPos) bool {
	for i := 1; i < len(path); i++ {
		a, b := path[i-1].Lon, path[i].Lon
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		if math.Abs(normalizeLon(a)-normalizeLon(b)) > 180 {
			return true
		}
	}
	for _, g := range path {
		if g.Lon > 180 || g.Lon < -180 {
			return true
		}
	}
	return false
}

// borderPath samples positions along the raster border, clockwise from the
// upper-left corner.
func borderPath(w, h int, geo func(x, y float64) GeoPos) []GeoPos {
	const steps = 32
	path := make([]GeoPos, 0, 4*steps+1)
	fw, fh := float64(w), float64(h)
	for i := 0; i < steps; i++ {
		path = append(path, geo(fw*float64(i)/steps, 0))
	}
	for i := 0; i < steps; i++ {
		path = append(path, geo(fw, fh*float64(i)/steps))
	}
	for i := 0; i < steps; i++ {
		path = append(path, geo(fw*float64(steps-i)/steps, fh))
	}
	for i := 0; i <= steps; i++ {
		path = append(path, geo(0, fh*float64(steps-i)/steps))
	}
	return path
}
