package timecoding

import (
	"fmt"
	"math"

	"github.com/akhenakh/rastercoding/geocoding"
)

// Subset derives the time coding of the raster produced by applying subset to a
// width x height raster. Destination pixel (i, j) takes the time of source pixel
// (x0 + i*sx, y0 + j*sy).
func Subset(tc TimeCoding, subset *geocoding.SubsetDef, width, height int) (TimeCoding, error) {
	if err := subset.Validate(width, height); err != nil {
		return nil, err
	}
	w, h := subset.SceneSize(width, height)
	switch c := tc.(type) {
	case *ConstantTimeCoding:
		return NewConstantTimeCoding(c.mjd), nil
	case *LineTimeCoding:
		mjds := make([]float64, h)
		for j := range mjds {
			mjds[j] = c.MJD(subset.SourcePos(geocoding.PixelPos{Y: float64(j)}))
		}
		if c.mjds == nil && h > 1 {
			return NewLinearLineTimeCoding(h, mjds[0], mjds[h-1])
		}
		return NewLineTimeCoding(mjds)
	case *PixelTimeCoding:
		mjds := make([]float64, 0, w*h)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				mjds = append(mjds, c.MJD(subset.SourcePos(geocoding.PixelPos{X: float64(i), Y: float64(j)})))
			}
		}
		// keep the trailing gap of partially filled tables
		for len(mjds) > 0 && math.IsNaN(mjds[len(mjds)-1]) {
			mjds = mjds[:len(mjds)-1]
		}
		return NewPixelTimeCoding(mjds, w, h)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, tc)
	}
}
