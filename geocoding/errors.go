package geocoding

import "errors"

var (
	ErrInvalidDatum      = errors.New("invalid datum")
	ErrSingularTransform = errors.New("singular transform")
	ErrGridMismatch      = errors.New("tie-point grids do not match")
	ErrInvalidGrid       = errors.New("invalid tie-point grid")
	ErrRasterSize        = errors.New("raster size does not match sample count")
	ErrNoGCPs            = errors.New("no ground control points")
	ErrUnknownMethod     = errors.New("unknown gcp method")
	ErrTiling            = errors.New("regions do not tile the raster")
	ErrDatumMismatch     = errors.New("datums differ")
	ErrNoProjection      = errors.New("no projection")
	ErrInvalidSubset     = errors.New("invalid subset")
)
