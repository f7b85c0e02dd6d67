package product

import (
	"time"

	"github.com/akhenakh/rastercoding/geocoding"
)

// Descriptor is the JSON document describing a product.
type Descriptor struct {
	Name       string          `json:"name"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	Datum      string          `json:"datum,omitempty"`
	GeoCoding  *GeoCodingDesc  `json:"geoCoding,omitempty"`
	TimeCoding *TimeCodingDesc `json:"timeCoding,omitempty"`
}

// GeoCodingDesc describes one geocoding. Type selects which fields are read:
// crs, geotiff, tiepoint, gcp, pixel or combined.
type GeoCodingDesc struct {
	Type string `json:"type"`

	// crs
	EPSG       int       `json:"epsg,omitempty"`
	ImageToMap []float64 `json:"imageToMap,omitempty"`

	// geotiff, a file path or an http(s) URL. Relative paths resolve against
	// the descriptor directory.
	Path string `json:"path,omitempty"`

	// tiepoint
	LatGrid *GridDesc `json:"latGrid,omitempty"`
	LonGrid *GridDesc `json:"lonGrid,omitempty"`

	// gcp
	Method string                         `json:"method,omitempty"`
	GCPs   []geocoding.GroundControlPoint `json:"gcps,omitempty"`

	// pixel, row-major per-pixel samples
	Latitudes  []float64 `json:"latitudes,omitempty"`
	Longitudes []float64 `json:"longitudes,omitempty"`

	// combined
	Parts []PartDesc `json:"parts,omitempty"`
}

// GridDesc describes a tie-point grid.
type GridDesc struct {
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	OffsetX      float64   `json:"offsetX"`
	OffsetY      float64   `json:"offsetY"`
	SubSamplingX float64   `json:"subSamplingX"`
	SubSamplingY float64   `json:"subSamplingY"`
	Values       []float64 `json:"values"`
}

// PartDesc is one tile of a combined geocoding; Region is minX, minY, maxX, maxY
// with exclusive max.
type PartDesc struct {
	Region    [4]int        `json:"region"`
	GeoCoding GeoCodingDesc `json:"geoCoding"`
}

// TimeCodingDesc describes a time coding: constant, line, linear or pixel.
// Times may be given as MJD or as RFC 3339 timestamps; timestamps win.
type TimeCodingDesc struct {
	Type string `json:"type"`

	// constant
	MJD  float64    `json:"mjd,omitempty"`
	Time *time.Time `json:"time,omitempty"`

	// line and pixel
	MJDs []float64 `json:"mjds,omitempty"`

	// linear
	Start     float64    `json:"start,omitempty"`
	End       float64    `json:"end,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}
