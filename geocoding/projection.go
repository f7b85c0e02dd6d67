package geocoding

import "math"

// Projection converts between map coordinates of a CRS and WGS84 longitude and
// latitude in degrees.
type Projection interface {
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
	EPSG() int
	Datum() Datum
}

// ForEPSG returns a Projection for the given EPSG code, or nil if the code is
// not supported.
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 4326:
		return &WGS84Identity{}
	case 3857:
		return &WebMercator{}
	default:
		return nil
	}
}

// WGS84Identity is the geographic CRS: map x is longitude, map y latitude.
type WGS84Identity struct{}

func (WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (WGS84Identity) EPSG() int                                 { return 4326 }
func (WGS84Identity) Datum() Datum                              { return WGS84 }

const (
	earthRadius = 6378137.0
	originShift = math.Pi * earthRadius
	maxMercLat  = 85.05112877980659
)

// WebMercator is EPSG:3857.
type WebMercator struct{}

func (WebMercator) EPSG() int    { return 3857 }
func (WebMercator) Datum() Datum { return WGS84 }

func (WebMercator) ToWGS84(x, y float64) (lon, lat float64) {
	lon = x / originShift * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2.0)
	return
}

// FromWGS84 returns NaN for latitudes beyond the Web Mercator limit.
func (WebMercator) FromWGS84(lon, lat float64) (x, y float64) {
	if math.Abs(lat) > maxMercLat {
		return math.NaN(), math.NaN()
	}
	x = lon * originShift / 180.0
	y = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) * earthRadius
	return
}
