package product

import (
	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/timecoding"
)

// Info summarizes a product for clients.
type Info struct {
	Name             string    `json:"name"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	GeoCoding        string    `json:"geoCoding"`
	Datum            string    `json:"datum,omitempty"`
	CanGetGeoPos     bool      `json:"canGetGeoPos"`
	CanGetPixelPos   bool      `json:"canGetPixelPos"`
	CrossingMeridian bool      `json:"crossingMeridian"`
	TimeCoding       string    `json:"timeCoding"`
	CanGetTimePixel  bool      `json:"canGetTimePixel"`
	Corners          [][]any   `json:"corners,omitempty"` // [lat, lon] or nil per corner
	EPSG             int       `json:"epsg,omitempty"`
	MapBounds        []float64 `json:"mapBounds,omitempty"` // [minX, minY, maxX, maxY] in map units
}

// Info describes p. Corners lists the geo positions of the four raster corners
// in the order upper left, upper right, lower right, lower left. CRS geocodings
// also report their EPSG code and map extent.
func (p *Product) Info() Info {
	r := p.Raster
	w, h := r.SceneRasterWidth(), r.SceneRasterHeight()
	info := Info{
		Name:       r.Name,
		Width:      w,
		Height:     h,
		GeoCoding:  Kind(r.GeoCoding()),
		TimeCoding: TimeKind(p.TimeCoding),
	}
	if gc := r.GeoCoding(); gc != nil {
		info.Datum = gc.Datum().Name
		info.CanGetGeoPos = gc.CanGetGeoPos()
		info.CanGetPixelPos = gc.CanGetPixelPos()
		info.CrossingMeridian = gc.IsCrossingMeridianAt180()
		if crs, ok := gc.(*geocoding.CrsGeoCoding); ok {
			b := crs.MapBounds()
			info.EPSG = crs.Projection().EPSG()
			info.MapBounds = []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
		}
		if gc.CanGetGeoPos() {
			for _, c := range []geocoding.PixelPos{{X: 0, Y: 0}, {X: float64(w), Y: 0}, {X: float64(w), Y: float64(h)}, {X: 0, Y: float64(h)}} {
				g := gc.GeoPos(c)
				if !g.IsValid() {
					info.Corners = append(info.Corners, nil)
					continue
				}
				info.Corners = append(info.Corners, []any{g.Lat, g.Lon})
			}
		}
	}
	if p.TimeCoding != nil {
		info.CanGetTimePixel = p.TimeCoding.CanGetPixelPos()
	}
	return info
}

// Kind names the geocoding strategy of gc.
func Kind(gc geocoding.GeoCoding) string {
	switch gc.(type) {
	case nil:
		return "none"
	case *geocoding.CrsGeoCoding:
		return "crs"
	case *geocoding.TiePointGeoCoding:
		return "tiepoint"
	case *geocoding.GcpGeoCoding:
		return "gcp"
	case *geocoding.PixelGeoCoding:
		return "pixel"
	case *geocoding.CombinedGeoCoding:
		return "combined"
	}
	return "unknown"
}

// TimeKind names the time coding strategy of tc.
func TimeKind(tc timecoding.TimeCoding) string {
	switch c := tc.(type) {
	case nil:
		return "none"
	case *timecoding.ConstantTimeCoding:
		return "constant"
	case *timecoding.LineTimeCoding:
		if c.IsLinear() {
			return "linear"
		}
		return "line"
	case *timecoding.PixelTimeCoding:
		return "pixel"
	}
	return "unknown"
}
