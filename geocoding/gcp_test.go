package geocoding

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gcpGrid(n int, step float64, lat, lon func(x, y float64) float64) []GroundControlPoint {
	var gcps []GroundControlPoint
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x, y := float64(i)*step, float64(j)*step
			gcps = append(gcps, GroundControlPoint{
				Pixel: PixelPos{X: x, Y: y},
				Geo:   GeoPos{Lat: lat(x, y), Lon: lon(x, y)},
			})
		}
	}
	return gcps
}

func affineLat(x, y float64) float64 { return 50 - 0.01*y + 0.001*x }
func affineLon(x, y float64) float64 { return 10 + 0.01*x + 0.002*y }

func TestParseGcpMethod(t *testing.T) {
	testCases := []struct {
		in   string
		want GcpMethod
		err  bool
	}{
		{"", Polynomial1, false},
		{"POLYNOMIAL1", Polynomial1, false},
		{"POLYNOMIAL2", Polynomial2, false},
		{"POLYNOMIAL3", Polynomial3, false},
		{"POLYNOMIAL4", 0, true},
		{"polynomial1", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := ParseGcpMethod(tc.in)
			if tc.err {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, m)
			if tc.in != "" {
				assert.Equal(t, tc.in, m.String())
			}
		})
	}

	assert.Equal(t, 3, Polynomial1.TermCount())
	assert.Equal(t, 6, Polynomial2.TermCount())
	assert.Equal(t, 10, Polynomial3.TermCount())
}

func TestGcpGeoCodingAffine(t *testing.T) {
	gcps := []GroundControlPoint{
		{Pixel: PixelPos{X: 0, Y: 0}},
		{Pixel: PixelPos{X: 100, Y: 0}},
		{Pixel: PixelPos{X: 100, Y: 100}},
		{Pixel: PixelPos{X: 0, Y: 100}},
		{Pixel: PixelPos{X: 50, Y: 50}},
	}
	for i := range gcps {
		gcps[i].Geo = GeoPos{Lat: affineLat(gcps[i].Pixel.X, gcps[i].Pixel.Y), Lon: affineLon(gcps[i].Pixel.X, gcps[i].Pixel.Y)}
	}
	gc, err := NewGcpGeoCoding(Polynomial1, gcps, 100, 100, WGS84)
	require.NoError(t, err)
	assert.Equal(t, Polynomial1, gc.Method())
	assert.Len(t, gc.GCPs(), 5)
	assert.False(t, gc.IsCrossingMeridianAt180())

	lat, lon := gc.ForwardRMSE()
	assert.Less(t, lat, 1e-9)
	assert.Less(t, lon, 1e-9)
	x, y := gc.InverseRMSE()
	assert.Less(t, x, 1e-6)
	assert.Less(t, y, 1e-6)

	for _, p := range []PixelPos{{X: 12.5, Y: 80}, {X: 99, Y: 1}, {X: 50, Y: 50}, {X: 0, Y: 0}, {X: 0, Y: 50}, {X: 100, Y: 100}} {
		g := gc.GeoPos(p)
		assert.InDelta(t, affineLat(p.X, p.Y), g.Lat, 1e-9)
		assert.InDelta(t, affineLon(p.X, p.Y), g.Lon, 1e-9)

		back := gc.PixelPos(g)
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
	}

	assert.False(t, gc.GeoPos(PixelPos{X: 101, Y: 0}).IsValid())
	assert.False(t, gc.PixelPos(GeoPos{Lat: 10, Lon: 10}).IsValid())
}

func TestGcpGeoCodingQuadratic(t *testing.T) {
	lat := func(x, y float64) float64 { return 40 + 0.01*x + 1e-4*x*y }
	lon := func(x, y float64) float64 { return 5 + 0.02*y + 1e-4*x*x }
	gc, err := NewGcpGeoCoding(Polynomial2, gcpGrid(5, 25, lat, lon), 100, 100, WGS84)
	require.NoError(t, err)

	for _, p := range []PixelPos{{X: 33, Y: 71}, {X: 0.5, Y: 99.5}, {X: 87.2, Y: 12.1}} {
		g := gc.GeoPos(p)
		assert.InDelta(t, lat(p.X, p.Y), g.Lat, 1e-8)
		assert.InDelta(t, lon(p.X, p.Y), g.Lon, 1e-8)
	}

	// the inverse is fitted independently and only approximates the forward
	// mapping
	p := gc.PixelPos(gc.GeoPos(PixelPos{X: 50, Y: 50}))
	require.True(t, p.IsValid())
	assert.InDelta(t, 50.0, p.X, 10)
	assert.InDelta(t, 50.0, p.Y, 10)
}

func TestGcpGeoCodingMeridian(t *testing.T) {
	gc, err := NewGcpGeoCoding(Polynomial1, gcpGrid(3, 50, affineLat, func(x, y float64) float64 {
		return normalizeLon(179 + 0.02*x)
	}), 100, 100, WGS84)
	require.NoError(t, err)
	assert.True(t, gc.IsCrossingMeridianAt180())

	g := gc.GeoPos(PixelPos{X: 100, Y: 0})
	assert.InDelta(t, -179.0, g.Lon, 1e-9)

	p := gc.PixelPos(GeoPos{Lat: affineLat(75, 20), Lon: -179.5})
	assert.InDelta(t, 75.0, p.X, 1e-6)
	assert.InDelta(t, 20.0, p.Y, 1e-6)
}

func TestGcpGeoCodingDegenerate(t *testing.T) {
	testCases := []struct {
		name string
		gcps []GroundControlPoint
	}{
		{"two points", []GroundControlPoint{
			{Pixel: PixelPos{X: 0, Y: 0}, Geo: GeoPos{Lat: 50, Lon: 10}},
			{Pixel: PixelPos{X: 10, Y: 10}, Geo: GeoPos{Lat: 49, Lon: 11}},
		}},
		{"collinear", []GroundControlPoint{
			{Pixel: PixelPos{X: 0, Y: 0}, Geo: GeoPos{Lat: 50, Lon: 10}},
			{Pixel: PixelPos{X: 5, Y: 5}, Geo: GeoPos{Lat: 49.5, Lon: 10.5}},
			{Pixel: PixelPos{X: 10, Y: 10}, Geo: GeoPos{Lat: 49, Lon: 11}},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gc, err := NewGcpGeoCoding(Polynomial1, tc.gcps, 20, 20, WGS84)
			require.NoError(t, err)
			for _, p := range tc.gcps {
				g := gc.GeoPos(p.Pixel)
				assert.InDelta(t, p.Geo.Lat, g.Lat, 1e-6)
				assert.InDelta(t, p.Geo.Lon, g.Lon, 1e-6)
			}
		})
	}
}

func TestNewGcpGeoCodingErrors(t *testing.T) {
	gcps := gcpGrid(2, 10, affineLat, affineLon)

	_, err := NewGcpGeoCoding(Polynomial1, nil, 10, 10, WGS84)
	assert.ErrorIs(t, err, ErrNoGCPs)

	_, err = NewGcpGeoCoding(GcpMethod(4), gcps, 10, 10, WGS84)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = NewGcpGeoCoding(Polynomial1, gcps, 10, 10, Datum{Name: "bad", Ellipsoid: Ellipsoid{SemiMajor: 1, InverseFlattening: 0.5}})
	assert.ErrorIs(t, err, ErrInvalidDatum)

	bad := append([]GroundControlPoint(nil), gcps...)
	bad[1].Geo = InvalidGeoPos
	_, err = NewGcpGeoCoding(Polynomial1, bad, 10, 10, WGS84)
	assert.Error(t, err)
}

func TestGcpGeoCodingTransfer(t *testing.T) {
	gc, err := NewGcpGeoCoding(Polynomial1, gcpGrid(3, 50, affineLat, affineLon), 100, 100, WGS84)
	require.NoError(t, err)
	src, err := NewRaster("src", 100, 100)
	require.NoError(t, err)
	src.SetGeoCoding(gc)

	dst, err := src.Subset("dst", &SubsetDef{Region: &image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(60, 40)}})
	require.NoError(t, err)
	out, ok := dst.GeoCoding().(*GcpGeoCoding)
	require.True(t, ok)
	assert.NotSame(t, gc, out)
	assert.Equal(t, gc.GCPs(), out.GCPs())

	// the polynomials are reused in the caller's pixel frame
	p := PixelPos{X: 20, Y: 25}
	assert.Equal(t, gc.GeoPos(p), out.GeoPos(p))
	assert.False(t, out.GeoPos(PixelPos{X: 55, Y: 0}).IsValid())
}
