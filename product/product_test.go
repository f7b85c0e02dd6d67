package product

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/timecoding"
)

const crsDescriptor = `{
	"name": "scene",
	"width": 100,
	"height": 50,
	"geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [10, 0.1, 0, 50, 0, -0.1]},
	"timeCoding": {"type": "linear", "startTime": "2024-01-01T00:00:00Z", "endTime": "2024-01-01T00:00:49Z"}
}`

func load(t *testing.T, doc string) *Product {
	t.Helper()
	p, err := Load(context.Background(), strings.NewReader(doc), Options{})
	require.NoError(t, err)
	t.Cleanup(p.Dispose)
	return p
}

func TestLoadCrs(t *testing.T) {
	p := load(t, crsDescriptor)

	info := p.Info()
	assert.Equal(t, "scene", info.Name)
	assert.Equal(t, 100, info.Width)
	assert.Equal(t, 50, info.Height)
	assert.Equal(t, "crs", info.GeoCoding)
	assert.Equal(t, "linear", info.TimeCoding)
	assert.Equal(t, "WGS84", info.Datum)
	assert.True(t, info.CanGetTimePixel)
	require.Len(t, info.Corners, 4)
	assert.InDeltaSlice(t, []any{50.0, 10.0}, info.Corners[0], 1e-12)
	assert.Equal(t, 4326, info.EPSG)
	// integer positions are pixel centres, so the extent reaches half a pixel out
	assert.InDeltaSlice(t, []float64{9.95, 45.05, 19.95, 50.05}, info.MapBounds, 1e-9)

	geo := p.Raster.GeoCoding().GeoPos(geocoding.PixelPos{X: 0, Y: 0})
	assert.InDelta(t, 50.0, geo.Lat, 1e-12)
	assert.InDelta(t, 10.0, geo.Lon, 1e-12)

	// 2024-01-01 is MJD 60310
	assert.InDelta(t, 60310.0, p.TimeCoding.MJD(geocoding.PixelPos{Y: 0}), 1e-9)
	assert.InDelta(t, 60310.0+49.0/86400, p.TimeCoding.MJD(geocoding.PixelPos{Y: 49}), 1e-9)
}

func TestProductSubset(t *testing.T) {
	p := load(t, crsDescriptor)

	region := image.Rect(10, 10, 30, 30)
	sub, err := p.Subset("sub", &geocoding.SubsetDef{Region: &region, SubSamplingX: 2, SubSamplingY: 2})
	require.NoError(t, err)
	defer sub.Dispose()

	assert.Equal(t, 10, sub.Raster.SceneRasterWidth())
	assert.Equal(t, 10, sub.Raster.SceneRasterHeight())
	assert.Equal(t, "crs", Kind(sub.Raster.GeoCoding()))
	assert.Equal(t, "linear", TimeKind(sub.TimeCoding))

	geo := sub.Raster.GeoCoding().GeoPos(geocoding.PixelPos{X: 1, Y: 1})
	assert.InDelta(t, 50-1.2, geo.Lat, 1e-9)
	assert.InDelta(t, 10+1.2, geo.Lon, 1e-9)

	assert.InDelta(t, 60310.0+12.0/86400, sub.TimeCoding.MJD(geocoding.PixelPos{Y: 1}), 1e-9)
}

func TestLoadGeoCodings(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		kind    string
		pixel   geocoding.PixelPos
		wantLat float64
		wantLon float64
	}{
		{
			name: "tie-point",
			doc: `{"name": "tp", "width": 101, "height": 101, "geoCoding": {"type": "tiepoint",
				"latGrid": {"width": 3, "height": 3, "subSamplingX": 50, "subSamplingY": 50, "values": [10, 10, 10, 9.5, 9.5, 9.5, 9, 9, 9]},
				"lonGrid": {"width": 3, "height": 3, "subSamplingX": 50, "subSamplingY": 50, "values": [20, 20.5, 21, 20, 20.5, 21, 20, 20.5, 21]}}}`,
			kind:    "tiepoint",
			pixel:   geocoding.PixelPos{X: 50, Y: 50},
			wantLat: 9.5,
			wantLon: 20.5,
		},
		{
			name: "gcp",
			doc: `{"name": "gcp", "width": 100, "height": 100, "geoCoding": {"type": "gcp", "method": "polynomial1", "gcps": [
				{"pixel": {"x": 0, "y": 0}, "geo": {"lat": 10, "lon": 20}},
				{"pixel": {"x": 100, "y": 0}, "geo": {"lat": 10, "lon": 21}},
				{"pixel": {"x": 0, "y": 100}, "geo": {"lat": 9, "lon": 20}},
				{"pixel": {"x": 100, "y": 100}, "geo": {"lat": 9, "lon": 21}}]}}`,
			kind:    "gcp",
			pixel:   geocoding.PixelPos{X: 50, Y: 50},
			wantLat: 9.5,
			wantLon: 20.5,
		},
		{
			name: "pixel",
			doc: `{"name": "px", "width": 3, "height": 3, "geoCoding": {"type": "pixel",
				"latitudes": [10, 10, 10, 9, 9, 9, 8, 8, 8],
				"longitudes": [20, 21, 22, 20, 21, 22, 20, 21, 22]}}`,
			kind:    "pixel",
			pixel:   geocoding.PixelPos{X: 1.5, Y: 0.5},
			wantLat: 9.5,
			wantLon: 21.5,
		},
		{
			name: "combined",
			doc: `{"name": "cmb", "width": 100, "height": 100, "geoCoding": {"type": "combined", "parts": [
				{"region": [0, 0, 50, 100], "geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [10, 0.1, 0, 50, 0, -0.1]}},
				{"region": [50, 0, 100, 100], "geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [15, 0.1, 0, 50, 0, -0.1]}}]}}`,
			kind:    "combined",
			pixel:   geocoding.PixelPos{X: 75, Y: 10},
			wantLat: 49,
			wantLon: 17.5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := load(t, tc.doc)
			gc := p.Raster.GeoCoding()
			assert.Equal(t, tc.kind, Kind(gc))
			assert.Equal(t, "none", TimeKind(p.TimeCoding))

			geo := gc.GeoPos(tc.pixel)
			assert.InDelta(t, tc.wantLat, geo.Lat, 1e-6)
			assert.InDelta(t, tc.wantLon, geo.Lon, 1e-6)
		})
	}
}

func TestLoadTimeCodings(t *testing.T) {
	testCases := []struct {
		name string
		tc   string
		kind string
		at   geocoding.PixelPos
		want float64
	}{
		{"constant", `{"type": "constant", "mjd": 60000.5}`, "constant", geocoding.PixelPos{X: 3, Y: 3}, 60000.5},
		{"constant time", `{"type": "constant", "time": "2024-01-01T12:00:00Z"}`, "constant", geocoding.PixelPos{}, 60310.5},
		{"line", `{"type": "line", "mjds": [1, 2, 3, 4]}`, "line", geocoding.PixelPos{Y: 2.5}, 3},
		{"linear", `{"type": "linear", "start": 100, "end": 103}`, "linear", geocoding.PixelPos{Y: 1.5}, 101.5},
		{"pixel", `{"type": "pixel", "mjds": [1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16]}`, "pixel", geocoding.PixelPos{X: 1, Y: 2}, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := load(t, `{"name": "t", "width": 4, "height": 4, "timeCoding": `+tc.tc+`}`)
			assert.Equal(t, tc.kind, TimeKind(p.TimeCoding))
			assert.Equal(t, "none", Kind(p.Raster.GeoCoding()))
			assert.InDelta(t, tc.want, p.TimeCoding.MJD(tc.at), 1e-9)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"malformed", `{"name": `, ErrDescriptor},
		{"unknown field", `{"name": "x", "colour": "red"}`, ErrDescriptor},
		{"unknown geocoding", `{"name": "x", "width": 2, "height": 2, "geoCoding": {"type": "rpc"}}`, ErrUnknownType},
		{"unknown time coding", `{"name": "x", "width": 2, "height": 2, "timeCoding": {"type": "gps"}}`, ErrUnknownType},
		{"missing size", `{"name": "x", "geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [0, 1, 0, 0, 0, -1]}}`, ErrDescriptor},
		{"singular", `{"name": "x", "width": 2, "height": 2, "geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [0, 0, 0, 0, 0, 0]}}`, geocoding.ErrSingularTransform},
		{"unknown datum", `{"name": "x", "width": 2, "height": 2, "datum": "ED50"}`, geocoding.ErrInvalidDatum},
		{"bad gcp method", `{"name": "x", "width": 2, "height": 2, "geoCoding": {"type": "gcp", "method": "spline", "gcps": [{"pixel": {"x": 0, "y": 0}, "geo": {"lat": 0, "lon": 0}}]}}`, geocoding.ErrUnknownMethod},
		{"bad tiling", `{"name": "x", "width": 100, "height": 100, "geoCoding": {"type": "combined", "parts": [
			{"region": [0, 0, 50, 100], "geoCoding": {"type": "crs", "epsg": 4326, "imageToMap": [10, 0.1, 0, 50, 0, -0.1]}}]}}`, geocoding.ErrTiling},
		{"bad line count", `{"name": "x", "width": 2, "height": 2, "geoCoding": null, "timeCoding": {"type": "line"}}`, timecoding.ErrNoTimes},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), strings.NewReader(tc.doc), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

// writeTIFF writes a little endian EPSG:4326 GeoTIFF header with 0.5 degree
// pixels whose upper left corner is lon 10, lat 50.
func writeTIFF(t *testing.T, path string, w, h uint16) {
	t.Helper()
	le := binary.LittleEndian
	enc := func(v any) []byte {
		var b bytes.Buffer
		require.NoError(t, binary.Write(&b, le, v))
		return b.Bytes()
	}
	entries := []struct {
		tag, typ uint16
		count    uint32
		payload  []byte
	}{
		{256, 3, 1, enc(w)},
		{257, 3, 1, enc(h)},
		{33550, 12, 3, enc([]float64{0.5, 0.5, 0})},
		{33922, 12, 6, enc([]float64{0, 0, 0, 10, 50, 0})},
		{34735, 3, 8, enc([]uint16{1, 1, 0, 1, 2048, 0, 1, 4326})},
	}

	var out, data bytes.Buffer
	out.WriteString("II")
	out.Write(enc(uint16(42)))
	out.Write(enc(uint32(8)))
	out.Write(enc(uint16(len(entries))))
	dataStart := 8 + 2 + 12*len(entries) + 4
	for _, e := range entries {
		out.Write(enc(e.tag))
		out.Write(enc(e.typ))
		out.Write(enc(e.count))
		if len(e.payload) <= 4 {
			field := make([]byte, 4)
			copy(field, e.payload)
			out.Write(field)
			continue
		}
		out.Write(enc(uint32(dataStart + data.Len())))
		data.Write(e.payload)
	}
	out.Write(make([]byte, 4))
	out.Write(data.Bytes())
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}

func TestOpenGeoTIFF(t *testing.T) {
	dir := t.TempDir()
	writeTIFF(t, filepath.Join(dir, "scene.tif"), 20, 10)

	t.Run("tiff file", func(t *testing.T) {
		p, err := Open(context.Background(), filepath.Join(dir, "scene.tif"), Options{})
		require.NoError(t, err)
		defer p.Dispose()

		assert.Equal(t, "scene", p.Raster.Name)
		assert.Equal(t, 20, p.Raster.SceneRasterWidth())
		assert.Equal(t, 10, p.Raster.SceneRasterHeight())
		geo := p.Raster.GeoCoding().GeoPos(geocoding.PixelPos{})
		assert.InDelta(t, 49.75, geo.Lat, 1e-12)
		assert.InDelta(t, 10.25, geo.Lon, 1e-12)
	})

	t.Run("descriptor with relative path", func(t *testing.T) {
		doc := `{"name": "desc", "geoCoding": {"type": "geotiff", "path": "scene.tif"},
			"timeCoding": {"type": "linear", "start": 0, "end": 9}}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.json"), []byte(doc), 0o644))

		p, err := Open(context.Background(), filepath.Join(dir, "scene.json"), Options{})
		require.NoError(t, err)
		defer p.Dispose()

		assert.Equal(t, "desc", p.Raster.Name)
		assert.Equal(t, 20, p.Raster.SceneRasterWidth())
		assert.InDelta(t, 4.0, p.TimeCoding.MJD(geocoding.PixelPos{Y: 4}), 1e-12)
	})

	t.Run("size mismatch", func(t *testing.T) {
		doc := `{"name": "desc", "width": 30, "height": 10, "geoCoding": {"type": "geotiff", "path": "scene.tif"}}`
		_, err := Load(context.Background(), strings.NewReader(doc), Options{BaseDir: dir})
		assert.ErrorIs(t, err, geocoding.ErrRasterSize)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(context.Background(), filepath.Join(dir, "missing.json"), Options{})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
