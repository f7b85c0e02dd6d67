// Package product assembles rasters with their geo and time codings from JSON
// descriptors or GeoTIFF files.
package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/geotiff"
	"github.com/akhenakh/rastercoding/timecoding"
)

var (
	ErrUnknownType = errors.New("unknown coding type")
	ErrDescriptor  = errors.New("invalid product descriptor")
)

// Options controls how codings are built.
type Options struct {
	// BaseDir resolves relative GeoTIFF paths.
	BaseDir string
	// Pixel is passed to every pixel geocoding.
	Pixel geocoding.PixelOptions
	// HTTPClient fetches remote GeoTIFFs; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Product is a raster with an optional time coding.
type Product struct {
	Raster     *geocoding.Raster
	TimeCoding timecoding.TimeCoding
}

// Open loads a JSON descriptor, or a GeoTIFF when path ends in .tif or .tiff.
func Open(ctx context.Context, path string, opts Options) (*Product, error) {
	if isTIFF(path) {
		d := &Descriptor{
			Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			GeoCoding: &GeoCodingDesc{Type: "geotiff", Path: path},
		}
		return d.Build(ctx, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	}
	return Load(ctx, f, opts)
}

// Load decodes a JSON descriptor from r and builds the product.
func Load(ctx context.Context, r io.Reader, opts Options) (*Product, error) {
	var d Descriptor
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptor, err)
	}
	return d.Build(ctx, opts)
}

// Build creates the product. A geotiff geocoding may omit the raster size.
func (d *Descriptor) Build(ctx context.Context, opts Options) (*Product, error) {
	datum, err := geocoding.DatumByName(d.Datum)
	if err != nil {
		return nil, err
	}

	b := builder{ctx: ctx, opts: opts, datum: datum}
	w, h := d.Width, d.Height
	var gc geocoding.GeoCoding
	if d.GeoCoding != nil {
		gc, w, h, err = b.geoCoding(d.GeoCoding, w, h)
		if err != nil {
			return nil, fmt.Errorf("%s geocoding: %w", d.GeoCoding.Type, err)
		}
	}

	raster, err := geocoding.NewRaster(d.Name, w, h)
	if err != nil {
		if gc != nil {
			gc.Dispose()
		}
		return nil, err
	}
	raster.SetGeoCoding(gc)

	p := &Product{Raster: raster}
	if d.TimeCoding != nil {
		p.TimeCoding, err = timeCoding(d.TimeCoding, w, h)
		if err != nil {
			raster.Dispose()
			return nil, fmt.Errorf("%s time coding: %w", d.TimeCoding.Type, err)
		}
	}

	slog.Info("product loaded",
		"name", d.Name, "width", w, "height", h,
		"geocoding", Kind(gc), "timecoding", TimeKind(p.TimeCoding))
	return p, nil
}

type builder struct {
	ctx   context.Context
	opts  Options
	datum geocoding.Datum
}

// geoCoding builds desc for a w x h raster and returns the effective size.
func (b *builder) geoCoding(desc *GeoCodingDesc, w, h int) (geocoding.GeoCoding, int, int, error) {
	if desc.Type == "geotiff" {
		return b.geoTIFF(desc.Path, w, h)
	}
	if w <= 0 || h <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: raster size %dx%d", ErrDescriptor, w, h)
	}

	switch desc.Type {
	case "crs":
		if len(desc.ImageToMap) != 6 {
			return nil, 0, 0, fmt.Errorf("%w: imageToMap needs 6 coefficients, got %d", ErrDescriptor, len(desc.ImageToMap))
		}
		proj := geocoding.ForEPSG(desc.EPSG)
		if proj == nil {
			return nil, 0, 0, fmt.Errorf("%w: EPSG:%d", geotiff.ErrUnsupportedCRS, desc.EPSG)
		}
		c := desc.ImageToMap
		gc, err := geocoding.NewCrsGeoCoding(geocoding.NewAffine(c[0], c[1], c[2], c[3], c[4], c[5]), proj, w, h)
		return gc, w, h, err

	case "tiepoint":
		if desc.LatGrid == nil || desc.LonGrid == nil {
			return nil, 0, 0, fmt.Errorf("%w: tiepoint needs latGrid and lonGrid", ErrDescriptor)
		}
		lat, err := desc.LatGrid.grid("latitude")
		if err != nil {
			return nil, 0, 0, err
		}
		lon, err := desc.LonGrid.grid("longitude")
		if err != nil {
			return nil, 0, 0, err
		}
		gc, err := geocoding.NewTiePointGeoCoding(lat, lon, w, h, b.datum)
		return gc, w, h, err

	case "gcp":
		method, err := geocoding.ParseGcpMethod(strings.ToUpper(desc.Method))
		if err != nil {
			return nil, 0, 0, err
		}
		gc, err := geocoding.NewGcpGeoCoding(method, desc.GCPs, w, h, b.datum)
		return gc, w, h, err

	case "pixel":
		gc, err := geocoding.NewPixelGeoCoding(desc.Latitudes, desc.Longitudes, w, h, b.datum, b.opts.Pixel)
		return gc, w, h, err

	case "combined":
		wrappers := make([]geocoding.CodingWrapper, 0, len(desc.Parts))
		dispose := func() {
			for _, cw := range wrappers {
				cw.GeoCoding.Dispose()
			}
		}
		for i := range desc.Parts {
			part := &desc.Parts[i]
			region := image.Rect(part.Region[0], part.Region[1], part.Region[2], part.Region[3])
			gc, _, _, err := b.geoCoding(&part.GeoCoding, region.Dx(), region.Dy())
			if err != nil {
				dispose()
				return nil, 0, 0, fmt.Errorf("part %d: %w", i, err)
			}
			wrappers = append(wrappers, geocoding.CodingWrapper{GeoCoding: gc, Region: region})
		}
		gc, err := geocoding.NewCombinedGeoCoding(wrappers, w, h)
		if err != nil {
			dispose()
			return nil, 0, 0, err
		}
		return gc, w, h, nil
	}
	return nil, 0, 0, fmt.Errorf("%w: %q", ErrUnknownType, desc.Type)
}

// geoTIFF reads the georeferencing of a local or remote GeoTIFF. A non-zero
// w, h must match the image size.
func (b *builder) geoTIFF(path string, w, h int) (geocoding.GeoCoding, int, int, error) {
	if path == "" {
		return nil, 0, 0, fmt.Errorf("%w: geotiff needs a path", ErrDescriptor)
	}

	var r io.ReadSeeker
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		hr, err := geotiff.NewHTTPRangeReader(b.ctx, path, b.opts.HTTPClient)
		if err != nil {
			return nil, 0, 0, err
		}
		r = hr
	} else {
		if !filepath.IsAbs(path) && b.opts.BaseDir != "" {
			path = filepath.Join(b.opts.BaseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, 0, err
		}
		defer f.Close()
		r = f
	}

	g, err := geotiff.Open(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if (w > 0 || h > 0) && (w != g.Width() || h != g.Height()) {
		return nil, 0, 0, fmt.Errorf("%w: descriptor size %dx%d, image %dx%d",
			geocoding.ErrRasterSize, w, h, g.Width(), g.Height())
	}
	gc, err := g.GeoCoding()
	if err != nil {
		return nil, 0, 0, err
	}
	return gc, g.Width(), g.Height(), nil
}

func (g *GridDesc) grid(name string) (*geocoding.TiePointGrid, error) {
	return geocoding.NewTiePointGrid(name, g.Width, g.Height,
		g.OffsetX, g.OffsetY, g.SubSamplingX, g.SubSamplingY, g.Values)
}

func timeCoding(desc *TimeCodingDesc, w, h int) (timecoding.TimeCoding, error) {
	switch desc.Type {
	case "constant":
		mjd := desc.MJD
		if desc.Time != nil {
			mjd = timecoding.TimeToMJD(*desc.Time)
		}
		return timecoding.NewConstantTimeCoding(mjd), nil
	case "line":
		return timecoding.NewLineTimeCoding(desc.MJDs)
	case "linear":
		start, end := desc.Start, desc.End
		if desc.StartTime != nil {
			start = timecoding.TimeToMJD(*desc.StartTime)
		}
		if desc.EndTime != nil {
			end = timecoding.TimeToMJD(*desc.EndTime)
		}
		return timecoding.NewLinearLineTimeCoding(h, start, end)
	case "pixel":
		return timecoding.NewPixelTimeCoding(desc.MJDs, w, h)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, desc.Type)
}

// Subset derives the product covering subset of p. Codings that cannot be
// transferred are left unset on the result.
func (p *Product) Subset(name string, subset *geocoding.SubsetDef) (*Product, error) {
	raster, err := p.Raster.Subset(name, subset)
	if err != nil {
		return nil, err
	}
	out := &Product{Raster: raster}
	if p.TimeCoding != nil {
		tc, err := timecoding.Subset(p.TimeCoding, subset, p.Raster.SceneRasterWidth(), p.Raster.SceneRasterHeight())
		if err != nil {
			slog.Warn("time coding not transferred", "product", name, "error", err)
		} else {
			out.TimeCoding = tc
		}
	}
	return out, nil
}

// Dispose releases the codings of p.
func (p *Product) Dispose() {
	if p.Raster != nil {
		p.Raster.Dispose()
	}
	p.TimeCoding = nil
}

func isTIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}
