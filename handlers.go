package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/product"
	"github.com/akhenakh/rastercoding/timecoding"
)

// maxSubsetBody bounds the size of subset request bodies.
const maxSubsetBody = 1 << 16

type api struct {
	store   *store
	metrics *metrics
}

type geoResponse struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type mjdResponse struct {
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	MJD  float64   `json:"mjd"`
	Time time.Time `json:"time"`
}

type subsetResponse struct {
	ID   string       `json:"id"`
	Info product.Info `json:"info"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// routes registers every query twice: for the root product and for derived
// rasters under /rasters/{id}.
func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/rasters/{id}"} {
		mux.HandleFunc("GET "+prefix+"/info", a.info)
		mux.HandleFunc("GET "+prefix+"/pixelToGeo/{x}/{y}", a.pixelToGeo)
		mux.HandleFunc("GET "+prefix+"/geoToPixel/{lat}/{lon}", a.geoToPixel)
		mux.HandleFunc("GET "+prefix+"/mjd/{x}/{y}", a.mjd)
		mux.HandleFunc("POST "+prefix+"/subset", a.subset)
	}
	return mux
}

func (a *api) product(w http.ResponseWriter, r *http.Request) (*product.Product, bool) {
	p, err := a.store.get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return p, true
}

func (a *api) info(w http.ResponseWriter, r *http.Request) {
	p, ok := a.product(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Info())
}

func (a *api) pixelToGeo(w http.ResponseWriter, r *http.Request) {
	p, ok := a.product(w, r)
	if !ok {
		return
	}
	x, y, err := floatParams(r, "x", "y")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	gc := p.Raster.GeoCoding()
	if gc == nil || !gc.CanGetGeoPos() {
		writeError(w, http.StatusNotImplemented, errors.New("raster has no forward geocoding"))
		return
	}

	g := gc.GeoPos(geocoding.PixelPos{X: x, Y: y})
	a.metrics.observeQuery("pixelToGeo", g.IsValid())
	if !g.IsValid() {
		writeError(w, http.StatusNotFound, fmt.Errorf("no geo position for pixel (%g, %g)", x, y))
		return
	}
	writeJSON(w, http.StatusOK, geoResponse{X: x, Y: y, Lat: g.Lat, Lon: g.Lon})
}

func (a *api) geoToPixel(w http.ResponseWriter, r *http.Request) {
	p, ok := a.product(w, r)
	if !ok {
		return
	}
	lat, lon, err := floatParams(r, "lat", "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	gc := p.Raster.GeoCoding()
	if gc == nil || !gc.CanGetPixelPos() {
		writeError(w, http.StatusNotImplemented, errors.New("raster has no inverse geocoding"))
		return
	}

	px := gc.PixelPos(geocoding.GeoPos{Lat: lat, Lon: lon})
	a.metrics.observeQuery("geoToPixel", px.IsValid())
	if !px.IsValid() {
		writeError(w, http.StatusNotFound, fmt.Errorf("no pixel for lat %g lon %g", lat, lon))
		return
	}
	writeJSON(w, http.StatusOK, geoResponse{X: px.X, Y: px.Y, Lat: lat, Lon: lon})
}

func (a *api) mjd(w http.ResponseWriter, r *http.Request) {
	p, ok := a.product(w, r)
	if !ok {
		return
	}
	x, y, err := floatParams(r, "x", "y")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p.TimeCoding == nil {
		writeError(w, http.StatusNotImplemented, errors.New("raster has no time coding"))
		return
	}

	mjd := p.TimeCoding.MJD(geocoding.PixelPos{X: x, Y: y})
	defined := !math.IsNaN(mjd)
	a.metrics.observeQuery("mjd", defined)
	if !defined {
		writeError(w, http.StatusNotFound, fmt.Errorf("no time for pixel (%g, %g)", x, y))
		return
	}
	writeJSON(w, http.StatusOK, mjdResponse{X: x, Y: y, MJD: mjd, Time: timecoding.MJDToTime(mjd)})
}

func (a *api) subset(w http.ResponseWriter, r *http.Request) {
	var def geocoding.SubsetDef
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubsetBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid subset: %w", err))
		return
	}

	id, p, err := a.store.subset(r.PathValue("id"), &def)
	switch {
	case errors.Is(err, errUnknownRaster):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, geocoding.ErrInvalidSubset):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		slog.Error("subset failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, subsetResponse{ID: id, Info: p.Info()})
}

func floatParams(r *http.Request, a, b string) (float64, float64, error) {
	va, err := strconv.ParseFloat(r.PathValue(a), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %q", a, r.PathValue(a))
	}
	vb, err := strconv.ParseFloat(r.PathValue(b), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %q", b, r.PathValue(b))
	}
	if math.IsNaN(va) || math.IsNaN(vb) {
		return 0, 0, fmt.Errorf("invalid %s/%s: NaN", a, b)
	}
	return va, vb, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
