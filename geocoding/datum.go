package geocoding

import (
	"fmt"
	"strings"
)

// Ellipsoid describes the reference ellipsoid of a datum.
type Ellipsoid struct {
	Name              string
	SemiMajor         float64 // meters
	InverseFlattening float64 // 0 for a sphere
}

// Datum is a named geodetic reference frame.
type Datum struct {
	Name      string
	Ellipsoid Ellipsoid
}

var (
	WGS84 = Datum{
		Name:      "WGS84",
		Ellipsoid: Ellipsoid{Name: "WGS 84", SemiMajor: 6378137.0, InverseFlattening: 298.257223563},
	}
	// Sphere is the spherical datum used by Web Mercator style projections.
	Sphere = Datum{
		Name:      "Sphere",
		Ellipsoid: Ellipsoid{Name: "Sphere", SemiMajor: 6378137.0},
	}
)

// SemiMinor returns the polar radius of the ellipsoid.
func (e Ellipsoid) SemiMinor() float64 {
	if e.InverseFlattening == 0 {
		return e.SemiMajor
	}
	return e.SemiMajor * (1 - 1/e.InverseFlattening)
}

// Equal reports whether two datums describe the same reference frame.
func (d Datum) Equal(o Datum) bool {
	return d.Name == o.Name &&
		d.Ellipsoid.SemiMajor == o.Ellipsoid.SemiMajor &&
		d.Ellipsoid.InverseFlattening == o.Ellipsoid.InverseFlattening
}

// Validate rejects datums whose ellipsoid cannot be used for coordinate math.
func (d Datum) Validate() error {
	if d.Ellipsoid.SemiMajor <= 0 {
		return fmt.Errorf("%w: %s has semi-major axis %f", ErrInvalidDatum, d.Name, d.Ellipsoid.SemiMajor)
	}
	if d.Ellipsoid.InverseFlattening < 0 || (d.Ellipsoid.InverseFlattening > 0 && d.Ellipsoid.InverseFlattening <= 1) {
		return fmt.Errorf("%w: %s has inverse flattening %f", ErrInvalidDatum, d.Name, d.Ellipsoid.InverseFlattening)
	}
	return nil
}

func (d Datum) String() string { return d.Name }

// DatumByName resolves the registered datums; empty selects WGS84.
func DatumByName(name string) (Datum, error) {
	switch strings.ToUpper(name) {
	case "", "WGS84", "WGS 84":
		return WGS84, nil
	case "SPHERE":
		return Sphere, nil
	}
	return Datum{}, fmt.Errorf("%w: unknown datum %q", ErrInvalidDatum, name)
}
