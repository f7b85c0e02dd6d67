package geocoding

import (
	"fmt"
	"math"
)

// Affine is a 2D affine transform in GDAL coefficient order:
//
//	X = a[0] + a[1]*x + a[2]*y
//	Y = a[3] + a[4]*x + a[5]*y
type Affine [6]float64

func NewAffine(c0, c1, c2, c3, c4, c5 float64) *Affine {
	a := Affine{c0, c1, c2, c3, c4, c5}
	return &a
}

// Translation creates a translation transform from (offx, offy).
func Translation(offx, offy float64) *Affine {
	return NewAffine(offx, 1, 0, offy, 0, 1)
}

// Scale creates a scale transform from (scalex, scaley).
func Scale(scalex, scaley float64) *Affine {
	return NewAffine(0, scalex, 0, 0, 0, scaley)
}

func (a *Affine) Determinant() float64 { return a[1]*a[5] - a[2]*a[4] }

func (a *Affine) IsInvertible() bool {
	d := a.Determinant()
	return d != 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

// Inverse returns the inverse transform, or ErrSingularTransform.
func (a *Affine) Inverse() (*Affine, error) {
	if !a.IsInvertible() {
		return nil, fmt.Errorf("%w: determinant %g", ErrSingularTransform, a.Determinant())
	}
	idet := 1.0 / a.Determinant()
	res := Affine{0, a[5] * idet, -a[2] * idet, 0, -a[4] * idet, a[1] * idet}
	res[0], res[3] = res.Transform(-a[0], -a[3])
	return &res, nil
}

// Multiply returns the transform applying b first and then a.
func (a *Affine) Multiply(b *Affine) *Affine {
	return NewAffine(
		a[0]+a[1]*b[0]+a[2]*b[3],
		a[1]*b[1]+a[2]*b[4],
		a[1]*b[2]+a[2]*b[5],
		a[3]+a[4]*b[0]+a[5]*b[3],
		a[4]*b[1]+a[5]*b[4],
		a[4]*b[2]+a[5]*b[5],
	)
}

// Transform applies the affine transform to the point (x, y).
func (a *Affine) Transform(x, y float64) (float64, float64) {
	return a[0] + a[1]*x + a[2]*y, a[3] + a[4]*x + a[5]*y
}

func (a *Affine) String() string {
	return fmt.Sprintf("Affine(%v, %v, %v, %v, %v, %v)", a[0], a[1], a[2], a[3], a[4], a[5])
}
