// Package rational fits rational functions R(x, y) = P(x, y) / Q(x, y) to
// scattered bivariate samples by (reweighted) linear least squares.
package rational

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

const rankTolerance = 1e-12

var (
	ErrNoSamples     = errors.New("no samples")
	ErrSampleLength  = errors.New("sample slices differ in length")
	ErrInvalidDegree = errors.New("invalid degree")
)

// Model is an immutable rational function fitted to a fixed sample set.
//
// Terms of a polynomial of degree n are ordered 1, x, y, x², xy, y², x³, ...
// The constant denominator coefficient is fixed to 1.
type Model struct {
	p, q   int
	num    []float64
	den    []float64
	x0, xs float64
	y0, ys float64
	rmse   float64
	maxErr float64
	n      int
}

// TermCount returns the number of terms of a bivariate polynomial of the given
// degree.
func TermCount(degree int) int { return (degree + 1) * (degree + 2) / 2 }

// NewModel fits a rational function of numerator degree p and denominator
// degree q to the samples g(x, y). Each of the iterations reweights the
// linearized equations by the inverse of the previous denominator.
//
// Rank deficient systems (too few or collinear samples) are accepted and yield
// the minimum-norm model.
func NewModel(p, q int, x, y, g []float64, iterations int) (*Model, error) {
	if p < 0 || q < 0 {
		return nil, fmt.Errorf("%w: p=%d q=%d", ErrInvalidDegree, p, q)
	}
	if len(x) == 0 {
		return nil, ErrNoSamples
	}
	if len(y) != len(x) || len(g) != len(x) {
		return nil, fmt.Errorf("%w: x=%d y=%d g=%d", ErrSampleLength, len(x), len(y), len(g))
	}
	if iterations < 0 {
		iterations = 0
	}

	m := &Model{p: p, q: q, n: len(x)}
	m.x0, m.xs = normalization(x)
	m.y0, m.ys = normalization(y)

	tp, tq := TermCount(p), TermCount(q)
	cols := tp + tq - 1
	rows := len(x)

	tx := make([][]float64, rows)
	for i := range x {
		tx[i] = terms(max(p, q), m.normX(x[i]), m.normY(y[i]), nil)
	}

	weights := make([]float64, rows)
	for i := range weights {
		weights[i] = 1
	}
	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	var sol mat.VecDense

	for it := 0; it <= iterations; it++ {
		for i := 0; i < rows; i++ {
			w := weights[i]
			for k := 0; k < tp; k++ {
				a.Set(i, k, w*tx[i][k])
			}
			for l := 1; l < tq; l++ {
				a.Set(i, tp+l-1, -w*g[i]*tx[i][l])
			}
			b.SetVec(i, w*g[i])
		}
		if rank := minNormSolve(&sol, a, b); rank < cols {
			slog.Debug("rank deficient rational fit", "p", p, "q", q, "samples", rows, "rank", rank, "terms", cols)
		}
		m.setCoefficients(sol.RawVector().Data, tp, tq)
		if q == 0 {
			break
		}
		for i := 0; i < rows; i++ {
			den := dot(m.den, tx[i])
			if den != 0 && !math.IsNaN(den) && !math.IsInf(den, 0) {
				weights[i] = 1 / den
			}
		}
	}

	var sum float64
	for i := range x {
		e := math.Abs(m.Value(x[i], y[i]) - g[i])
		sum += e * e
		if e > m.maxErr || math.IsNaN(e) {
			m.maxErr = e
		}
	}
	m.rmse = math.Sqrt(sum / float64(rows))
	return m, nil
}

// minNormSolve overwrites dst with the minimum-norm least squares solution of
// a*x = b and returns the effective rank of a. Singular values below
// rankTolerance times the largest are dropped, so collinear samples and
// too-few-sample systems still produce a bounded solution.
func minNormSolve(dst *mat.VecDense, a *mat.Dense, b *mat.VecDense) int {
	_, cols := a.Dims()
	dst.Reset()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		dst.ReuseAsVec(cols)
		return 0
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		dst.ReuseAsVec(cols)
		return 0
	}
	svd.SolveVecTo(dst, b, rank)
	return rank
}

func (m *Model) setCoefficients(c []float64, tp, tq int) {
	m.num = make([]float64, tp)
	copy(m.num, c[:tp])
	m.den = make([]float64, tq)
	m.den[0] = 1
	copy(m.den[1:], c[tp:])
}

// Value evaluates the fitted function at (x, y).
func (m *Model) Value(x, y float64) float64 {
	t := terms(max(m.p, m.q), m.normX(x), m.normY(y), nil)
	return dot(m.num, t) / dot(m.den, t)
}

// Degrees returns the numerator and denominator degrees.
func (m *Model) Degrees() (p, q int) { return m.p, m.q }

// Coefficients returns copies of the numerator and denominator coefficients, in
// normalized coordinates.
func (m *Model) Coefficients() (num, den []float64) {
	num = append([]float64(nil), m.num...)
	den = append([]float64(nil), m.den...)
	return
}

// RMSE returns the root mean square error over the training samples.
func (m *Model) RMSE() float64 { return m.rmse }

// MaxError returns the largest absolute error over the training samples.
func (m *Model) MaxError() float64 { return m.maxErr }

// SampleCount returns the number of samples the model was fitted to.
func (m *Model) SampleCount() int { return m.n }

func (m *Model) String() string {
	return fmt.Sprintf("rational(P=%d, Q=%d, samples=%d, rmse=%g)", m.p, m.q, m.n, m.rmse)
}

func (m *Model) normX(x float64) float64 { return (x - m.x0) / m.xs }
func (m *Model) normY(y float64) float64 { return (y - m.y0) / m.ys }

// normalization returns the mean and the largest deviation from it.
func normalization(v []float64) (mean, scale float64) {
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	for _, x := range v {
		scale = math.Max(scale, math.Abs(x-mean))
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	return mean, scale
}

// terms appends the monomials of the given degree evaluated at (x, y) to dst.
func terms(degree int, x, y float64, dst []float64) []float64 {
	for n := 0; n <= degree; n++ {
		for k := 0; k <= n; k++ {
			dst = append(dst, math.Pow(x, float64(n-k))*math.Pow(y, float64(k)))
		}
	}
	return dst
}

// dot multiplies c with the leading len(c) entries of t.
func dot(c, t []float64) float64 {
	var s float64
	for i, v := range c {
		s += v * t[i]
	}
	return s
}
