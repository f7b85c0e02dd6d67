package geocoding

import (
	"fmt"
	"math"
)

// TiePointGrid is a coarse regular grid of samples. Node (i, j) sits at pixel
// position (OffsetX + i*SubSamplingX, OffsetY + j*SubSamplingY).
type TiePointGrid struct {
	Name         string
	Width        int
	Height       int
	OffsetX      float64
	OffsetY      float64
	SubSamplingX float64
	SubSamplingY float64
	values       []float64
}

func NewTiePointGrid(name string, width, height int, offsetX, offsetY, subSamplingX, subSamplingY float64, values []float64) (*TiePointGrid, error) {
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("%w: %s is %dx%d, need at least 2x2 nodes", ErrInvalidGrid, name, width, height)
	}
	if !(subSamplingX > 0) || !(subSamplingY > 0) {
		return nil, fmt.Errorf("%w: %s has sub-sampling (%f, %f)", ErrInvalidGrid, name, subSamplingX, subSamplingY)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("%w: %s has %d values for %dx%d nodes", ErrInvalidGrid, name, len(values), width, height)
	}
	v := make([]float64, len(values))
	copy(v, values)
	return &TiePointGrid{
		Name:         name,
		Width:        width,
		Height:       height,
		OffsetX:      offsetX,
		OffsetY:      offsetY,
		SubSamplingX: subSamplingX,
		SubSamplingY: subSamplingY,
		values:       v,
	}, nil
}

// Value returns the node value at grid index (i, j).
func (g *TiePointGrid) Value(i, j int) float64 { return g.values[j*g.Width+i] }

// Values returns a copy of the node values in row-major order.
func (g *TiePointGrid) Values() []float64 {
	v := make([]float64, len(g.values))
	copy(v, g.values)
	return v
}

// NodePos returns the pixel position of node (i, j).
func (g *TiePointGrid) NodePos(i, j int) PixelPos {
	return PixelPos{
		X: g.OffsetX + float64(i)*g.SubSamplingX,
		Y: g.OffsetY + float64(j)*g.SubSamplingY,
	}
}

// PixelValue bilinearly interpolates the grid at pixel position (x, y). Positions
// beyond the outer nodes are extrapolated from the border cells.
func (g *TiePointGrid) PixelValue(x, y float64) float64 {
	fi := (x - g.OffsetX) / g.SubSamplingX
	fj := (y - g.OffsetY) / g.SubSamplingY
	if math.IsNaN(fi) || math.IsNaN(fj) {
		return math.NaN()
	}
	i := clampInt(int(math.Floor(fi)), 0, g.Width-2)
	j := clampInt(int(math.Floor(fj)), 0, g.Height-2)
	wi := fi - float64(i)
	wj := fj - float64(j)
	return bilinear(g.Value(i, j), g.Value(i+1, j), g.Value(i, j+1), g.Value(i+1, j+1), wi, wj)
}

// unwrapped returns a copy whose values never jump by more than 180 between
// neighbouring nodes, for longitude grids crossing the 180 meridian.
func (g *TiePointGrid) unwrapped() *TiePointGrid {
	u := *g
	u.values = make([]float64, len(g.values))
	copy(u.values, g.values)
	for j := 0; j < g.Height; j++ {
		if j > 0 {
			prev := u.values[(j-1)*g.Width]
			u.values[j*g.Width] = prev + lonDelta(u.values[j*g.Width], prev)
		}
		for i := 1; i < g.Width; i++ {
			k := j*g.Width + i
			u.values[k] = u.values[k-1] + lonDelta(u.values[k], u.values[k-1])
		}
	}
	return &u
}

func bilinear(v00, v10, v01, v11, wi, wj float64) float64 {
	return (1-wj)*((1-wi)*v00+wi*v10) + wj*((1-wi)*v01+wi*v11)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
