// Package timecoding maps raster pixel positions to acquisition times expressed
// as Modified Julian Dates.
package timecoding

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/akhenakh/rastercoding/geocoding"
)

var (
	ErrNoTimes     = errors.New("no time samples")
	ErrLineCount   = errors.New("invalid line count")
	ErrUnsupported = errors.New("time coding cannot be subset")
)

// TimeCoding converts pixel positions to MJD and back. MJD returns NaN outside
// the valid pixel domain.
type TimeCoding interface {
	MJD(p geocoding.PixelPos) float64
	CanGetPixelPos() bool
	PixelPos(mjd float64) geocoding.PixelPos
}

// mjdEpoch is MJD 0, 1858-11-17T00:00:00Z.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 86400.0

// MJDToTime converts a Modified Julian Date to UTC time, rounded to the
// microsecond resolution of a float64 MJD.
func MJDToTime(mjd float64) time.Time {
	days := math.Floor(mjd)
	us := math.Round((mjd - days) * secondsPerDay * 1e6)
	return mjdEpoch.AddDate(0, 0, int(days)).Add(time.Duration(us) * time.Microsecond)
}

// TimeToMJD converts a time to a Modified Julian Date.
func TimeToMJD(t time.Time) float64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := math.Round(midnight.Sub(mjdEpoch).Hours() / 24)
	return days + t.Sub(midnight).Seconds()/secondsPerDay
}

// ConstantTimeCoding maps every pixel to the same MJD. It has no inverse.
type ConstantTimeCoding struct {
	mjd float64
}

func NewConstantTimeCoding(mjd float64) *ConstantTimeCoding { return &ConstantTimeCoding{mjd: mjd} }

func (c *ConstantTimeCoding) MJD(geocoding.PixelPos) float64 { return c.mjd }

func (c *ConstantTimeCoding) CanGetPixelPos() bool { return false }

func (c *ConstantTimeCoding) PixelPos(float64) geocoding.PixelPos { return geocoding.InvalidPixelPos }

// LineTimeCoding assigns one time per scan line; x is ignored. Valid lines are
// y in [0, lineCount], the upper bound included.
type LineTimeCoding struct {
	lineCount int
	mjds      []float64 // scattered mode
	start     float64   // continuous mode
	interval  float64
	ascending bool
}

// NewLineTimeCoding uses mjds[floor(y)] as the time of line y.
func NewLineTimeCoding(mjds []float64) (*LineTimeCoding, error) {
	if len(mjds) == 0 {
		return nil, ErrNoTimes
	}
	l := &LineTimeCoding{
		lineCount: len(mjds),
		mjds:      append([]float64(nil), mjds...),
		ascending: sort.Float64sAreSorted(mjds),
	}
	for i := 0; i < len(mjds) && l.ascending; i++ {
		if math.IsNaN(mjds[i]) || (i > 0 && mjds[i] == mjds[i-1]) {
			l.ascending = false
		}
	}
	return l, nil
}

// NewLinearLineTimeCoding interpolates linearly from startMJD at y=0 to endMJD
// at the last line, with a line interval of (end-start)/(lineCount-1). Lines
// between the last line and lineCount keep endMJD.
func NewLinearLineTimeCoding(lineCount int, startMJD, endMJD float64) (*LineTimeCoding, error) {
	if lineCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrLineCount, lineCount)
	}
	l := &LineTimeCoding{lineCount: lineCount, start: startMJD}
	if lineCount > 1 {
		l.interval = (endMJD - startMJD) / float64(lineCount-1)
	}
	l.ascending = l.interval > 0
	return l, nil
}

func (l *LineTimeCoding) LineCount() int { return l.lineCount }

// IsLinear reports whether line times are interpolated between a start and
// an end time.
func (l *LineTimeCoding) IsLinear() bool { return l.mjds == nil }

// LineInterval returns the MJD step between lines in continuous mode, and 0 in
// scattered mode.
func (l *LineTimeCoding) LineInterval() float64 { return l.interval }

func (l *LineTimeCoding) MJD(p geocoding.PixelPos) float64 {
	y := p.Y
	if math.IsNaN(y) || y < 0 || y > float64(l.lineCount) {
		return math.NaN()
	}
	if l.mjds != nil {
		return l.mjds[min(int(math.Floor(y)), l.lineCount-1)]
	}
	return l.start + math.Min(y, float64(l.lineCount-1))*l.interval
}

// CanGetPixelPos is true when line times strictly increase.
func (l *LineTimeCoding) CanGetPixelPos() bool { return l.ascending }

// PixelPos returns the line of the given time with x set to 0.
func (l *LineTimeCoding) PixelPos(mjd float64) geocoding.PixelPos {
	if !l.ascending || math.IsNaN(mjd) {
		return geocoding.InvalidPixelPos
	}
	if l.mjds == nil {
		y := (mjd - l.start) / l.interval
		if y < 0 || y > float64(l.lineCount-1) {
			return geocoding.InvalidPixelPos
		}
		return geocoding.PixelPos{X: 0, Y: y}
	}
	n := len(l.mjds)
	if mjd < l.mjds[0] || mjd > l.mjds[n-1] {
		return geocoding.InvalidPixelPos
	}
	// last line whose time is not after mjd
	i := sort.Search(n, func(i int) bool { return l.mjds[i] > mjd }) - 1
	return geocoding.PixelPos{X: 0, Y: float64(i)}
}

// PixelTimeCoding holds one MJD per pixel in row-major order. Tables shorter
// than width*height are accepted; missing trailing pixels resolve to NaN.
type PixelTimeCoding struct {
	width  int
	height int
	mjds   []float64
}

func NewPixelTimeCoding(mjds []float64, width, height int) (*PixelTimeCoding, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if len(mjds) > width*height {
		return nil, fmt.Errorf("%d times for %dx%d pixels", len(mjds), width, height)
	}
	return &PixelTimeCoding{width: width, height: height, mjds: append([]float64(nil), mjds...)}, nil
}

// MJD is defined on [0, width] x [0, height]; the upper edges map to the last
// column and row.
func (c *PixelTimeCoding) MJD(p geocoding.PixelPos) float64 {
	if !p.IsValid() || p.X < 0 || p.Y < 0 || p.X > float64(c.width) || p.Y > float64(c.height) {
		return math.NaN()
	}
	i := min(int(math.Floor(p.X)), c.width-1)
	j := min(int(math.Floor(p.Y)), c.height-1)
	k := j*c.width + i
	if k >= len(c.mjds) {
		return math.NaN()
	}
	return c.mjds[k]
}

func (c *PixelTimeCoding) CanGetPixelPos() bool { return false }

func (c *PixelTimeCoding) PixelPos(float64) geocoding.PixelPos { return geocoding.InvalidPixelPos }
