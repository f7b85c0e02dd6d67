package timecoding

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/rastercoding/geocoding"
)

func TestMJDConversion(t *testing.T) {
	testCases := []struct {
		name string
		t    time.Time
		mjd  float64
	}{
		{"epoch", time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC), 0},
		{"j2000 noon", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 51544.5},
		{"unix epoch", time.Unix(0, 0), 40587},
		{"quarter day", time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), 60310.25},
		{"before epoch", time.Date(1858, 11, 16, 18, 0, 0, 0, time.UTC), -0.25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.mjd, TimeToMJD(tc.t), 1e-9)
			assert.WithinDuration(t, tc.t, MJDToTime(tc.mjd), time.Microsecond)
		})
	}

	t.Run("non utc", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*3600)
		assert.InDelta(t, 60310.0, TimeToMJD(time.Date(2024, 1, 1, 2, 0, 0, 0, loc)), 1e-9)
	})
}

func TestConstantTimeCoding(t *testing.T) {
	c := NewConstantTimeCoding(60000)
	assert.Equal(t, 60000.0, c.MJD(geocoding.PixelPos{X: 10, Y: 10}))
	assert.Equal(t, 60000.0, c.MJD(geocoding.PixelPos{X: -5, Y: 1e9}))
	assert.False(t, c.CanGetPixelPos())
	assert.False(t, c.PixelPos(60000).IsValid())
}

func TestLinearLineTimeCoding(t *testing.T) {
	// 10 lines from 100 to 109, one unit per line
	l, err := NewLinearLineTimeCoding(10, 100, 109)
	require.NoError(t, err)
	assert.Equal(t, 10, l.LineCount())
	assert.Equal(t, 1.0, l.LineInterval())
	assert.True(t, l.IsLinear())

	testCases := []struct {
		name string
		y    float64
		want float64
	}{
		{"first line", 0, 100},
		{"half line", 0.5, 100.5},
		{"interior", 4.25, 104.25},
		{"last line", 9, 109},
		{"past last line", 9.5, 109},
		{"line count", 10, 109},
		{"just above line count", 10.0001, math.NaN()},
		{"negative", -0.0001, math.NaN()},
		{"undefined", math.NaN(), math.NaN()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := l.MJD(geocoding.PixelPos{X: 123, Y: tc.y})
			if math.IsNaN(tc.want) {
				assert.True(t, math.IsNaN(got), "got %f", got)
				return
			}
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	t.Run("inverse", func(t *testing.T) {
		require.True(t, l.CanGetPixelPos())
		p := l.PixelPos(104.25)
		assert.Equal(t, 0.0, p.X)
		assert.InDelta(t, 4.25, p.Y, 1e-12)
		assert.False(t, l.PixelPos(99).IsValid())
		assert.False(t, l.PixelPos(110).IsValid())
	})

	t.Run("single line", func(t *testing.T) {
		one, err := NewLinearLineTimeCoding(1, 5, 7)
		require.NoError(t, err)
		assert.Equal(t, 5.0, one.MJD(geocoding.PixelPos{Y: 0.5}))
		assert.Equal(t, 5.0, one.MJD(geocoding.PixelPos{Y: 1}))
		assert.False(t, one.CanGetPixelPos())
	})

	t.Run("invalid line count", func(t *testing.T) {
		_, err := NewLinearLineTimeCoding(0, 5, 7)
		assert.ErrorIs(t, err, ErrLineCount)
	})
}

func TestLineTimeCoding(t *testing.T) {
	l, err := NewLineTimeCoding([]float64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.False(t, l.IsLinear())

	assert.Equal(t, 10.0, l.MJD(geocoding.PixelPos{Y: 0}))
	assert.Equal(t, 10.0, l.MJD(geocoding.PixelPos{Y: 0.99}))
	assert.Equal(t, 30.0, l.MJD(geocoding.PixelPos{Y: 2.5}))
	assert.Equal(t, 40.0, l.MJD(geocoding.PixelPos{Y: 4}))
	assert.True(t, math.IsNaN(l.MJD(geocoding.PixelPos{Y: 4.01})))

	require.True(t, l.CanGetPixelPos())
	assert.Equal(t, geocoding.PixelPos{X: 0, Y: 2}, l.PixelPos(35))
	assert.Equal(t, geocoding.PixelPos{X: 0, Y: 0}, l.PixelPos(10))
	assert.Equal(t, geocoding.PixelPos{X: 0, Y: 3}, l.PixelPos(40))
	assert.False(t, l.PixelPos(9).IsValid())
	assert.False(t, l.PixelPos(41).IsValid())

	notAscending := []struct {
		name string
		mjds []float64
	}{
		{"repeated", []float64{10, 10, 30}},
		{"descending", []float64{30, 20, 10}},
		{"leading nan", []float64{math.NaN(), 10, 20}},
		{"inner nan", []float64{10, math.NaN(), 30}},
		{"single nan", []float64{math.NaN()}},
	}
	for _, tc := range notAscending {
		t.Run("not ascending "+tc.name, func(t *testing.T) {
			d, err := NewLineTimeCoding(tc.mjds)
			require.NoError(t, err)
			assert.False(t, d.CanGetPixelPos())
			assert.False(t, d.PixelPos(10).IsValid())
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, err := NewLineTimeCoding(nil)
		assert.ErrorIs(t, err, ErrNoTimes)
	})
}

func TestPixelTimeCoding(t *testing.T) {
	t.Run("full table", func(t *testing.T) {
		c, err := NewPixelTimeCoding([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, 1.0, c.MJD(geocoding.PixelPos{X: 0, Y: 0}))
		assert.Equal(t, 6.0, c.MJD(geocoding.PixelPos{X: 2.5, Y: 1.5}))
		// inclusive upper edges map to the last column and row
		assert.Equal(t, 6.0, c.MJD(geocoding.PixelPos{X: 3, Y: 2}))
		assert.True(t, math.IsNaN(c.MJD(geocoding.PixelPos{X: 3.1, Y: 0})))
		assert.False(t, c.CanGetPixelPos())
		assert.False(t, c.PixelPos(1).IsValid())
	})

	t.Run("undersized table", func(t *testing.T) {
		c, err := NewPixelTimeCoding([]float64{1, 2, 3}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3.0, c.MJD(geocoding.PixelPos{X: 0.5, Y: 1.5}))
		assert.True(t, math.IsNaN(c.MJD(geocoding.PixelPos{X: 1.5, Y: 1.5})))
	})

	t.Run("oversized table", func(t *testing.T) {
		_, err := NewPixelTimeCoding(make([]float64, 5), 2, 2)
		assert.Error(t, err)
	})
}

func TestSubset(t *testing.T) {
	region := image.Rect(2, 2, 8, 8)
	subset := &geocoding.SubsetDef{Region: &region, SubSamplingX: 2, SubSamplingY: 2}

	t.Run("linear", func(t *testing.T) {
		l, err := NewLinearLineTimeCoding(10, 100, 109)
		require.NoError(t, err)
		tc, err := Subset(l, subset, 10, 10)
		require.NoError(t, err)

		sub, ok := tc.(*LineTimeCoding)
		require.True(t, ok)
		assert.True(t, sub.IsLinear())
		assert.Equal(t, 3, sub.LineCount())
		for j := 0; j < 3; j++ {
			assert.InDelta(t, l.MJD(geocoding.PixelPos{Y: float64(2 + 2*j)}), sub.MJD(geocoding.PixelPos{Y: float64(j)}), 1e-12)
		}
	})

	t.Run("scattered", func(t *testing.T) {
		l, err := NewLineTimeCoding([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
		require.NoError(t, err)
		tc, err := Subset(l, subset, 10, 10)
		require.NoError(t, err)
		assert.Equal(t, 6.0, tc.MJD(geocoding.PixelPos{Y: 2}))
	})

	t.Run("pixel", func(t *testing.T) {
		mjds := make([]float64, 100)
		for i := range mjds {
			mjds[i] = float64(i)
		}
		c, err := NewPixelTimeCoding(mjds, 10, 10)
		require.NoError(t, err)
		tc, err := Subset(c, subset, 10, 10)
		require.NoError(t, err)
		// (1, 2) -> source (4, 6)
		assert.Equal(t, 64.0, tc.MJD(geocoding.PixelPos{X: 1, Y: 2}))
	})

	t.Run("constant", func(t *testing.T) {
		tc, err := Subset(NewConstantTimeCoding(7), nil, 10, 10)
		require.NoError(t, err)
		assert.Equal(t, 7.0, tc.MJD(geocoding.PixelPos{}))
	})

	t.Run("invalid subset", func(t *testing.T) {
		outside := image.Rect(5, 5, 20, 20)
		_, err := Subset(NewConstantTimeCoding(7), &geocoding.SubsetDef{Region: &outside}, 10, 10)
		assert.Error(t, err)
	})
}
