package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

func halfHourly(values ...float64) *Series {
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = t0.Add(time.Duration(i) * 30 * time.Minute)
	}
	s, err := New("sm", times, values)
	if err != nil {
		panic(err)
	}
	return s
}

func TestNewValidates(t *testing.T) {
	_, err := New("x", []time.Time{t0}, []float64{1, 2})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = New("x", []time.Time{t0, t0}, []float64{1, 2})
	require.ErrorIs(t, err, ErrNotIncreasing)
}

func TestAppendRejectsOlderLabel(t *testing.T) {
	s := halfHourly(1, 2)
	require.ErrorIs(t, s.Append(t0, 3), ErrNotIncreasing)
	require.NoError(t, s.Append(t0.Add(time.Hour), 3))
	assert.Equal(t, 3, s.Len())
}

func TestSliceIsInclusive(t *testing.T) {
	s := halfHourly(0, 1, 2, 3, 4)
	got := s.Slice(t0.Add(30*time.Minute), t0.Add(90*time.Minute))
	assert.Equal(t, []float64{1, 2, 3}, got.Values)

	empty := s.Slice(t0.Add(10*time.Hour), t0.Add(11*time.Hour))
	assert.Equal(t, 0, empty.Len())
}

func TestNearestTiesGoToLaterLabel(t *testing.T) {
	s := halfHourly(0, 1, 2)
	i, ok := s.Nearest(t0.Add(15 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, i)

	i, _ = s.Nearest(t0.Add(14 * time.Minute))
	assert.Equal(t, 0, i)

	i, _ = s.Nearest(t0.Add(-time.Hour))
	assert.Equal(t, 0, i)

	i, _ = s.Nearest(t0.Add(24 * time.Hour))
	assert.Equal(t, 2, i)
}

func TestDiff(t *testing.T) {
	d := halfHourly(1, 2, 4, 8).Diff(2)
	assert.True(t, math.IsNaN(d.Values[0]))
	assert.True(t, math.IsNaN(d.Values[1]))
	assert.Equal(t, []float64{3, 6}, d.Values[2:])
}

func TestStepIsModalInterval(t *testing.T) {
	s := halfHourly(1, 2, 3, 4)
	require.NoError(t, s.Append(t0.Add(5*time.Hour), 5))
	step, err := s.Step()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, step)

	_, err = halfHourly(1).Step()
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDaysCoverFirstToLast(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	s, err := New("sm", []time.Time{t0.Add(-30 * time.Minute), t0.Add(49 * time.Hour)}, []float64{1, 2})
	require.NoError(t, err)
	days := s.Days(loc)
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, loc), days[0])
	assert.Equal(t, time.Date(2019, 6, 3, 0, 0, 0, 0, loc), days[2])
}

func TestTrimBefore(t *testing.T) {
	s := halfHourly(0, 1, 2, 3)
	s.TrimBefore(t0.Add(time.Hour))
	assert.Equal(t, []float64{2, 3}, s.Values)
	assert.Equal(t, t0.Add(time.Hour), s.Times[0])
}

func TestFrameLocalize(t *testing.T) {
	loc := time.FixedZone("Etc/GMT-1", 3600)
	f, err := NewFrame([]time.Time{t0}, []string{"a"}, [][]float64{{1}})
	require.NoError(t, err)
	got := f.Localize(loc)
	assert.Equal(t, 0, got.Times[0].Hour())
	assert.Equal(t, t0.Add(-time.Hour), got.Times[0].UTC())

	_, err = NewFrame([]time.Time{t0}, []string{"a"}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
