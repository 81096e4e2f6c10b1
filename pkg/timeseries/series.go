// Package timeseries holds the in-memory sensor series the estimators work on:
// a strictly increasing time index with float values, NaN marking gaps.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrLengthMismatch   = errors.New("timeseries: times and values differ in length")
	ErrNotIncreasing    = errors.New("timeseries: times must be strictly increasing")
	ErrEmpty            = errors.New("timeseries: empty series")
	ErrInsufficientData = errors.New("timeseries: not enough points")
)

// Series is a single sensor signal, e.g. one soil moisture probe in vol.%.
type Series struct {
	Name   string
	Times  []time.Time
	Values []float64
}

// New validates and builds a series. Slices are copied.
func New(name string, times []time.Time, values []float64) (*Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("%w: %d times, %d values", ErrLengthMismatch, len(times), len(values))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("%w: index %d (%s)", ErrNotIncreasing, i, times[i].Format(time.RFC3339))
		}
	}
	s := &Series{
		Name:   name,
		Times:  append([]time.Time(nil), times...),
		Values: append([]float64(nil), values...),
	}
	return s, nil
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Times)
}

// Append adds a reading after the last label.
func (s *Series) Append(t time.Time, v float64) error {
	if n := len(s.Times); n > 0 && !t.After(s.Times[n-1]) {
		return fmt.Errorf("%w: %s is not after %s", ErrNotIncreasing,
			t.Format(time.RFC3339), s.Times[n-1].Format(time.RFC3339))
	}
	s.Times = append(s.Times, t)
	s.Values = append(s.Values, v)
	return nil
}

// Last returns the last label and value.
func (s *Series) Last() (time.Time, float64, bool) {
	if s.Len() == 0 {
		return time.Time{}, math.NaN(), false
	}
	n := len(s.Times) - 1
	return s.Times[n], s.Values[n], true
}

// lowerBound is the first index with Times[i] >= t.
func (s *Series) lowerBound(t time.Time) int {
	return sort.Search(len(s.Times), func(i int) bool { return !s.Times[i].Before(t) })
}

// upperBound is the first index with Times[i] > t.
func (s *Series) upperBound(t time.Time) int {
	return sort.Search(len(s.Times), func(i int) bool { return s.Times[i].After(t) })
}

// Bounds returns the half-open index range [lo, hi) of labels within [from, to].
func (s *Series) Bounds(from, to time.Time) (int, int) {
	lo, hi := s.lowerBound(from), s.upperBound(to)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Slice returns the labels within [from, to], both ends inclusive.
// The result shares no memory with s.
func (s *Series) Slice(from, to time.Time) *Series {
	lo, hi := s.Bounds(from, to)
	return &Series{
		Name:   s.Name,
		Times:  append([]time.Time(nil), s.Times[lo:hi]...),
		Values: append([]float64(nil), s.Values[lo:hi]...),
	}
}

// Index returns the position of an exact label.
func (s *Series) Index(t time.Time) (int, bool) {
	i := s.lowerBound(t)
	if i < len(s.Times) && s.Times[i].Equal(t) {
		return i, true
	}
	return -1, false
}

// At returns the value at an exact label.
func (s *Series) At(t time.Time) (float64, bool) {
	i, ok := s.Index(t)
	if !ok {
		return math.NaN(), false
	}
	return s.Values[i], true
}

// Nearest returns the index of the label closest to t. Ties go to the later label.
func (s *Series) Nearest(t time.Time) (int, bool) {
	n := len(s.Times)
	if n == 0 {
		return -1, false
	}
	i := s.lowerBound(t)
	switch {
	case i == 0:
		return 0, true
	case i == n:
		return n - 1, true
	}
	left := t.Sub(s.Times[i-1])
	right := s.Times[i].Sub(t)
	if left < right {
		return i - 1, true
	}
	return i, true
}

// NearestTime is Nearest returning the label itself.
func (s *Series) NearestTime(t time.Time) (time.Time, bool) {
	i, ok := s.Nearest(t)
	if !ok {
		return time.Time{}, false
	}
	return s.Times[i], true
}

// Diff returns v[i]-v[i-n]; the first n values are NaN.
func (s *Series) Diff(n int) *Series {
	out := &Series{
		Name:   s.Name,
		Times:  append([]time.Time(nil), s.Times...),
		Values: make([]float64, len(s.Values)),
	}
	for i := range out.Values {
		if i < n || n < 0 {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = s.Values[i] - s.Values[i-n]
	}
	return out
}

// Step returns the most frequent sampling interval. Ties go to the shorter one.
func (s *Series) Step() (time.Duration, error) {
	if s.Len() < 2 {
		return 0, ErrInsufficientData
	}
	counts := make(map[time.Duration]int)
	for i := 1; i < len(s.Times); i++ {
		counts[s.Times[i].Sub(s.Times[i-1])]++
	}
	var best time.Duration
	bestN := 0
	for d, c := range counts {
		if c > bestN || (c == bestN && d < best) {
			best, bestN = d, c
		}
	}
	return best, nil
}

// Days lists every calendar day (midnight in loc) from the first to the last label.
func (s *Series) Days(loc *time.Location) []time.Time {
	if s.Len() == 0 {
		return nil
	}
	if loc == nil {
		loc = s.Times[0].Location()
	}
	first := Midnight(s.Times[0], loc)
	last := Midnight(s.Times[len(s.Times)-1], loc)
	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// In returns a copy with every label converted to loc.
func (s *Series) In(loc *time.Location) *Series {
	out := &Series{Name: s.Name, Times: make([]time.Time, len(s.Times)), Values: append([]float64(nil), s.Values...)}
	for i, t := range s.Times {
		out.Times[i] = t.In(loc)
	}
	return out
}

// TrimBefore drops every label before t in place.
func (s *Series) TrimBefore(t time.Time) {
	i := s.lowerBound(t)
	if i == 0 {
		return
	}
	s.Times = append(s.Times[:0], s.Times[i:]...)
	s.Values = append(s.Values[:0], s.Values[i:]...)
}

// Midnight is the start of the calendar day of t in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
