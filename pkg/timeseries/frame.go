package timeseries

import (
	"fmt"
	"time"
)

// Frame is a set of columns sharing one time index, e.g. a moisture profile
// with one column per depth.
type Frame struct {
	Times   []time.Time
	Columns []string
	Values  [][]float64 // Values[column][row]
}

// NewFrame validates column lengths and index order.
func NewFrame(times []time.Time, columns []string, values [][]float64) (*Frame, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%w: %d columns, %d value columns", ErrLengthMismatch, len(columns), len(values))
	}
	for c, col := range values {
		if len(col) != len(times) {
			return nil, fmt.Errorf("%w: column %q has %d rows, index has %d", ErrLengthMismatch, columns[c], len(col), len(times))
		}
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("%w: row %d", ErrNotIncreasing, i)
		}
	}
	return &Frame{Times: times, Columns: columns, Values: values}, nil
}

func (f *Frame) Rows() int { return len(f.Times) }

// Column returns column i as a series. The index slice is shared.
func (f *Frame) Column(i int) *Series {
	return &Series{Name: f.Columns[i], Times: f.Times, Values: f.Values[i]}
}

// Localize reinterprets wall-clock labels as times in loc, the way naive
// logger timestamps are pinned to the logger's fixed offset.
func (f *Frame) Localize(loc *time.Location) *Frame {
	out := &Frame{Times: make([]time.Time, len(f.Times)), Columns: f.Columns, Values: f.Values}
	for i, t := range f.Times {
		out.Times[i] = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return out
}
