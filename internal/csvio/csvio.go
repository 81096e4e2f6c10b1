// Package csvio reads and writes logger exports: a header row, a timestamp
// column and one numeric column per sensor.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

var ErrNoColumns = errors.New("csvio: need a timestamp and at least one value column")

// ReadFrame parses a CSV export. Timestamps without an offset are read in
// loc. Empty cells and NA/NaN markers become NaN.
func ReadFrame(r io.Reader, loc *time.Location) (*timeseries.Frame, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, ErrNoColumns
	}
	cols := make([]string, len(header)-1)
	for i, h := range header[1:] {
		cols[i] = strings.TrimSpace(h)
	}

	var times []time.Time
	values := make([][]float64, len(cols))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := dateparse.ParseIn(strings.TrimSpace(rec[0]), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp %q: %w", line, rec[0], err)
		}
		times = append(times, t)
		for c := range cols {
			v, err := parseValue(rec[c+1])
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, cols[c], err)
			}
			values[c] = append(values[c], v)
		}
	}
	for c := range values {
		if values[c] == nil {
			values[c] = []float64{}
		}
	}
	return timeseries.NewFrame(times, cols, values)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteFrame writes f with RFC 3339 timestamps; NaN is written empty.
func WriteFrame(w io.Writer, f *timeseries.Frame, indexName string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{indexName}, f.Columns...)); err != nil {
		return err
	}
	row := make([]string, len(f.Columns)+1)
	for i, t := range f.Times {
		row[0] = t.Format(time.RFC3339)
		for c := range f.Columns {
			v := f.Values[c][i]
			if math.IsNaN(v) {
				row[c+1] = ""
			} else {
				row[c+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
