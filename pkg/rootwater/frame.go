package rootwater

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// FrameOptions control EstimateFrame.
type FrameOptions struct {
	Params Params
	// Safe drops estimates with StepControl below SafeThreshold or a negative uptake.
	Safe bool
	// Workers bounds the columns estimated concurrently; 0 uses GOMAXPROCS.
	Workers int
}

// FrameEstimate holds the per-day results of every column of a profile.
type FrameEstimate struct {
	RWU        *timeseries.Frame
	RWUNoNight *timeseries.Frame
	NSE        *timeseries.Frame
	// Days keeps the full estimates per column, in column order.
	Days [][]DayEstimate
}

// EstimateFrame runs Estimate on every column of f with the same site and
// parameters and gathers the results on a shared daily index.
func EstimateFrame(ctx context.Context, f *timeseries.Frame, opts FrameOptions) (*FrameEstimate, error) {
	if len(f.Columns) == 0 {
		return nil, fmt.Errorf("%w: frame has no columns", ErrEmptySeries)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([][]DayEstimate, len(f.Columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.Columns {
		g.Go(func() error {
			days, err := Estimate(gctx, f.Column(i), opts.Params)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Columns[i], err)
			}
			results[i] = days
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := results[0]
	times := make([]time.Time, len(index))
	for i, d := range index {
		times[i] = d.Day
	}
	out := &FrameEstimate{Days: results}
	rwu := make([][]float64, len(results))
	nonight := make([][]float64, len(results))
	nse := make([][]float64, len(results))
	for c, days := range results {
		rwu[c] = make([]float64, len(times))
		nonight[c] = make([]float64, len(times))
		nse[c] = make([]float64, len(times))
		for r, d := range days {
			rwu[c][r] = d.RWU
			nonight[c][r] = d.RWUNoNight
			nse[c][r] = d.NSE
			if opts.Safe {
				rwu[c][r] = safeValue(d.RWU, d.StepControl)
				nonight[c][r] = safeValue(d.RWUNoNight, d.StepControl)
			}
		}
	}
	out.RWU = &timeseries.Frame{Times: times, Columns: f.Columns, Values: rwu}
	out.RWUNoNight = &timeseries.Frame{Times: times, Columns: f.Columns, Values: nonight}
	out.NSE = &timeseries.Frame{Times: times, Columns: f.Columns, Values: nse}
	return out, nil
}

func safeValue(v float64, stepControl int) float64 {
	if stepControl < SafeThreshold || v < 0 {
		return math.NaN()
	}
	return v
}

// Filtered applies the safe filter to the uptake values of d.
func (d DayEstimate) Filtered() DayEstimate {
	d.RWU = safeValue(d.RWU, d.StepControl)
	d.RWUNoNight = safeValue(d.RWUNoNight, d.StepControl)
	return d
}
