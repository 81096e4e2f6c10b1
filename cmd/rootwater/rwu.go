package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/csvio"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

func (a *app) rwuCmd() *cobra.Command {
	var (
		site      model.Probe
		params    = rootwater.DefaultParams()
		safe      bool
		format    string
		output    string
		workers   int
		utcOffset float64
	)
	site.Latitude = params.Observer.Latitude
	site.Longitude = params.Observer.Longitude
	site.Elevation = params.Observer.Elevation

	cmd := &cobra.Command{
		Use:   "rwu [file.csv]",
		Short: "Estimate daily root water uptake from soil moisture columns",
		Long: `Reads a CSV with a timestamp column and one soil moisture column (vol.%)
per probe and writes the daily root water uptake of every column.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site.UTCOffsetHours = utcOffset
			params.Observer = site.Observer()
			params.Location = site.Location()

			in, err := input(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()
			frame, err := csvio.ReadFrame(in, params.Location)
			if err != nil {
				return err
			}

			start := time.Now()
			res, err := rootwater.EstimateFrame(cmd.Context(), frame, rootwater.FrameOptions{
				Params: params, Safe: safe, Workers: workers,
			})
			if err != nil {
				return err
			}
			a.log.Info("estimated", zap.Int("columns", len(frame.Columns)),
				zap.Int("days", res.RWU.Rows()), zap.Duration("took", time.Since(start)))

			switch format {
			case "csv":
				var f *timeseries.Frame
				switch output {
				case "rwu":
					f = res.RWU
				case "rwu_nonight":
					f = res.RWUNoNight
				case "nse":
					f = res.NSE
				default:
					return fmt.Errorf("unknown output %q", output)
				}
				return csvio.WriteFrame(cmd.OutOrStdout(), f, "day")
			case "json":
				out := make(map[string][]model.DayRecord, len(frame.Columns))
				for c, col := range frame.Columns {
					recs := make([]model.DayRecord, 0, len(res.Days[c]))
					for _, d := range res.Days[c] {
						if safe {
							d = d.Filtered()
						}
						recs = append(recs, model.NewDayRecord(d))
					}
					out[col] = recs
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&site.Latitude, "lat", site.Latitude, "Site latitude (deg)")
	fl.Float64Var(&site.Longitude, "lon", site.Longitude, "Site longitude (deg)")
	fl.Float64Var(&site.Elevation, "elev", site.Elevation, "Site elevation (m)")
	fl.Float64Var(&utcOffset, "utc-offset", 1, "Fixed UTC offset of the logger clock (h)")
	fl.BoolVar(&safe, "safe", false, "Drop days with step control below 1100 or negative uptake")
	fl.StringVar(&format, "format", "csv", "Output format (csv, json)")
	fl.StringVar(&output, "output", "rwu", "CSV output (rwu, rwu_nonight, nse)")
	fl.IntVar(&workers, "workers", 0, "Columns estimated concurrently, 0 for all cores")
	fl.IntVar(&params.DiffSteps, "diff-steps", params.DiffSteps, "Readings per differencing step")
	fl.Float64Var(&params.SlopeDiff, "slope-diff", params.SlopeDiff, "Day slope to night slope ratio")
	fl.Float64Var(&params.MaxDiff, "max-diff", params.MaxDiff, "Largest accepted change between readings (vol.%)")
	fl.DurationVar(&params.MinPeriod, "min-period", params.MinPeriod, "Shortest accepted uptake period")
	return cmd
}
