package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/csvio"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/sapflow"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

func (a *app) sapflowCmd() *cobra.Command {
	var (
		tree      model.Tree
		perc      float64
		total     bool
		utcOffset float64
	)

	cmd := &cobra.Command{
		Use:   "sapflow [file.csv]",
		Short: "Convert three-point sap velocities into sap flow",
		Long: `Reads a CSV with a timestamp column and the inner, mid and outer sap
velocities (cm/h) and writes the flow (cm³/h) through each sapwood ring.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := tree.SapTree()
			if err != nil {
				return err
			}
			in, err := input(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()
			frame, err := csvio.ReadFrame(in, model.Probe{UTCOffsetHours: utcOffset}.Location())
			if err != nil {
				return err
			}

			flow, err := sapflow.Convert(frame, st, perc)
			if err != nil {
				return err
			}
			if total {
				sum := make([]float64, flow.Rows())
				for i := range sum {
					sum[i] = flow.Values[0][i] + flow.Values[1][i] + flow.Values[2][i]
				}
				flow, err = timeseries.NewFrame(flow.Times, append(append([]string{}, flow.Columns...), "total"),
					append(append([][]float64{}, flow.Values...), sum))
				if err != nil {
					return err
				}
			}
			a.log.Info("converted", zap.Int("rows", flow.Rows()), zap.Float64("radius_cm", st.Radius))
			return csvio.WriteFrame(cmd.OutOrStdout(), flow, "time")
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&tree.RadiusCM, "radius", 0, "Stem radius at breast height (cm)")
	fl.StringVar(&tree.Species, "species", "beech", "Flux profile species")
	fl.StringVar(&tree.Allometry, "allometry", "", "Bark and sapwood allometry (beech, oak)")
	fl.Float64Var(&perc, "active-fraction", sapflow.DefaultActiveFraction, "Share of the flux profile counted as active sapwood")
	fl.BoolVar(&total, "total", false, "Add a total column")
	fl.Float64Var(&utcOffset, "utc-offset", 1, "Fixed UTC offset of the logger clock (h)")
	_ = cmd.MarkFlagRequired("radius")
	return cmd
}
