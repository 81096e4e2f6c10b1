package main

import (
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/vangenuchten"
)

type vgPoint struct {
	Texture      string       `json:"texture"`
	Theta        model.Number `json:"theta"`
	Head         model.Number `json:"head"`         // m
	Conductivity model.Number `json:"conductivity"` // m/s
}

func vgCmd() *cobra.Command {
	var (
		texture     string
		theta, head float64
		table       bool
	)

	cmd := &cobra.Command{
		Use:   "vg",
		Short: "van Genuchten conversions for the Carsel texture classes",
		Long: `Without --theta or --head prints the class parameters; with --table
writes the 100-row lookup table of the class.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tex, err := vangenuchten.LookupTexture(texture)
			if err != nil {
				return err
			}
			p := tex.Params
			enc := json.NewEncoder(cmd.OutOrStdout())

			switch {
			case table:
				return writeLookup(cmd, vangenuchten.NewLookup(p)[0])
			case cmd.Flags().Changed("theta"):
				return enc.Encode(vgPoint{
					Texture: tex.Code, Theta: model.Number(theta),
					Head:         model.Number(p.HeadFromTheta(theta)),
					Conductivity: model.Number(p.KFromTheta(theta)),
				})
			case cmd.Flags().Changed("head"):
				return enc.Encode(vgPoint{
					Texture: tex.Code, Theta: model.Number(p.ThetaFromHead(head)),
					Head:         model.Number(head),
					Conductivity: model.Number(p.KFromHead(head)),
				})
			}
			return enc.Encode(tex)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&texture, "texture", "L", "USDA texture code (C, CL, L, LS, S, SC, SCL, SI, SIC, SICL, SIL, SL)")
	fl.Float64Var(&theta, "theta", 0, "Volumetric moisture (m³/m³)")
	fl.Float64Var(&head, "head", 0, "Matric head (m, negative)")
	fl.BoolVar(&table, "table", false, "Write the lookup table as CSV")
	cmd.MarkFlagsMutuallyExclusive("theta", "head", "table")
	return cmd
}

func writeLookup(cmd *cobra.Command, l vangenuchten.Lookup) error {
	w := csv.NewWriter(cmd.OutOrStdout())
	if err := w.Write([]string{"rel_sat", "head", "theta", "conductivity", "diffusivity"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for k := range l.RelSat {
		if err := w.Write([]string{f(l.RelSat[k]), f(l.Head[k]), f(l.Theta[k]), f(l.Conductivity[k]), f(l.Diffusivity[k])}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
