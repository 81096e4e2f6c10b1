// Command rootwater runs the RWU estimator, the sap flow conversion and the
// van Genuchten conversions on CSV logger exports.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/logging"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the logger built from the persistent flags.
type app struct {
	log *zap.Logger
}

func rootCmd() *cobra.Command {
	var logLevel string
	a := &app{log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "rootwater",
		Short:         "Root water uptake and sap flow toolbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := logging.New(logLevel, "rootwater")
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(a.rwuCmd(), a.sapflowCmd(), vgCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rootwater %s\n", version)
		},
	})
	return cmd
}

// input opens the file argument, or stdin for none or "-".
func input(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}
