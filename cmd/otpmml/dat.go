package main

import (
	"fmt"

	"otpmml/internal/dat"
	"otpmml/internal/regression"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var datExport string

var datCmd = &cobra.Command{
	Use:   "dat <file>",
	Short: "Read a .dat experiment plane",
	Long: `Read a .dat experiment plane, split it into its input columns and its
last, output, column, and print both.

With --export the plane is written back in the canonical format.`,
	Args: cobra.ExactArgs(1),
	RunE: runDat,
}

func init() {
	datCmd.Flags().StringVar(&datExport, "export", "", "Write the plane to this .dat file")
}

func runDat(cmd *cobra.Command, args []string) error {
	in, out, err := dat.Import(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "%s: %d rows, %d inputs, %d output\n", args[0], in.Size(), in.Dimension(), out.Dimension())
	table, err := in.Stack(out)
	if err != nil {
		return err
	}
	if err := printTable(w, table); err != nil {
		return err
	}

	if datExport != "" {
		if err := dat.Export(datExport, in, out); err != nil {
			return err
		}
		log.Info().Str("file", datExport).Msg("Exported experiment plane")
	}
	return nil
}

// fitRegression fits a linear regression on the plane at path.
func fitRegression(path, name string) (*regression.RegressionModel, error) {
	in, out, err := dat.Import(path)
	if err != nil {
		return nil, err
	}
	lls, err := regression.NewLinearLeastSquares(in, out)
	if err != nil {
		return nil, err
	}
	if name != "" {
		lls.SetName(name)
	}
	if err := lls.Run(); err != nil {
		return nil, err
	}
	return regression.FromLeastSquares(lls), nil
}
