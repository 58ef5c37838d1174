package main

import (
	"fmt"

	"otpmml/internal/regression"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	regressionExport string
	regressionFit    string
)

var regressionCmd = &cobra.Command{
	Use:   "regression [pmml]",
	Short: "Print or export a linear regression",
	Long: `Print the coefficients of a linear regression read from a PMML file, or
fitted by least squares on a .dat experiment plane with --fit.

With --export the regression is written alone into a new PMML document.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegression,
}

func init() {
	regressionCmd.Flags().StringVar(&modelName, "model", "", "Regression model name (default: first one)")
	regressionCmd.Flags().StringVar(&regressionFit, "fit", "", "Fit the regression on this .dat file instead of reading PMML")
	regressionCmd.Flags().StringVar(&regressionExport, "export", "", "Write the regression to this PMML file")
}

func runRegression(cmd *cobra.Command, args []string) error {
	rm, err := loadRegression(args)
	if err != nil {
		return err
	}
	if err := inspectRegression(cmd.OutOrStdout(), rm); err != nil {
		return err
	}

	if regressionExport != "" {
		if err := rm.ExportToPMMLFile(regressionExport); err != nil {
			return err
		}
		log.Info().Str("file", regressionExport).Str("model", rm.Name()).Msg("Exported regression model")
	}
	return nil
}

func loadRegression(args []string) (*regression.RegressionModel, error) {
	switch {
	case regressionFit != "" && len(args) == 0:
		return fitRegression(regressionFit, modelName)
	case regressionFit == "" && len(args) == 1:
		return regression.Load(args[0], modelName)
	}
	return nil, fmt.Errorf("expected either a PMML file or --fit <dat>")
}
