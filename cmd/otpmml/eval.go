package main

import (
	"errors"
	"fmt"

	"otpmml/internal/dat"
	"otpmml/internal/function"
	"otpmml/internal/nnet"
	"otpmml/internal/pmml"
	"otpmml/internal/regression"
	"otpmml/internal/sample"
	"otpmml/internal/validation"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var evalDerivatives bool

// errTolerance is returned when a comparison exceeds the tolerance.
var errTolerance = errors.New("comparison exceeds tolerance")

var evalCmd = &cobra.Command{
	Use:   "eval <pmml> <dat>",
	Short: "Evaluate a model on an experiment plane and compare with its outputs",
	Long: `Evaluate a PMML model on the input columns of a .dat file and compare the
predictions with the last column.

With --derivatives the exact gradients and hessians are also compared with
centered finite differences at every input row.

The command fails when a relative error exceeds the tolerance.`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&modelName, "model", "", "Model name (default: first network, else first regression)")
	evalCmd.Flags().BoolVar(&evalDerivatives, "derivatives", false, "Compare gradients and hessians with finite differences")
}

// loadFunction returns the named model of the document at path as a function.
func loadFunction(path, name string) (function.Function, error) {
	doc, err := pmml.Open(path)
	if err != nil {
		return nil, err
	}
	n, err := nnet.FromDoc(doc, name)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pmml.ErrModelNotFound) {
		return nil, err
	}
	rm, rerr := regression.FromDoc(doc, name)
	if rerr != nil {
		if errors.Is(rerr, pmml.ErrModelNotFound) {
			return nil, err
		}
		return nil, rerr
	}
	return rm.LinearLeastSquares().Metamodel()
}

func runEval(cmd *cobra.Command, args []string) error {
	f, err := loadFunction(args[0], modelName)
	if err != nil {
		return err
	}
	in, out, err := dat.Import(args[1])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	report, err := validation.CompareOutputs(f, in, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s on %s (%d rows)\n", report.Model, args[1], in.Size())
	if err := printTable(w, report.Table); err != nil {
		return err
	}
	fmt.Fprintf(w, "max abs. error %s, max rel. error %s\n", formatFloat(report.MaxAbsError), formatFloat(report.MaxRelError))

	failed := report.Exceeds(tolerance)
	if evalDerivatives {
		dr, err := compareDerivatives(f, in)
		if err != nil {
			return err
		}
		fmt.Fprint(w, dr)
		fmt.Fprintf(w, "max rel. gradient error %s, max rel. hessian error %s\n",
			formatFloat(dr.MaxRelGradient()), formatFloat(dr.MaxRelHessian()))
		// finite differences are only accurate to their step
		if dr.Exceeds(derivativeTolerance()) {
			failed = true
		}
	}

	if failed {
		log.Warn().Str("model", f.Name()).Float64("tolerance", tolerance).Msg("comparison exceeds tolerance")
		return errTolerance
	}
	return nil
}

// compareDerivatives compares the derivatives of f with centered finite
// differences of its values at every point.
func compareDerivatives(f function.Function, points *sample.Sample) (*validation.DerivativeReport, error) {
	var evalErr error
	reference := function.NewClosure(f.Name()+" (finite differences)", f.InputDimension(), f.OutputDimension(), func(x []float64) []float64 {
		y, err := f.Evaluate(x)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return nil
		}
		return y
	})
	dr, err := validation.CompareFunctions(reference, f, points)
	if evalErr != nil {
		return nil, fmt.Errorf("finite differences of %s: %w", f.Name(), evalErr)
	}
	return dr, err
}

func derivativeTolerance() float64 {
	if tolerance < 1e-4 {
		return 1e-4
	}
	return tolerance
}
