package main

import (
	"fmt"
	"io"
	"strings"

	"otpmml/internal/nnet"
	"otpmml/internal/pmml"
	"otpmml/internal/regression"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var inspectWeights bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <pmml>",
	Short: "Describe the models of a PMML document",
	Long: `List the neural networks and regression models of a PMML document.

For networks: inputs and outputs with their normalization, and every layer
with its size and activation. For regressions: target, intercept and
coefficients.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectWeights, "weights", false, "Print layer weights and biases")
}

func runInspect(cmd *cobra.Command, args []string) error {
	doc, err := pmml.Open(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "%s: %d neural network(s), %d regression model(s)\n",
		args[0], doc.NumberOfNeuralNetworks(), doc.NumberOfRegressionModels())

	for _, name := range doc.NeuralNetworkModelNames() {
		if err := inspectNetwork(w, doc, name); err != nil {
			return err
		}
	}
	for _, name := range doc.RegressionModelNames() {
		rm, err := regression.FromDoc(doc, name)
		if err != nil {
			return err
		}
		if err := inspectRegression(w, rm); err != nil {
			return err
		}
	}
	return nil
}

func inspectNetwork(w io.Writer, doc *pmml.Doc, name string) error {
	view, err := doc.NeuralNetwork(name)
	if err != nil {
		return err
	}
	n, err := nnet.FromDoc(doc, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s", n)
	fmt.Fprintf(w, "  function %s, %d layer(s)\n", view.FunctionName(), view.NumberOfLayers())

	fmt.Fprintln(w, "  inputs normalization:")
	if err := printTable(w, view.InputsNormalization()); err != nil {
		return err
	}
	fmt.Fprintln(w, "  outputs normalization:")
	if err := printTable(w, view.OutputsNormalization()); err != nil {
		return err
	}

	if inspectWeights {
		for i, l := range n.Layers() {
			fmt.Fprintf(w, "  layer %d bias %s\n", i, formatRow(l.Bias))
			fmt.Fprintf(w, "  layer %d weights\n%v\n", i, mat.Formatted(l.Weights, mat.Prefix("    "), mat.Squeeze()))
		}
	}
	return nil
}

func inspectRegression(w io.Writer, rm *regression.RegressionModel) error {
	lls := rm.LinearLeastSquares()
	constant, err := lls.Constant()
	if err != nil {
		return err
	}
	linear, err := lls.Linear()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nRegressionModel %s: [%s] -> [%s]\n", rm.Name(),
		strings.Join(lls.DataIn().Description(), ", "), strings.Join(lls.DataOut().Description(), ", "))
	fmt.Fprintf(w, "  intercept %s\n", formatRow(constant))
	fmt.Fprintf(w, "  coefficients %s\n", formatRow(mat.Col(nil, 0, linear)))
	return nil
}
