package main

import (
	"context"
	"fmt"

	"otpmml/internal/client"
	"otpmml/internal/dat"
	"otpmml/internal/sample"

	"github.com/spf13/cobra"
)

var (
	remoteURL    string
	remoteStream bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Query a running model server",
}

var remoteModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models of the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := newClient().Models()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%v -> %v\t%s\n", m.Name, m.Kind, m.Inputs, m.Outputs, m.Source)
		}
		return nil
	},
}

var remotePredictCmd = &cobra.Command{
	Use:   "predict <model> <dat>",
	Short: "Evaluate a served model on the rows of a .dat file",
	Long: `Evaluate a served model on the rows of a .dat file. When the file has one
column more than the model inputs, the last column is ignored.

With --stream the rows are sent one by one over the websocket endpoint.`,
	Args: cobra.ExactArgs(2),
	RunE: runRemotePredict,
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteURL, "url", "", "Server URL (default from SERVER_URL)")
	remotePredictCmd.Flags().BoolVar(&remoteStream, "stream", false, "Evaluate over the websocket endpoint")

	remoteCmd.AddCommand(remoteModelsCmd)
	remoteCmd.AddCommand(remotePredictCmd)
}

func newClient() *client.Client {
	url := settings.ServerURL
	if remoteURL != "" {
		url = remoteURL
	}
	return client.New(url, settings.HTTPTimeout)
}

func runRemotePredict(cmd *cobra.Command, args []string) error {
	c := newClient()
	models, err := c.Models()
	if err != nil {
		return err
	}
	inputs := -1
	for _, m := range models {
		if m.Name == args[0] {
			inputs = len(m.Inputs)
		}
	}
	if inputs < 0 {
		return fmt.Errorf("model %s is not served by the server", args[0])
	}

	in, err := readInputs(args[1], inputs)
	if err != nil {
		return err
	}

	var out [][]float64
	if remoteStream {
		out, err = c.Stream(context.Background(), args[0], in.Rows())
	} else {
		out, err = c.Predict(args[0], in.Rows())
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, row := range in.Rows() {
		fmt.Fprintf(w, "%s -> %s\n", formatRow(row), formatRow(out[i]))
	}
	return nil
}

// readInputs reads the plane at path, dropping a trailing output column.
func readInputs(path string, inputs int) (*sample.Sample, error) {
	s, err := dat.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch s.Dimension() {
	case inputs:
		return s, nil
	case inputs + 1:
		return s.Columns(0, inputs)
	}
	return nil, fmt.Errorf("%s has %d columns for a model of %d inputs: %w", path, s.Dimension(), inputs, sample.ErrDimension)
}
