package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"otpmml/internal/metrics"
	"otpmml/internal/registry"
	"otpmml/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	servePMML       []string
	serveNoRegistry bool
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve models over HTTP",
	Long: `Start the model server.

Models are loaded from the registry (REGISTRY_PATH) and from the PMML files
given with --pmml or PMML_FILES. The server stops gracefully on SIGINT or
SIGTERM.

Endpoints:
  GET  /health    server status
  GET  /models    served models
  POST /predict   {"model", "inputs"}
  POST /gradient  {"model", "point"}
  POST /hessian   {"model", "point"}
  GET  /stream    websocket, one {"model", "input"} per message
  GET  /metrics   Prometheus metrics (when METRICS_ENABLED)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVar(&servePMML, "pmml", nil, "PMML files to serve")
	serveCmd.Flags().BoolVar(&serveNoRegistry, "no-registry", false, "Do not load models from the registry")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port := settings.ServerPort
	if servePort != 0 {
		port = servePort
	}

	var tracker server.MetricsTracker
	var wrapper *metrics.MetricsWrapper
	if settings.MetricsEnabled {
		wrapper = metrics.NewWrapper(metrics.New())
		tracker = wrapper
	}
	s := server.New(port, settings.HTTPTimeout, tracker)

	if !serveNoRegistry {
		reg, err := openRegistry()
		if err != nil {
			log.Warn().Err(err).Msg("registry unavailable, serving files only")
		} else {
			if wrapper != nil {
				reg.SetMetrics(wrapper)
			}
			_, err = s.LoadRegistry(reg)
			reg.Close()
			if err != nil {
				return err
			}
		}
	}

	files := append(append([]string(nil), settings.PMMLFiles...), servePMML...)
	for _, f := range files {
		if _, err := s.LoadFile(f); err != nil {
			return err
		}
	}
	if len(s.Models()) == 0 {
		return fmt.Errorf("no model to serve: add models to the registry or pass --pmml")
	}

	return s.Start(ctx)
}

// openRegistry opens the registry database, creating its directory.
func openRegistry() (*registry.Registry, error) {
	if err := os.MkdirAll(settings.RegistryPath, 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	return registry.New(settings.RegistryPath)
}
