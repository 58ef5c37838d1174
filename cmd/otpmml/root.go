package main

import (
	"fmt"
	"os"

	"otpmml/internal/cfg"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	settings  cfg.Settings
	logLevel  string
	modelName string
	tolerance float64
	precision int
)

var rootCmd = &cobra.Command{
	Use:   "otpmml",
	Short: "Evaluate, validate and serve PMML models",
	Long: `otpmml reads PMML neural networks and linear regressions, evaluates
them with their exact gradients and hessians, compares them against .dat
experiment planes, exports regressions back to PMML and serves models over
HTTP.

Configuration comes from the YAML file named by CONFIG_FILE or from the
environment (a .env file in the working directory is loaded first).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := cfg.Load()
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		settings = s
		if logLevel == "" {
			logLevel = settings.LogLevel
		}
		setupLogging(logLevel)
		if !cmd.Flags().Changed("tolerance") {
			tolerance = settings.Tolerance
		}
		if !cmd.Flags().Changed("precision") {
			precision = settings.Precision
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().Float64Var(&tolerance, "tolerance", 0, "Relative tolerance for comparisons (default from TOLERANCE)")
	rootCmd.PersistentFlags().IntVar(&precision, "precision", 0, "Significant digits of printed numbers (default from PRINT_PRECISION)")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(regressionCmd)
	rootCmd.AddCommand(datCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(versionCmd)
}
