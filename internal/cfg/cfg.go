package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"otpmml/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	LogLevel       string
	ServerPort     int
	ServerURL      string
	MetricsEnabled bool
	RegistryPath   string
	HTTPTimeout    time.Duration
	Tolerance      float64
	Precision      int
	PMMLFiles      []string
}

type ConfigFile struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Port      int      `yaml:"port"`
		URL       string   `yaml:"url"`
		Timeout   string   `yaml:"timeout"`
		Metrics   *bool    `yaml:"metrics"`
		PMMLFiles []string `yaml:"pmmlFiles"`
	} `yaml:"server"`

	Registry struct {
		Path string `yaml:"path"`
	} `yaml:"registry"`

	Validation struct {
		Tolerance float64 `yaml:"tolerance"`
		Precision int     `yaml:"precision"`
	} `yaml:"validation"`
}

// Load reads a .env file when present, then the YAML file named by
// CONFIG_FILE or, without it, the environment.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Server.Timeout)
	if err != nil {
		timeout = 5 * time.Second
	}
	metricsEnabled := common.DefaultMetricsEnabled
	if config.Server.Metrics != nil {
		metricsEnabled = *config.Server.Metrics
	}

	// Override with environment variables if they exist
	settings := Settings{
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.Log.Level, common.DefaultLogLevel)),
		ServerPort:     getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, orDefault(config.Server.URL, common.DefaultServerURL)),
		MetricsEnabled: getBoolOrDefault(common.EnvMetricsEnabled, metricsEnabled),
		RegistryPath:   getEnvOrDefault(common.EnvRegistryPath, orDefault(config.Registry.Path, common.DefaultRegistryPath)),
		HTTPTimeout:    getDurationOrDefault(common.EnvHTTPTimeout, timeout),
		Tolerance:      getFloatFromEnvOrConfig(common.EnvTolerance, config.Validation.Tolerance, common.DefaultTolerance),
		Precision:      getIntFromEnvOrConfig(common.EnvPrecision, config.Validation.Precision, common.DefaultPrecision),
		PMMLFiles:      getListFromEnvOrConfig(common.EnvPMMLFiles, config.Server.PMMLFiles),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		ServerPort:     getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, common.DefaultServerURL),
		MetricsEnabled: getBoolOrDefault(common.EnvMetricsEnabled, common.DefaultMetricsEnabled),
		RegistryPath:   getEnvOrDefault(common.EnvRegistryPath, common.DefaultRegistryPath),
		HTTPTimeout:    getDurationOrDefault(common.EnvHTTPTimeout, 5*time.Second),
		Tolerance:      getFloatOrDefault(common.EnvTolerance, common.DefaultTolerance),
		Precision:      getIntOrDefault(common.EnvPrecision, common.DefaultPrecision),
		PMMLFiles:      splitOrDefault(os.Getenv(common.EnvPMMLFiles), nil),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	if settings.RegistryPath == "" {
		return fmt.Errorf("registry path cannot be empty")
	}

	if settings.HTTPTimeout < time.Second || settings.HTTPTimeout > 5*time.Minute {
		return fmt.Errorf("HTTP timeout must be between 1s and 5m, got %v", settings.HTTPTimeout)
	}

	if settings.Tolerance <= 0 || settings.Tolerance > common.MaxTolerance {
		return fmt.Errorf("tolerance must be between 0 and %g, got %g", common.MaxTolerance, settings.Tolerance)
	}
	if settings.Precision < common.MinPrecision || settings.Precision > common.MaxPrecision {
		return fmt.Errorf("print precision must be between %d and %d, got %d", common.MinPrecision, common.MaxPrecision, settings.Precision)
	}

	for _, f := range settings.PMMLFiles {
		if f == "" {
			return fmt.Errorf("empty PMML file name in %v", settings.PMMLFiles)
		}
	}

	return nil
}
