package common

// Application identity
const (
	AppName    = "otpmml"
	AppVersion = "1.0"
)

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvLogLevel       = "LOG_LEVEL"
	EnvServerPort     = "SERVER_PORT"
	EnvServerURL      = "SERVER_URL"
	EnvMetricsEnabled = "METRICS_ENABLED"
	EnvRegistryPath   = "REGISTRY_PATH"
	EnvHTTPTimeout    = "HTTP_TIMEOUT"
	EnvTolerance      = "TOLERANCE"
	EnvPrecision      = "PRINT_PRECISION"
	EnvPMMLFiles      = "PMML_FILES"
)

// Configuration defaults
const (
	DefaultLogLevel       = "info"
	DefaultServerPort     = 8080
	DefaultServerURL      = "http://localhost:8080"
	DefaultMetricsEnabled = true
	DefaultRegistryPath   = "data"
	DefaultTolerance      = 1e-10
	DefaultPrecision      = 6
)

// Registry storage
const (
	RegistryFileName = "otpmml.db"
)

// Validation constants
const (
	MinServerPort = 1024
	MaxServerPort = 65535
	MinPrecision  = 1
	MaxPrecision  = 17
	MaxTolerance  = 1.0
)
