package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "DESPACHO_CONFIG"
	EnvServerURL = "DESPACHO_SERVER_URL"
	EnvLogLevel  = "DESPACHO_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DESPACHO_CONFIG: config file path
	ServerURL  string // DESPACHO_SERVER_URL: API base URL
	LogLevel   string // DESPACHO_LOG_LEVEL: log level
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
