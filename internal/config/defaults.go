package config

import "github.com/despacho-app/despacho/internal/perm"

// Default values: layer 0 of the override chain.
const (
	defaultBaseURL        = "http://localhost:3000/api"
	defaultRequestTimeout = "30s"
	defaultRefreshTimeout = "15s"
	defaultUserAgent      = "despacho-cli/0.1"
	defaultBackend        = BackendFile
	defaultMaxEvents      = 100
	defaultLogLevel       = "info"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
			RefreshTimeout: defaultRefreshTimeout,
			UserAgent:      defaultUserAgent,
		},
		Credentials: CredentialsConfig{
			Backend: defaultBackend,
		},
		Access: AccessConfig{
			ElevatedRoles: append([]string(nil), perm.DefaultElevatedRoles...),
		},
		Diagnostics: DiagnosticsConfig{
			MaxEvents: defaultMaxEvents,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
	}
}
