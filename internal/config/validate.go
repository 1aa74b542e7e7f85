package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validation ranges.
const (
	minRequestTimeout = 1 * time.Second
	minRefreshTimeout = 1 * time.Second
	minMaxEvents      = 1
	maxMaxEvents      = 10_000
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCredentials(&cfg.Credentials)...)
	errs = append(errs, validateAccess(&cfg.Access)...)
	errs = append(errs, validateDiagnostics(&cfg.Diagnostics)...)
	errs = append(errs, validateLogLevel(cfg.Logging.LogLevel)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	u, err := url.Parse(s.BaseURL)
	switch {
	case s.BaseURL == "":
		errs = append(errs, errors.New("server.base_url: must not be empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("server.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("server.base_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("server.base_url: missing host in %q", s.BaseURL))
	}

	errs = append(errs, validateDurationMin("server.request_timeout", s.RequestTimeout, minRequestTimeout)...)
	errs = append(errs, validateDurationMin("server.refresh_timeout", s.RefreshTimeout, minRefreshTimeout)...)

	return errs
}

var validBackends = []string{BackendBolt, BackendFile, BackendMemory}

func validateCredentials(c *CredentialsConfig) []error {
	if !slices.Contains(validBackends, c.Backend) {
		return []error{fmt.Errorf("credentials.backend: must be one of bolt, file, memory; got %q", c.Backend)}
	}

	if c.Backend == BackendMemory && c.Path != "" {
		return []error{errors.New("credentials.path: not used by the memory backend")}
	}

	return nil
}

func validateAccess(a *AccessConfig) []error {
	var errs []error

	for i, role := range a.ElevatedRoles {
		if role == "" {
			errs = append(errs, fmt.Errorf("access.elevated_roles[%d]: must not be empty", i))
		}
	}

	return errs
}

func validateDiagnostics(d *DiagnosticsConfig) []error {
	if d.MaxEvents < minMaxEvents || d.MaxEvents > maxMaxEvents {
		return []error{fmt.Errorf("diagnostics.max_events: must be between %d and %d, got %d",
			minMaxEvents, maxMaxEvents, d.MaxEvents)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

func validateLogLevel(level string) []error {
	if !slices.Contains(validLogLevels, level) {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}
