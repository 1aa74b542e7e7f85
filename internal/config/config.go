// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for despacho. Values follow a four-layer
// override chain: defaults -> config file -> environment -> CLI flags.
package config

import (
	"path/filepath"
	"time"
)

// Credential backends.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Credentials CredentialsConfig `toml:"credentials"`
	Access      AccessConfig      `toml:"access"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig locates the API and bounds every request.
type ServerConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
	RefreshTimeout string `toml:"refresh_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CredentialsConfig selects where the token pair is kept. An empty Path
// selects a file in the data directory.
type CredentialsConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// AccessConfig lists the roles allowed to read gated collections.
type AccessConfig struct {
	ElevatedRoles []string `toml:"elevated_roles"`
}

// DiagnosticsConfig controls the local error journal. An empty JournalPath
// selects a file in the data directory.
type DiagnosticsConfig struct {
	JournalPath string `toml:"journal_path"`
	MaxEvents   int    `toml:"max_events"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	ServerURL  string // --server
}

// Resolved is a validated Config together with the file it came from.
type Resolved struct {
	Config
	Path string
}

// RequestTimeoutDuration returns the parsed per-request deadline. Values are
// validated at load time, so parse errors cannot occur here.
func (s ServerConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.RequestTimeout)

	return d
}

// RefreshTimeoutDuration returns the parsed token exchange deadline.
func (s ServerConfig) RefreshTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.RefreshTimeout)

	return d
}

// CredentialsPath returns the credential file for the configured backend.
// The memory backend has no path.
func (c CredentialsConfig) CredentialsPath() string {
	if c.Backend == BackendMemory {
		return ""
	}

	if c.Path != "" {
		return expandTilde(c.Path)
	}

	name := credentialsFileName
	if c.Backend == BackendBolt {
		name = credentialsBoltName
	}

	return filepath.Join(DefaultDataDir(), name)
}

// JournalFile returns the diagnostics database path.
func (d DiagnosticsConfig) JournalFile() string {
	if d.JournalPath != "" {
		return expandTilde(d.JournalPath)
	}

	return filepath.Join(DefaultDataDir(), journalFileName)
}
