package config

import "sync"

// Holder gives concurrent readers a consistent *Config while "watch"
// reloads the file on SIGHUP.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Resolved
	path string
}

// NewHolder creates a Holder with the initial config.
func NewHolder(cfg *Resolved) *Holder {
	return &Holder{cfg: cfg, path: cfg.Path}
}

// Config returns the current snapshot.
func (h *Holder) Config() *Resolved {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. It never changes.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-resolves the configuration with the same inputs and swaps it
// in. On error the previous config stays in place.
func (h *Holder) Reload(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	if cli.ConfigPath == "" {
		cli.ConfigPath = h.path
	}

	cfg, err := Resolve(env, cli)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	return cfg, nil
}
