package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Holder keeps the live configuration loaded from a file and swaps it on
// reload. Reads are lock-free.
type Holder struct {
	path    string
	current atomic.Pointer[Config]

	// reloadMu serializes reloads.
	reloadMu sync.Mutex
}

// NewHolder creates a holder for the file at path, seeded with cfg.
func NewHolder(path string, cfg *Config) *Holder {
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h
}

// Path returns the configuration file path.
func (h *Holder) Path() string {
	return h.path
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// Reload loads the file again with environment overrides. The new
// configuration replaces the current one only if loading and validation
// succeed; otherwise the current configuration stays in place.
func (h *Holder) Reload() (previous, next *Config, err error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	cfg, err := LoadConfigWithEnvOverrides(h.path)
	if err != nil {
		return h.current.Load(), nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	previous = h.current.Swap(cfg)
	return previous, cfg, nil
}
