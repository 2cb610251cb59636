package auth

import (
	"errors"
	"sync"

	"mercator-hq/backlog/pkg/config"
)

var (
	// ErrMissingKey is returned when a request carries no key.
	ErrMissingKey = errors.New("no API key found")
	// ErrInvalidKey is returned for an unknown key.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrDisabledKey is returned for a configured but disabled key.
	ErrDisabledKey = errors.New("API key disabled")
)

// KeyInfo describes a configured API key.
type KeyInfo struct {
	Name    string
	Key     string
	Enabled bool
}

// Validator checks keys against the configured set. It is safe for
// concurrent use and can be replaced on reload.
type Validator struct {
	mu   sync.RWMutex
	keys map[string]*KeyInfo
}

// NewValidator creates a validator over keys.
func NewValidator(keys []*KeyInfo) *Validator {
	v := &Validator{}
	v.Replace(keys)
	return v
}

// FromConfig builds a validator from the server.api_keys section.
func FromConfig(keys []config.APIKeyConfig) *Validator {
	return NewValidator(KeysFromConfig(keys))
}

// KeysFromConfig converts the server.api_keys section.
func KeysFromConfig(keys []config.APIKeyConfig) []*KeyInfo {
	infos := make([]*KeyInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, &KeyInfo{Name: k.Name, Key: k.Key, Enabled: !k.Disabled})
	}
	return infos
}

// Validate returns the info of key.
func (v *Validator) Validate(key string) (*KeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[key]
	if !ok {
		return nil, ErrInvalidKey
	}
	if !info.Enabled {
		return nil, ErrDisabledKey
	}
	return info, nil
}

// Len returns the number of configured keys, enabled or not.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Replace swaps the key set.
func (v *Validator) Replace(keys []*KeyInfo) {
	m := make(map[string]*KeyInfo, len(keys))
	for _, k := range keys {
		m[k.Key] = k
	}
	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}
