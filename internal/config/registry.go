package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for the live
// backend and the device platform. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	live     map[string]func(LiveConfig) (live.Provider, error)
	platform map[string]func(Config) (device.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[string]func(LiveConfig) (live.Provider, error)),
		platform: make(map[string]func(Config) (device.Platform, error)),
	}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(LiveConfig) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterPlatform registers a device platform factory under name. Platform
// factories receive the whole config because camera selection lives in the
// video section.
func (r *Registry) RegisterPlatform(name string, factory func(Config) (device.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platform[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under
// cfg.Provider. An empty name selects "gemini". Returns
// [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLive(cfg LiveConfig) (live.Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = "gemini"
	}
	r.mu.RLock()
	factory, ok := r.live[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// CreatePlatform instantiates a device platform using the factory registered
// under cfg.Audio.Platform. An empty name selects "portaudio".
func (r *Registry) CreatePlatform(cfg Config) (device.Platform, error) {
	name := cfg.Audio.Platform
	if name == "" {
		name = "portaudio"
	}
	r.mu.RLock()
	factory, ok := r.platform[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
