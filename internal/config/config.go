// Package config holds the gateway configuration: validation, defaults,
// per-request snapshots and TOML persistence.
package config

import (
	"strings"
	"time"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Default values applied by Normalize.
const (
	DefaultMaxTokens   = 1024
	DefaultTimeoutMs   = 30_000
	DefaultTemperature = 0.7

	// Default endpoints for the local backends.
	DefaultOllamaURL = "http://localhost:11434"
	DefaultVulcanURL = "http://localhost:8080"
)

// Config is the gateway configuration. It is copied per request via
// Snapshot, so a reload never races with an in-flight call.
//
// APIKey is accepted at init as a convenience and handed straight to the
// credential store; it is deliberately excluded from the persisted form.
type Config struct {
	BaseURL        string         `toml:"base_url"`
	APIKey         string         `toml:"-"`
	Provider       types.Provider `toml:"provider"`
	ModelName      string         `toml:"model_name"`
	Temperature    float32        `toml:"temperature"`
	MaxTokens      uint32         `toml:"max_tokens"`
	Stream         bool           `toml:"stream"`
	EnableGPU      bool           `toml:"enable_gpu"`
	EnableFallback bool           `toml:"enable_fallback"`
	TimeoutMs      uint32         `toml:"timeout_ms"`

	// CacheTTLMs enables the in-process response cache when > 0.
	CacheTTLMs uint32 `toml:"cache_ttl_ms"`
	// VaultPath enables persistent credential storage when non-empty.
	VaultPath string `toml:"vault_path"`
}

// Normalize fills unset fields with defaults. It does not touch fields
// the caller set explicitly.
func (c *Config) Normalize() {
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case types.ProviderOllama:
			c.BaseURL = DefaultOllamaURL
		case types.ProviderVulcan:
			c.BaseURL = DefaultVulcanURL
		}
	}
}

// Validate checks the configuration invariants. Call after Normalize.
func (c *Config) Validate() error {
	if !c.Provider.Valid() {
		return types.Errorf(types.CodeInvalidParameter, "unknown provider id %d", int(c.Provider))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.Errorf(types.CodeInvalidParameter, "temperature %.2f out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens == 0 {
		return types.E(types.CodeInvalidParameter, "max_tokens must be positive")
	}
	// The local backends are addressed directly, so they need an endpoint.
	if c.requiresBaseURL() && strings.TrimSpace(c.BaseURL) == "" {
		return types.Errorf(types.CodeInvalidParameter, "base_url required for provider %s", c.Provider)
	}
	return nil
}

func (c *Config) requiresBaseURL() bool {
	return c.Provider == types.ProviderOllama || c.Provider == types.ProviderVulcan
}

// Snapshot returns an immutable per-request copy.
func (c *Config) Snapshot() Config {
	return *c
}

// Timeout returns the per-transport-call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the response cache TTL; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}
