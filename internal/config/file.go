package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Load reads a configuration from a TOML file. Credential material is
// never stored in the file, so APIKey is always empty after a load.
func Load(path string) (*Config, error) {
	cfg := &Config{Temperature: DefaultTemperature}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, types.Wrap(types.CodeConfigLoadFailed, "decode "+path, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, types.Wrap(types.CodeConfigLoadFailed, "invalid config in "+path, err)
	}
	return cfg, nil
}

// Save writes the configuration back to a TOML file. The APIKey field is
// excluded from the encoded form; credentials belong in the vault.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.Wrap(types.CodeConfigLoadFailed, "create config dir", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return types.Wrap(types.CodeConfigLoadFailed, "create "+path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return types.Wrap(types.CodeConfigLoadFailed, "encode "+path, err)
	}
	return nil
}
