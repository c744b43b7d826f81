package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir resolves the directory holding the config file and the
// credential vault. Resolution order:
//
//	$SWITCHBOARD_HOME, if set
//	%APPDATA%\switchboard on Windows, $XDG_DATA_HOME/switchboard elsewhere
//	~/.switchboard
func DataDir() string {
	if dir := os.Getenv("SWITCHBOARD_HOME"); dir != "" {
		return dir
	}

	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
	} else {
		base = os.Getenv("XDG_DATA_HOME")
	}
	if base != "" {
		return filepath.Join(base, "switchboard")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".switchboard"
	}
	return filepath.Join(home, ".switchboard")
}

// DefaultConfigPath returns the path to the default TOML config file.
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DefaultVaultPath returns the path to the credential vault database.
func DefaultVaultPath() string {
	return filepath.Join(DataDir(), "vault.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
