// Package xdg resolves XDG Base Directory paths for iampl.
//
// Config lives under $XDG_CONFIG_HOME/iampl (default ~/.config/iampl) and REPL
// history under $XDG_STATE_HOME/iampl (default ~/.local/state/iampl). Both
// directories are created with private permissions on first use.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "iampl"

// ConfigDir returns the XDG config directory for iampl.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for iampl.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
