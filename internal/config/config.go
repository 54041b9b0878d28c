// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores iampl settings.
//
// Settings are layered, later layers overriding earlier ones field by field:
// built-in defaults, the user file in the XDG config dir, a project file
// (.iampl.yaml in the working directory), an explicit --config file, and finally
// environment variables. Only non-secret settings are kept here; the export DSN goes
// to the OS keychain or the IAMPL_EXPORT_DSN variable.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"iampl/cli/internal/errors"
	"iampl/cli/internal/xdg"

	"gopkg.in/yaml.v3"
)

// ProjectFile is looked up in the working directory.
const ProjectFile = ".iampl.yaml"

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string `yaml:"log_level"`
	// Echo streams AMPL output while a statement runs instead of printing it at the end.
	Echo   bool   `yaml:"echo"`
	AMPL   AMPL   `yaml:"ampl"`
	Export Export `yaml:"export"`
	Serve  Serve  `yaml:"serve"`
}

// AMPL describes how the child process is launched and stopped.
type AMPL struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
	Dir  string   `yaml:"dir,omitempty"`
	// InterruptGrace is how long each escalation step waits for the child.
	InterruptGrace time.Duration `yaml:"interrupt_grace"`
	// ShutdownGrace is how long Shutdown waits for a clean exit before killing.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Export holds the destination of the export command.
type Export struct {
	Table string `yaml:"table"`
}

// Serve holds the gRPC listener settings.
type Serve struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Echo:     true,
		AMPL: AMPL{
			Path:           "ampl",
			Args:           []string{"-g", "-b"},
			InterruptGrace: 2 * time.Second,
			ShutdownGrace:  2 * time.Second,
		},
		Export: Export{Table: "ampl_values"},
		Serve:  Serve{Addr: "127.0.0.1:50551"},
	}
}

// UserPath returns the path to the user config file.
func UserPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads every layer. explicit may be empty; when set the file must exist.
func Load(explicit string) (Config, error) {
	c := Default()

	if p, err := UserPath(); err == nil {
		if err := mergeFile(p, &c, false); err != nil {
			return c, err
		}
	}
	if wd, err := os.Getwd(); err == nil {
		if err := mergeFile(filepath.Join(wd, ProjectFile), &c, false); err != nil {
			return c, err
		}
	}
	if explicit != "" {
		if err := mergeFile(explicit, &c, true); err != nil {
			return c, err
		}
	}
	applyEnv(&c)

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// mergeFile unmarshals path over c. Fields absent from the file keep their values.
func mergeFile(path string, c *Config, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return errors.Wrap(errors.ConfigInvalid, "reading "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ConfigInvalid, "parsing "+path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("IAMPL_AMPL")); v != "" {
		c.AMPL.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("IAMPL_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AMPL.Path) == "" {
		problems = append(problems, "ampl.path is empty")
	}
	if c.AMPL.InterruptGrace <= 0 {
		problems = append(problems, "ampl.interrupt_grace must be positive")
	}
	if c.AMPL.ShutdownGrace <= 0 {
		problems = append(problems, "ampl.shutdown_grace must be positive")
	}
	if c.Export.Table == "" {
		problems = append(problems, "export.table is empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "off", "disabled":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of trace, debug, info, warn, error, off", c.LogLevel))
	}
	if len(problems) > 0 {
		return errors.New(errors.ConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Save writes the user config file with 0600 permissions.
func Save(c Config) error {
	p, err := UserPath()
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
