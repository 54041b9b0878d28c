// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"iampl/cli/internal/errors"

	"github.com/stretchr/testify/require"
)

// isolate points every config layer at temporary locations.
func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "xdg"))
	t.Setenv("IAMPL_AMPL", "")
	t.Setenv("IAMPL_LOG_LEVEL", "")
	wd := filepath.Join(base, "project")
	require.NoError(t, os.MkdirAll(wd, 0o755))
	t.Chdir(wd)
	return base
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), c)
	require.Equal(t, []string{"-g", "-b"}, c.AMPL.Args)
}

func TestLoadLayering(t *testing.T) {
	isolate(t)

	user, err := UserPath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(user, []byte(`
log_level: debug
ampl:
  path: /opt/ampl/ampl
  interrupt_grace: 500ms
export:
  table: user_table
`), 0o600))

	require.NoError(t, os.WriteFile(ProjectFile, []byte(`
ampl:
  args: ["-g", "-b", "-vi"]
export:
  table: project_table
`), 0o600))

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, "/opt/ampl/ampl", c.AMPL.Path)
	require.Equal(t, []string{"-g", "-b", "-vi"}, c.AMPL.Args)
	require.Equal(t, 500*time.Millisecond, c.AMPL.InterruptGrace)
	require.Equal(t, 2*time.Second, c.AMPL.ShutdownGrace)
	require.Equal(t, "project_table", c.Export.Table)

	t.Setenv("IAMPL_AMPL", "/usr/local/bin/ampl")
	c, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin/ampl", c.AMPL.Path)
}

func TestLoadExplicitMustExist(t *testing.T) {
	base := isolate(t)
	_, err := Load(filepath.Join(base, "missing.yaml"))
	require.Error(t, err)
	require.Equal(t, errors.ConfigInvalid, errors.KindOf(err))
}

func TestLoadRejectsBadYAML(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(ProjectFile, []byte("ampl: [unterminated"), 0o600))
	_, err := Load("")
	require.Equal(t, errors.ConfigInvalid, errors.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "empty path", mutate: func(c *Config) { c.AMPL.Path = " " }},
		{name: "zero grace", mutate: func(c *Config) { c.AMPL.InterruptGrace = 0 }},
		{name: "no table", mutate: func(c *Config) { c.Export.Table = "" }},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Equal(t, errors.ConfigInvalid, errors.KindOf(err))
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	c := Default()
	c.AMPL.Path = "/srv/ampl"
	require.NoError(t, Save(c))

	p, err := UserPath()
	require.NoError(t, err)
	st, err := os.Stat(p)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	got, err := Load("")
	require.NoError(t, err)
	require.Equal(t, c, got)
}
