package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirsHonourEnvironment(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))

	cfg, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(base, "cfg", "iampl"); cfg != want {
		t.Errorf("ConfigDir() = %q, want %q", cfg, want)
	}
	st, err := os.Stat(cfg)
	if err != nil || !st.IsDir() {
		t.Fatalf("config dir not created: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o700 {
		t.Errorf("config dir perm = %o, want 700", perm)
	}

	state, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir() error = %v", err)
	}
	if want := filepath.Join(base, "state", "iampl"); state != want {
		t.Errorf("StateDir() = %q, want %q", state, want)
	}
}
