package paths

import (
	"path/filepath"
	"testing"
)

func TestRuntimeDirUsesXDGStateHomeFallback(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("XDG_STATE_HOME", "/tmp/state-home")
	t.Setenv("HOME", "/tmp/home")

	got := RuntimeDir()
	want := filepath.Join("/tmp/state-home", "llmcmd")
	if got != want {
		t.Fatalf("RuntimeDir() = %q, want %q", got, want)
	}
}

func TestRuntimeDirFallsBackToHomeLocalState(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/tmp/home")

	got := RuntimeDir()
	want := filepath.Join("/tmp/home", ".local", "state", "llmcmd")
	if got != want {
		t.Fatalf("RuntimeDir() = %q, want %q", got, want)
	}
}

func TestRuntimeFilesShareRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/tmp/xdg-runtime")
	t.Setenv("XDG_STATE_HOME", "/tmp/state-home")

	dir := filepath.Join("/tmp/xdg-runtime", "llmcmd")
	for name, got := range map[string]string{
		"SocketPath":        SocketPath(),
		"PIDPath":           PIDPath(),
		"LockPath":          LockPath(),
		"SpawnLockPath":     SpawnLockPath(),
		"StartupStatusPath": StartupStatusPath(),
	} {
		if filepath.Dir(got) != dir {
			t.Fatalf("%s() = %q, want file under %q", name, got, dir)
		}
	}
}

func TestLogPathStaysInStateDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/tmp/xdg-runtime")
	t.Setenv("XDG_STATE_HOME", "/tmp/state-home")

	got := LogPath()
	want := filepath.Join("/tmp/state-home", "llmcmd", "daemon.log")
	if got != want {
		t.Fatalf("LogPath() = %q, want %q", got, want)
	}
}

func TestConfigFileUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/config-home")

	got := ConfigFile()
	want := filepath.Join("/tmp/config-home", "llmcmd", "config.toml")
	if got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}
}
