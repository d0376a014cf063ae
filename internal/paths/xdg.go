package paths

import (
	"os"
	"path/filepath"
)

const appName = "llmcmd"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the llmcmd config directory ($XDG_CONFIG_HOME/llmcmd).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the llmcmd state directory ($XDG_STATE_HOME/llmcmd).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the directory holding the socket, pid and lock files.
// Falls back to StateDir if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SocketPath returns the path to the daemon Unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "daemon.sock")
}

// PIDPath returns the path to the daemon pid file.
func PIDPath() string {
	return filepath.Join(RuntimeDir(), "daemon.pid")
}

// LockPath returns the path to the lock held by a listening daemon.
func LockPath() string {
	return filepath.Join(RuntimeDir(), "daemon.lock")
}

// SpawnLockPath returns the path to the lock serializing client-side spawns.
func SpawnLockPath() string {
	return filepath.Join(RuntimeDir(), "spawn.lock")
}

// StartupStatusPath returns the file a detached daemon writes once it has
// either started listening ("OK") or failed ("ERROR: ...").
func StartupStatusPath() string {
	return filepath.Join(RuntimeDir(), "startup.status")
}

// LogPath returns the log file used by a detached daemon.
func LogPath() string {
	return filepath.Join(StateDir(), "daemon.log")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
