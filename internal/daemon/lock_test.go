package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lydakis/llmcmd/internal/backend/backendtest"
)

func TestLockFileIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	release, err := lockFile(path, false)
	if err != nil {
		t.Fatalf("lockFile() error = %v", err)
	}
	if _, err := lockFile(path, false); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second lockFile() error = %v, want %v", err, ErrAlreadyRunning)
	}
	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}

	release, err = lockFile(path, false)
	if err != nil {
		t.Fatalf("lockFile() after release error = %v", err)
	}
	release() //nolint:errcheck
}

func TestLockFileRetriesWhenLockedInodeWasUnlinked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	old := openLockFileFn
	t.Cleanup(func() { openLockFileFn = old })
	calls := 0
	openLockFileFn = func(p string) (*os.File, error) {
		calls++
		f, err := old(p)
		if err == nil && calls == 1 {
			// A stopping daemon unlinks the file after this open.
			if err := os.Remove(p); err != nil {
				t.Fatal(err)
			}
		}
		return f, err
	}

	release, err := lockFile(path, false)
	if err != nil {
		t.Fatalf("lockFile() error = %v", err)
	}
	defer release() //nolint:errcheck
	if calls != 2 {
		t.Fatalf("open calls = %d, want 2", calls)
	}

	openLockFileFn = old
	if _, err := lockFile(path, false); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("lockFile() on the live path error = %v, want %v", err, ErrAlreadyRunning)
	}
}

func TestShutdownRemovesLockFileAndReleasesLock(t *testing.T) {
	opts := testOptions(t)
	rd := startDaemon(t, nil, backendtest.Static("ls"), opts)

	rd.Shutdown()
	if err := rd.wait(t); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if _, err := os.Stat(opts.LockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file still exists after shutdown (err=%v)", err)
	}

	next := startDaemon(t, nil, backendtest.Static("ls"), opts)
	if got := next.State(); got != StateListening {
		t.Fatalf("State() = %v, want %v", got, StateListening)
	}
	if _, err := lockFile(opts.LockPath, false); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("lockFile() while restarted daemon listens error = %v, want %v", err, ErrAlreadyRunning)
	}
}
