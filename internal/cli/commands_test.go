package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/backend/backendtest"
	"github.com/lydakis/llmcmd/internal/config"
	"github.com/lydakis/llmcmd/internal/daemon"
	"github.com/lydakis/llmcmd/internal/ipc"
	"github.com/lydakis/llmcmd/internal/paths"
)

type fakeAdmin struct {
	models  []backend.LocalModel
	pulled  string
	removed string
}

func (f *fakeAdmin) Host() string { return "http://ollama.test" }

func (f *fakeAdmin) ListModels(context.Context) ([]backend.LocalModel, error) {
	return f.models, nil
}

func (f *fakeAdmin) PullModel(_ context.Context, name string, progress func(backend.PullProgress)) error {
	f.pulled = name
	progress(backend.PullProgress{Status: "pulling manifest"})
	progress(backend.PullProgress{Status: "downloading", Total: 2000, Completed: 1000})
	progress(backend.PullProgress{Status: "success"})
	return nil
}

func (f *fakeAdmin) DeleteModel(_ context.Context, name string) error {
	f.removed = name
	return nil
}

func useFakeAdmin(t *testing.T, admin *fakeAdmin) {
	t.Helper()
	old := newModelAdminFn
	newModelAdminFn = func(*config.Config) modelAdmin { return admin }
	t.Cleanup(func() { newModelAdminFn = old })
}

func TestModelsList(t *testing.T) {
	stdout, _ := isolate(t)
	useFakeAdmin(t, &fakeAdmin{models: []backend.LocalModel{{
		Name:          "qwen2.5-coder:7b",
		Size:          4_683_087_332,
		ModifiedAt:    time.Now().Add(-48 * time.Hour),
		ParameterSize: "7.6B",
		Quantization:  "Q4_K_M",
	}}})

	if code := Run([]string{"models", "list"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"NAME", "qwen2.5-coder:7b", "4.7 GB", "7.6B Q4_K_M", "2 days ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsListEmpty(t *testing.T) {
	stdout, _ := isolate(t)
	useFakeAdmin(t, &fakeAdmin{})

	if code := Run([]string{"models", "list"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(stdout.String(), "llmcmd models pull") {
		t.Fatalf("output = %q", stdout.String())
	}
}

func TestModelsPullAndRemove(t *testing.T) {
	stdout, stderr := isolate(t)
	admin := &fakeAdmin{}
	useFakeAdmin(t, admin)

	if code := Run([]string{"models", "pull", "llama3.2:3b"}); code != ipc.ExitOK {
		t.Fatalf("Run(pull) = %d", code)
	}
	if admin.pulled != "llama3.2:3b" {
		t.Fatalf("pulled = %q", admin.pulled)
	}
	if got := stderr.String(); !strings.Contains(got, "pulling manifest\n") || !strings.Contains(got, "downloading: 50% (1.0 kB/2.0 kB)") || !strings.Contains(got, "success") {
		t.Fatalf("progress = %q", got)
	}

	if code := Run([]string{"models", "rm", "old:1b"}); code != ipc.ExitOK {
		t.Fatalf("Run(rm) = %d", code)
	}
	if admin.removed != "old:1b" || !strings.Contains(stdout.String(), "model old:1b removed") {
		t.Fatalf("removed = %q, stdout = %q", admin.removed, stdout.String())
	}
}

func TestModelAdminUsesConfiguredOllamaHost(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Host = "http://gpu-box:11434"
	if got := newModelAdminFn(cfg).Host(); got != "http://gpu-box:11434" {
		t.Fatalf("Host() = %q", got)
	}

	cfg.Backend.Type = config.BackendOpenAI
	if got := newModelAdminFn(cfg).Host(); got != backend.DefaultOllamaHost {
		t.Fatalf("Host() for cloud backend = %q, want %q", got, backend.DefaultOllamaHost)
	}
}

func TestProfilesMarksDefault(t *testing.T) {
	stdout, _ := isolate(t)
	if code := Run([]string{"profiles"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "default (default)\n  model: qwen2.5-coder:7b\n  temperature: 0.1") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "fast\n") || !strings.Contains(out, "heavy\n") {
		t.Fatalf("output missing built-in profiles: %q", out)
	}
}

func TestInstallPrintsSnippet(t *testing.T) {
	stdout, _ := isolate(t)
	if code := Run([]string{"install", "fish"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(stdout.String(), "commandline -i $cmd") {
		t.Fatalf("output = %q", stdout.String())
	}

	stdout.Reset()
	t.Setenv("SHELL", "/bin/bash")
	if code := Run([]string{"install"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(stdout.String(), "~/.bashrc") {
		t.Fatalf("output = %q", stdout.String())
	}

	if code := Run([]string{"install", "tcsh"}); code != ipc.ExitFailure {
		t.Fatalf("Run(tcsh) = %d, want %d", code, ipc.ExitFailure)
	}
}

func TestConfigPathAndInit(t *testing.T) {
	stdout, stderr := isolate(t)

	if code := Run([]string{"config", "path"}); code != ipc.ExitOK {
		t.Fatalf("Run(path) = %d", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != paths.ConfigFile() {
		t.Fatalf("path = %q, want %q", got, paths.ConfigFile())
	}

	if code := Run([]string{"config", "init"}); code != ipc.ExitOK {
		t.Fatalf("Run(init) = %d (stderr %q)", code, stderr.String())
	}
	cfg, err := config.LoadFrom(paths.ConfigFile())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("written config invalid: %v", err)
	}

	if code := Run([]string{"config", "init"}); code != ipc.ExitFailure {
		t.Fatalf("Run(init) over existing = %d, want %d", code, ipc.ExitFailure)
	}
	if !strings.Contains(stderr.String(), "--force") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if code := Run([]string{"config", "init", "--force"}); code != ipc.ExitOK {
		t.Fatalf("Run(init --force) = %d", code)
	}
}

func TestDaemonStatusNotRunning(t *testing.T) {
	stdout, _ := isolate(t)
	if code := Run([]string{"daemon", "status"}); code != ipc.ExitOK {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "Daemon: not running\n") {
		t.Fatalf("output = %q", stdout.String())
	}
}

func TestDaemonStatusAndStop(t *testing.T) {
	stdout, _ := isolate(t)
	startTestDaemon(t, &backendtest.Fake{ProviderName: "ollama", ModelName: "qwen2.5-coder:7b"}, daemon.Options{})

	if code := Run([]string{"daemon", "status", "--json"}); code != ipc.ExitOK {
		t.Fatalf("Run(status) = %d", code)
	}
	var report ipc.StatusReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("status output %q: %v", stdout.String(), err)
	}
	if report.State != "listening" || report.Model != "qwen2.5-coder:7b" || report.PID != os.Getpid() {
		t.Fatalf("report = %+v", report)
	}

	stdout.Reset()
	if code := Run([]string{"daemon", "stop"}); code != ipc.ExitOK {
		t.Fatalf("Run(stop) = %d", code)
	}
	if got := stdout.String(); got != "daemon stopped\n" {
		t.Fatalf("stdout = %q", got)
	}

	stdout.Reset()
	if code := Run([]string{"daemon", "stop"}); code != ipc.ExitOK {
		t.Fatalf("Run(stop) again = %d", code)
	}
	if got := stdout.String(); got != "daemon is not running\n" {
		t.Fatalf("stdout = %q", got)
	}
}

func TestDaemonRunUsesForegroundRunner(t *testing.T) {
	_, stderr := isolate(t)
	old := runForegroundFn
	defer func() { runForegroundFn = old }()

	called := false
	runForegroundFn = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
		called = true
		logger.Info("listening")
		return daemon.ErrAlreadyRunning
	}

	if code := Run([]string{"daemon", "run"}); code != ipc.ExitFailure {
		t.Fatalf("Run() = %d, want %d", code, ipc.ExitFailure)
	}
	if !called {
		t.Fatal("foreground runner not called")
	}
	if got := stderr.String(); !strings.Contains(got, "msg=listening") || !strings.Contains(got, "llmcmd daemon stop") {
		t.Fatalf("stderr = %q", got)
	}
}
