package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/lydakis/llmcmd/internal/backend"
)

func floatPtr(v float64) *float64 { return &v }

func selectionConfig() *Config {
	return &Config{
		Backend: BackendConfig{Type: BackendOllama, DefaultProfile: "default"},
		Profiles: map[string]Profile{
			"default": {Model: "qwen2.5-coder:7b"},
			"fast":    {Model: "qwen2.5-coder:1.5b", Temperature: floatPtr(0.3)},
		},
	}
}

func TestResolvePrecedence(t *testing.T) {
	cfg := selectionConfig()

	tests := []struct {
		name string
		sel  Selection
		want Resolved
	}{
		{name: "default profile", sel: Selection{}, want: Resolved{Profile: "default", Model: "qwen2.5-coder:7b", Temperature: 0.1}},
		{name: "profile", sel: Selection{Profile: "fast"}, want: Resolved{Profile: "fast", Model: "qwen2.5-coder:1.5b", Temperature: 0.3}},
		{name: "model beats profile", sel: Selection{Model: "llama3", Profile: "fast"}, want: Resolved{Model: "llama3", Temperature: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Resolve(tt.sel); got != tt.want {
				t.Fatalf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveMissingProfileFallsBackToDefault(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{Type: BackendOllama, DefaultProfile: "default"},
		Profiles: map[string]Profile{
			"default": {Model: "qwen2.5-coder:7b", Temperature: floatPtr(0.2)},
			"heavy":   {Model: "qwen2.5-coder:32b"},
		},
	}

	got := cfg.Resolve(Selection{Profile: FastProfileName})
	want := Resolved{Profile: "default", Model: "qwen2.5-coder:7b", Temperature: 0.2}
	if got != want {
		t.Fatalf("Resolve(fast) = %+v, want %+v", got, want)
	}
}

func TestResolveMissingProfileFallsBackToBackendModel(t *testing.T) {
	cfg := &Config{
		Backend:  BackendConfig{Type: BackendAnthropic, DefaultProfile: "missing"},
		Profiles: map[string]Profile{"heavy": {Model: "claude-sonnet-4-5"}},
	}

	got := cfg.Resolve(Selection{Profile: "turbo"})
	want := Resolved{Model: "claude-3-5-haiku-latest", Temperature: DefaultTemperature}
	if got != want {
		t.Fatalf("Resolve(turbo) = %+v, want %+v", got, want)
	}
}

func TestResolveFallsBackToBackendModel(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Type: BackendOpenAI, DefaultProfile: "missing"}}
	if got := cfg.Resolve(Selection{}); got.Model != "gpt-4o-mini" {
		t.Fatalf("Resolve() model = %q, want gpt-4o-mini", got.Model)
	}
}

func TestCredentialEnvironmentWinsOverFile(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Type: BackendOpenAI, APIKey: "from-file"}}

	t.Setenv("OPENAI_API_KEY", "")
	got, err := cfg.Credential()
	if err != nil || got != "from-file" {
		t.Fatalf("Credential() = %q, %v, want file key", got, err)
	}

	t.Setenv("OPENAI_API_KEY", "from-env")
	got, err = cfg.Credential()
	if err != nil || got != "from-env" {
		t.Fatalf("Credential() = %q, %v, want env key", got, err)
	}
}

func TestCredentialCustomEnvAndMissing(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Type: BackendAnthropic, APIKeyEnv: "WORK_CLAUDE_KEY"}}

	t.Setenv("WORK_CLAUDE_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "ignored")
	_, err := cfg.Credential()
	if !errors.Is(err, backend.ErrMissingCredential) {
		t.Fatalf("Credential() error = %v, want %v", err, backend.ErrMissingCredential)
	}

	t.Setenv("WORK_CLAUDE_KEY", "sk-work")
	if got, err := cfg.Credential(); err != nil || got != "sk-work" {
		t.Fatalf("Credential() = %q, %v", got, err)
	}

	local := &Config{Backend: BackendConfig{Type: BackendOllama}}
	if got, err := local.Credential(); err != nil || got != "" {
		t.Fatalf("ollama Credential() = %q, %v, want none", got, err)
	}
}

func TestDaemonSettingsDefaults(t *testing.T) {
	cfg := &Config{}
	if cfg.RequestTimeout() != 30*time.Second || cfg.ShutdownGrace() != 5*time.Second || cfg.StartupTimeout() != 5*time.Second {
		t.Fatalf("durations = %v %v %v", cfg.RequestTimeout(), cfg.ShutdownGrace(), cfg.StartupTimeout())
	}
	if cfg.IdleTimeout() != 0 {
		t.Fatalf("IdleTimeout() = %v, want disabled", cfg.IdleTimeout())
	}
	if !cfg.AutoStart() {
		t.Fatal("AutoStart() = false, want true by default")
	}

	off := false
	cfg.Daemon = DaemonConfig{AutoStart: &off, RequestTimeout: "2s", IdleTimeout: "10m", LogLevel: "warn"}
	if cfg.AutoStart() || cfg.RequestTimeout() != 2*time.Second || cfg.IdleTimeout() != 10*time.Minute {
		t.Fatalf("daemon settings = %+v", cfg.Daemon)
	}
	t.Setenv("LLMCMD_DEBUG", "")
	if cfg.LogLevel() != slog.LevelWarn {
		t.Fatalf("LogLevel() = %v, want warn", cfg.LogLevel())
	}
	t.Setenv("LLMCMD_DEBUG", "1")
	if cfg.LogLevel() != slog.LevelDebug {
		t.Fatalf("LogLevel() = %v, want debug", cfg.LogLevel())
	}
}
