package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	for _, key := range cfg.unknown {
		errs = append(errs, fmt.Errorf("%s: unknown setting", key))
	}
	errs = append(errs, validateBackend(cfg.Backend)...)

	for _, name := range cfg.ProfileNames() {
		p := cfg.Profiles[name]
		if strings.TrimSpace(p.Model) == "" {
			errs = append(errs, fmt.Errorf("profiles.%s.model: must not be empty", name))
		}
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			errs = append(errs, fmt.Errorf("profiles.%s.temperature: must be within [0, 2], got %g", name, *p.Temperature))
		}
	}
	if _, ok := cfg.Profiles[cfg.Backend.DefaultProfile]; !ok && len(cfg.Profiles) > 0 {
		errs = append(errs, fmt.Errorf("backend.default_profile: profile %q is not defined", cfg.Backend.DefaultProfile))
	}

	errs = append(errs, validateDaemon(cfg.Daemon)...)
	return errors.Join(errs...)
}

func validateBackend(b BackendConfig) []error {
	var errs []error

	switch b.Type {
	case BackendOllama:
		if err := validateURL(b.Host); err != nil {
			errs = append(errs, fmt.Errorf("backend.host: %w", err))
		}
	case BackendAnthropic, BackendOpenAI:
		if b.BaseURL != "" {
			if err := validateURL(b.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("backend.base_url: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("backend.type: unknown backend %q, want ollama, anthropic or openai", b.Type))
	}

	if b.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("backend.max_tokens: must be >= 0, got %d", b.MaxTokens))
	}
	return errs
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	return nil
}

func validateDaemon(d DaemonConfig) []error {
	var errs []error
	durations := []struct {
		key   string
		value string
	}{
		{"request_timeout", d.RequestTimeout},
		{"shutdown_grace", d.ShutdownGrace},
		{"startup_timeout", d.StartupTimeout},
		{"idle_timeout", d.IdleTimeout},
	}
	for _, field := range durations {
		if field.value == "" {
			continue
		}
		dur, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("daemon.%s: invalid duration %q: %w", field.key, field.value, err))
		} else if dur <= 0 {
			errs = append(errs, fmt.Errorf("daemon.%s: must be > 0, got %q", field.key, field.value))
		}
	}

	if d.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(d.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("daemon.log_level: invalid level %q", d.LogLevel))
		}
	}
	return errs
}
