package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/httpheaders"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultShutdownGrace  = 5 * time.Second
	defaultStartupTimeout = 5 * time.Second
)

// FastProfileName is the profile selected by --fast.
const FastProfileName = "fast"

// Selection is a per-request model choice.
type Selection struct {
	Model   string
	Profile string
}

// Resolved is the model and temperature a request runs with.
type Resolved struct {
	Profile     string // empty when Model was given explicitly
	Model       string
	Temperature float64
}

// Resolve applies the precedence explicit model > requested profile >
// default profile > backend fallback. A requested profile that is not
// configured falls through to the default profile.
func (c *Config) Resolve(sel Selection) Resolved {
	if model := strings.TrimSpace(sel.Model); model != "" {
		return Resolved{Model: model, Temperature: DefaultTemperature}
	}

	if name := strings.TrimSpace(sel.Profile); name != "" {
		if p, ok := c.Profiles[name]; ok {
			return resolvedProfile(name, p)
		}
	}

	if p, ok := c.Profiles[c.Backend.DefaultProfile]; ok {
		return resolvedProfile(c.Backend.DefaultProfile, p)
	}
	return Resolved{Model: c.fallbackModel(), Temperature: DefaultTemperature}
}

func resolvedProfile(name string, p Profile) Resolved {
	temp := DefaultTemperature
	if p.Temperature != nil {
		temp = *p.Temperature
	}
	return Resolved{Profile: name, Model: p.Model, Temperature: temp}
}

func (c *Config) fallbackModel() string {
	return builtinProfiles[c.Backend.Type][DefaultProfileName]
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Credential returns the API key for a cloud backend. The environment
// variable wins over the file. Local backends need none.
func (c *Config) Credential() (string, error) {
	if !c.Backend.IsCloud() {
		return "", nil
	}
	env := c.Backend.CredentialEnv()
	if val := strings.TrimSpace(os.Getenv(env)); val != "" {
		return val, nil
	}
	if key := strings.TrimSpace(c.Backend.APIKey); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s backend: %w: set %s or backend.api_key", c.Backend.Type, backend.ErrMissingCredential, env)
}

// BackendSpec builds the immutable backend configuration the daemon starts
// with, resolving the default model and credential.
func (c *Config) BackendSpec() (backend.Config, error) {
	resolved := c.Resolve(Selection{})
	credential, err := c.Credential()
	if err != nil {
		return backend.Config{}, err
	}

	endpoint := c.Backend.BaseURL
	if c.Backend.Type == BackendOllama {
		endpoint = c.Backend.Host
	}
	return backend.Config{
		Provider:   c.Backend.Type,
		Endpoint:   endpoint,
		Model:      resolved.Model,
		Credential: credential,
		MaxTokens:  c.Backend.MaxTokens,
		Headers:    httpheaders.Merge(nil, c.Backend.Headers, true),
	}, nil
}

// PromptPreferences converts the preferences table for prompt assembly.
func (c *Config) PromptPreferences() backend.Preferences {
	return backend.Preferences{
		ModernTools:  c.Preferences.ModernTools,
		VerboseFlags: c.Preferences.VerboseFlags,
	}
}

// AutoStart reports whether the client may spawn the daemon.
func (c *Config) AutoStart() bool {
	return c.Daemon.AutoStart == nil || *c.Daemon.AutoStart
}

// RequestTimeout bounds one backend call.
func (c *Config) RequestTimeout() time.Duration {
	return durationOr(c.Daemon.RequestTimeout, defaultRequestTimeout)
}

// ShutdownGrace bounds how long shutdown waits for in-flight requests.
func (c *Config) ShutdownGrace() time.Duration {
	return durationOr(c.Daemon.ShutdownGrace, defaultShutdownGrace)
}

// StartupTimeout bounds how long a client waits for a spawned daemon.
func (c *Config) StartupTimeout() time.Duration {
	return durationOr(c.Daemon.StartupTimeout, defaultStartupTimeout)
}

// IdleTimeout returns 0 when idle shutdown is disabled.
func (c *Config) IdleTimeout() time.Duration {
	return durationOr(c.Daemon.IdleTimeout, 0)
}

// LogLevel returns the daemon log level. LLMCMD_DEBUG=1 forces debug.
func (c *Config) LogLevel() slog.Level {
	if os.Getenv("LLMCMD_DEBUG") == "1" {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Daemon.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
