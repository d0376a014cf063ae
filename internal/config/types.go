package config

// Config is the top-level llmcmd configuration.
type Config struct {
	Backend     BackendConfig      `toml:"backend"`
	Profiles    map[string]Profile `toml:"profiles"`
	Preferences Preferences        `toml:"preferences"`
	Daemon      DaemonConfig       `toml:"daemon"`

	// unknown holds keys present in the file that no field decoded.
	unknown []string
}

// BackendConfig selects the provider. Fields that do not apply to the
// selected type are ignored.
type BackendConfig struct {
	Type           string `toml:"type"`
	Host           string `toml:"host,omitempty"` // ollama
	DefaultProfile string `toml:"default_profile"`

	// Cloud providers
	APIKey    string `toml:"api_key,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`

	MaxTokens int               `toml:"max_tokens,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty"`
}

// Profile is a named model choice.
type Profile struct {
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature,omitempty"`
}

// Preferences shape the generated commands.
type Preferences struct {
	ModernTools  bool `toml:"modern_tools"`
	VerboseFlags bool `toml:"verbose_flags"`
}

// DaemonConfig holds lifecycle settings. Durations use time.ParseDuration
// syntax; an empty idle_timeout disables idle shutdown.
type DaemonConfig struct {
	AutoStart      *bool  `toml:"auto_start,omitempty"`
	RequestTimeout string `toml:"request_timeout,omitempty"`
	ShutdownGrace  string `toml:"shutdown_grace,omitempty"`
	StartupTimeout string `toml:"startup_timeout,omitempty"`
	IdleTimeout    string `toml:"idle_timeout,omitempty"`
	LogLevel       string `toml:"log_level,omitempty"`
}

// Backend types.
const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// DefaultProfileName is used when backend.default_profile is unset.
const DefaultProfileName = "default"

// DefaultTemperature applies when a profile leaves temperature unset.
const DefaultTemperature = 0.1

var builtinProfiles = map[string]map[string]string{
	BackendOllama: {
		"default": "qwen2.5-coder:7b",
		"fast":    "qwen2.5-coder:1.5b",
		"heavy":   "qwen2.5-coder:32b",
	},
	BackendAnthropic: {
		"default": "claude-3-5-haiku-latest",
		"fast":    "claude-3-5-haiku-latest",
		"heavy":   "claude-sonnet-4-5",
	},
	BackendOpenAI: {
		"default": "gpt-4o-mini",
		"fast":    "gpt-4o-mini",
		"heavy":   "gpt-4o",
	},
}

var defaultCredentialEnv = map[string]string{
	BackendAnthropic: "ANTHROPIC_API_KEY",
	BackendOpenAI:    "OPENAI_API_KEY",
}

// BuiltinProfiles returns the profiles used for backendType when the config
// file defines none.
func BuiltinProfiles(backendType string) map[string]Profile {
	models := builtinProfiles[backendType]
	out := make(map[string]Profile, len(models))
	for name, model := range models {
		temp := DefaultTemperature
		out[name] = Profile{Model: model, Temperature: &temp}
	}
	return out
}

// IsCloud reports whether the backend type needs an API key.
func (b BackendConfig) IsCloud() bool {
	return b.Type == BackendAnthropic || b.Type == BackendOpenAI
}

// CredentialEnv returns the environment variable consulted for the API key.
func (b BackendConfig) CredentialEnv() string {
	if b.APIKeyEnv != "" {
		return b.APIKeyEnv
	}
	return defaultCredentialEnv[b.Type]
}
