package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns the defaults (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg, toml.MetaData{})
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		cfg.unknown = append(cfg.unknown, key.String())
	}
	sort.Strings(cfg.unknown)

	applyDefaults(&cfg, md)
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

// Default returns the configuration written by `llmcmd config init`.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, toml.MetaData{})
	autoStart := true
	cfg.Daemon = DaemonConfig{
		AutoStart:      &autoStart,
		RequestTimeout: defaultRequestTimeout.String(),
		ShutdownGrace:  defaultShutdownGrace.String(),
		StartupTimeout: defaultStartupTimeout.String(),
		LogLevel:       "info",
	}
	cfg.Backend.MaxTokens = backend.DefaultMaxTokens
	return cfg
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

// applyDefaults fills in settings the file left out. md tells an explicit
// false apart from an absent key.
func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendOllama
	}
	if cfg.Backend.Type == BackendOllama && cfg.Backend.Host == "" {
		cfg.Backend.Host = backend.DefaultOllamaHost
	}
	if cfg.Backend.DefaultProfile == "" {
		cfg.Backend.DefaultProfile = DefaultProfileName
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = BuiltinProfiles(cfg.Backend.Type)
	}
	if !md.IsDefined("preferences", "modern_tools") {
		cfg.Preferences.ModernTools = true
	}
	if !md.IsDefined("preferences", "verbose_flags") {
		cfg.Preferences.VerboseFlags = true
	}
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Backend.Host = expandEnvVars(cfg.Backend.Host)
	cfg.Backend.BaseURL = expandEnvVars(cfg.Backend.BaseURL)
	cfg.Backend.APIKey = expandEnvVars(cfg.Backend.APIKey)
	for k, v := range cfg.Backend.Headers {
		cfg.Backend.Headers[k] = expandEnvVars(v)
	}
	for name, p := range cfg.Profiles {
		p.Model = expandEnvVars(p.Model)
		cfg.Profiles[name] = p
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
