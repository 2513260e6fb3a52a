// Package config loads the relay and agent configuration.
//
// Values come from an optional YAML file, then HOOKRELAY_* environment
// variables, which override the file. Nested keys use a double underscore:
// HOOKRELAY_RELAY__SIGNING_SECRET sets relay.signing_secret.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every recognized environment variable.
const EnvPrefix = "HOOKRELAY_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Relay      RelayConfig      `koanf:"relay"`
	Agent      AgentConfig      `koanf:"agent"`
	Completion CompletionConfig `koanf:"completion"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type RelayConfig struct {
	Port          int           `koanf:"port"`
	ServiceName   string        `koanf:"service_name"`
	SigningSecret string        `koanf:"signing_secret"`
	AgentURL      string        `koanf:"agent_url"`
	AgentTimeout  time.Duration `koanf:"agent_timeout"`
}

type AgentConfig struct {
	Port            int    `koanf:"port"`
	LogDir          string `koanf:"log_dir"`
	TailLines       int    `koanf:"tail_lines"`        // window for /process metrics
	HealthTailLines int    `koanf:"health_tail_lines"` // window for /health metrics
	SampleLines     int    `koanf:"sample_lines"`      // raw lines forwarded as context
}

// CompletionConfig selects the optional completion provider. An empty
// APIKey means no provider; the agent then answers with its fallback.
type CompletionConfig struct {
	Provider         string        `koanf:"provider"` // openai, anthropic
	APIKey           string        `koanf:"api_key"`
	BaseURL          string        `koanf:"base_url"`
	Model            string        `koanf:"model"`
	MaxTokens        int           `koanf:"max_tokens"`
	Timeout          time.Duration `koanf:"timeout"`
	MaxContextTokens int           `koanf:"max_context_tokens"`
}

// Enabled reports whether a provider is configured.
func (c CompletionConfig) Enabled() bool {
	return c.APIKey != ""
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

var defaults = map[string]any{
	"server.request_timeout":        60 * time.Second,
	"relay.port":                    3000,
	"relay.service_name":            "webhook-relay",
	"relay.agent_url":               "http://localhost:3001",
	"relay.agent_timeout":           30 * time.Second,
	"agent.port":                    3001,
	"agent.log_dir":                 "./logs",
	"agent.tail_lines":              20,
	"agent.health_tail_lines":       50,
	"agent.sample_lines":            5,
	"completion.provider":           "openai",
	"completion.max_tokens":         1024,
	"completion.timeout":            30 * time.Second,
	"completion.max_context_tokens": 4000,
	"log.level":                     "info",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (if it exists) and the environment. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Relay.SigningSecret = substituteEnvVars(cfg.Relay.SigningSecret)
	cfg.Completion.APIKey = substituteEnvVars(cfg.Completion.APIKey)
	cfg.Relay.AgentURL = strings.TrimSuffix(cfg.Relay.AgentURL, "/")

	return &cfg, nil
}

// ValidateRelay checks the settings the relay cannot start without.
func (c *Config) ValidateRelay() error {
	var errs []error
	if c.Relay.SigningSecret == "" {
		errs = append(errs, errors.New("relay.signing_secret is required"))
	}
	if u, err := url.Parse(c.Relay.AgentURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("relay.agent_url %q is not an absolute URL", c.Relay.AgentURL))
	}
	if c.Relay.AgentTimeout <= 0 {
		errs = append(errs, errors.New("relay.agent_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateAgent checks the settings the agent cannot start without.
func (c *Config) ValidateAgent() error {
	var errs []error
	if c.Agent.LogDir == "" {
		errs = append(errs, errors.New("agent.log_dir is required"))
	}
	if c.Agent.TailLines <= 0 || c.Agent.HealthTailLines <= 0 {
		errs = append(errs, errors.New("agent tail windows must be positive"))
	}
	if c.Completion.Enabled() {
		switch c.Completion.Provider {
		case "openai", "anthropic":
		default:
			errs = append(errs, fmt.Errorf("completion.provider %q is not supported", c.Completion.Provider))
		}
	}
	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
