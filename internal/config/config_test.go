package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Relay.Port != 3000 {
			t.Errorf("Relay.Port = %v, want 3000", cfg.Relay.Port)
		}
		if cfg.Agent.Port != 3001 {
			t.Errorf("Agent.Port = %v, want 3001", cfg.Agent.Port)
		}
		if cfg.Relay.AgentTimeout != 30*time.Second {
			t.Errorf("Relay.AgentTimeout = %v, want 30s", cfg.Relay.AgentTimeout)
		}
		if cfg.Completion.Timeout != 30*time.Second {
			t.Errorf("Completion.Timeout = %v, want 30s", cfg.Completion.Timeout)
		}
		if cfg.Agent.TailLines != 20 || cfg.Agent.HealthTailLines != 50 || cfg.Agent.SampleLines != 5 {
			t.Errorf("agent windows = %d/%d/%d, want 20/50/5",
				cfg.Agent.TailLines, cfg.Agent.HealthTailLines, cfg.Agent.SampleLines)
		}
		if cfg.Completion.Enabled() {
			t.Error("Completion.Enabled() = true with no API key")
		}
	})

	t.Run("env var overrides", func(t *testing.T) {
		t.Setenv("HOOKRELAY_RELAY__PORT", "9000")
		t.Setenv("HOOKRELAY_RELAY__SIGNING_SECRET", "shh")
		t.Setenv("HOOKRELAY_RELAY__AGENT_URL", "http://agent.internal:4000/")
		t.Setenv("HOOKRELAY_RELAY__AGENT_TIMEOUT", "45s")
		t.Setenv("HOOKRELAY_AGENT__LOG_DIR", "/var/log/agent")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Relay.Port != 9000 {
			t.Errorf("Relay.Port = %v, want 9000", cfg.Relay.Port)
		}
		if cfg.Relay.SigningSecret != "shh" {
			t.Errorf("Relay.SigningSecret = %q, want shh", cfg.Relay.SigningSecret)
		}
		if cfg.Relay.AgentURL != "http://agent.internal:4000" {
			t.Errorf("Relay.AgentURL = %q, want trailing slash trimmed", cfg.Relay.AgentURL)
		}
		if cfg.Relay.AgentTimeout != 45*time.Second {
			t.Errorf("Relay.AgentTimeout = %v, want 45s", cfg.Relay.AgentTimeout)
		}
		if cfg.Agent.LogDir != "/var/log/agent" {
			t.Errorf("Agent.LogDir = %q", cfg.Agent.LogDir)
		}
	})

	t.Run("yaml file with env substitution", func(t *testing.T) {
		t.Setenv("TEST_COMPLETION_KEY", "sk-from-env")

		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `
completion:
  provider: anthropic
  api_key: ${TEST_COMPLETION_KEY}
  model: claude-3-5-haiku-latest
  timeout: 10s
agent:
  tail_lines: 40
`
		if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Completion.Provider != "anthropic" {
			t.Errorf("Completion.Provider = %q", cfg.Completion.Provider)
		}
		if cfg.Completion.APIKey != "sk-from-env" {
			t.Errorf("Completion.APIKey = %q, want substituted value", cfg.Completion.APIKey)
		}
		if cfg.Completion.Timeout != 10*time.Second {
			t.Errorf("Completion.Timeout = %v, want 10s", cfg.Completion.Timeout)
		}
		if cfg.Agent.TailLines != 40 {
			t.Errorf("Agent.TailLines = %d, want 40", cfg.Agent.TailLines)
		}
		if cfg.Agent.HealthTailLines != 50 {
			t.Errorf("Agent.HealthTailLines = %d, want default 50", cfg.Agent.HealthTailLines)
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.ValidateRelay(); err == nil {
		t.Error("ValidateRelay() = nil without a signing secret")
	}
	cfg.Relay.SigningSecret = "secret"
	if err := cfg.ValidateRelay(); err != nil {
		t.Errorf("ValidateRelay() = %v", err)
	}
	cfg.Relay.AgentURL = "not a url"
	if err := cfg.ValidateRelay(); err == nil {
		t.Error("ValidateRelay() = nil with relative agent URL")
	}

	if err := cfg.ValidateAgent(); err != nil {
		t.Errorf("ValidateAgent() = %v", err)
	}
	cfg.Completion.APIKey = "key"
	cfg.Completion.Provider = "mystery"
	if err := cfg.ValidateAgent(); err == nil {
		t.Error("ValidateAgent() = nil with unsupported provider")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
