package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
global:
  log_level: debug
  max_concurrent_agents: 4
  health_interval: 45s
  max_restart_attempts: 5
agents:
  reviewer:
    description: reviews pending changes
    enabled: true
    kind: code-review
    health_interval: 2m
    max_retries: 2
    config:
      repo_path: /srv/repo
  tests:
    enabled: false
    kind: test-runner
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Global.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.Global.LogLevel)
	}
	if cfg.Global.MaxConcurrentAgents != 4 {
		t.Errorf("max_concurrent_agents = %d, want 4", cfg.Global.MaxConcurrentAgents)
	}
	if cfg.Global.HealthInterval != 45*time.Second {
		t.Errorf("health_interval = %v, want 45s", cfg.Global.HealthInterval)
	}

	reviewer := cfg.Definition("reviewer")
	if reviewer == nil {
		t.Fatal("reviewer definition missing")
	}
	if reviewer.Name != "reviewer" {
		t.Errorf("name = %q, want reviewer (filled from map key)", reviewer.Name)
	}
	if reviewer.HealthInterval != 2*time.Minute {
		t.Errorf("reviewer health_interval = %v, want 2m", reviewer.HealthInterval)
	}
	if reviewer.MaxRetries != 2 {
		t.Errorf("reviewer max_retries = %d, want 2", reviewer.MaxRetries)
	}
	if got := reviewer.Settings["repo_path"]; got != "/srv/repo" {
		t.Errorf("repo_path = %v", got)
	}
}

func TestPerAgentDefaultsFallBackToGlobal(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	tests := cfg.Definition("tests")
	if tests.HealthInterval != 45*time.Second {
		t.Errorf("health_interval = %v, want global 45s", tests.HealthInterval)
	}
	if tests.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want global 5", tests.MaxRetries)
	}
	if tests.Settings == nil {
		t.Error("settings must default to an empty map, not nil")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("agents: {}\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	def := DefaultGlobal()
	if cfg.Global.LogLevel != def.LogLevel {
		t.Errorf("log_level = %q, want %q", cfg.Global.LogLevel, def.LogLevel)
	}
	if cfg.Global.HealthInterval != def.HealthInterval {
		t.Errorf("health_interval = %v, want %v", cfg.Global.HealthInterval, def.HealthInterval)
	}
	if cfg.Global.MaxConcurrentAgents != def.MaxConcurrentAgents {
		t.Errorf("max_concurrent_agents = %d, want %d",
			cfg.Global.MaxConcurrentAgents, def.MaxConcurrentAgents)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad log level",
			yaml:    "global:\n  log_level: loud\n",
			wantErr: "log_level",
		},
		{
			name:    "zero concurrency",
			yaml:    "global:\n  max_concurrent_agents: 0\n",
			wantErr: "max_concurrent_agents",
		},
		{
			name:    "sub-second interval",
			yaml:    "global:\n  health_interval: 100ms\n",
			wantErr: "health_interval",
		},
		{
			name:    "unparseable interval",
			yaml:    "global:\n  health_interval: soon\n",
			wantErr: "health_interval",
		},
		{
			name:    "missing kind",
			yaml:    "agents:\n  broken:\n    enabled: true\n",
			wantErr: "kind is required",
		},
		{
			name:    "mismatched name",
			yaml:    "agents:\n  alpha:\n    name: beta\n    kind: monitoring\n",
			wantErr: "does not match map key",
		},
		{
			name:    "retry budget too large",
			yaml:    "agents:\n  alpha:\n    kind: monitoring\n    max_retries: 99\n",
			wantErr: "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")
	t.Setenv("SENTINEL_MAX_CONCURRENT_AGENTS", "2")
	t.Setenv("SENTINEL_HEALTH_INTERVAL", "90s")
	t.Setenv("SENTINEL_JOURNAL_PATH", "/tmp/other.db")

	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Global.LogLevel != "warn" {
		t.Errorf("log_level = %q, want env override warn", cfg.Global.LogLevel)
	}
	if cfg.Global.MaxConcurrentAgents != 2 {
		t.Errorf("max_concurrent_agents = %d, want 2", cfg.Global.MaxConcurrentAgents)
	}
	if cfg.Global.HealthInterval != 90*time.Second {
		t.Errorf("health_interval = %v, want 90s", cfg.Global.HealthInterval)
	}
	if cfg.Global.JournalPath != "/tmp/other.db" {
		t.Errorf("journal_path = %q", cfg.Global.JournalPath)
	}
}

func TestEnabledAgentsSorted(t *testing.T) {
	yaml := `
agents:
  zeta:
    enabled: true
    kind: monitoring
  alpha:
    enabled: true
    kind: monitoring
  mid:
    enabled: false
    kind: monitoring
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	defs := cfg.EnabledAgents()
	if len(defs) != 2 {
		t.Fatalf("got %d enabled agents, want 2", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("order = [%s, %s], want [alpha, zeta]", defs[0].Name, defs[1].Name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Definition("reviewer") == nil {
		t.Error("reviewer definition missing after Load")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}
