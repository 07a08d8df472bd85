package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document: the declarative set of
// agent definitions plus global supervisor policy. Read-mostly after load.
type Config struct {
	// Agents maps agent name to its definition
	Agents map[string]*AgentDefinition `yaml:"agents"`

	// Global holds supervisor-wide policy
	Global GlobalConfig `yaml:"global"`
}

// AgentDefinition describes a single agent: what kind it is, whether the
// supervisor should start it, and the opaque settings handed to the kind.
type AgentDefinition struct {
	// Name is the unique key for this agent
	Name string `yaml:"name"`

	// Description is free-form operator documentation
	Description string `yaml:"description,omitempty"`

	// Enabled controls whether StartAll launches this agent
	Enabled bool `yaml:"enabled"`

	// Kind selects the concrete agent behavior (e.g. "code-review")
	Kind string `yaml:"kind"`

	// Settings is an opaque map passed through to the agent kind untouched.
	// The supervisor never interprets it.
	Settings map[string]interface{} `yaml:"config,omitempty"`

	// MaxRetries is the number of consecutive unhealthy health checks
	// tolerated before the supervisor forces a stop. Defaults to the
	// global MaxRestartAttempts when zero.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// HealthIntervalRaw is the YAML form of the health-check interval,
	// e.g. "30s" or "5m". Defaults to the global interval when empty.
	HealthIntervalRaw string `yaml:"health_interval,omitempty"`

	// HealthInterval is the parsed health-check interval
	HealthInterval time.Duration `yaml:"-"`
}

// GlobalConfig holds supervisor-wide policy
type GlobalConfig struct {
	// LogLevel controls operational output verbosity ("debug", "info", "warn")
	LogLevel string `yaml:"log_level"`

	// MaxConcurrentAgents bounds how many agents may be active at once
	MaxConcurrentAgents int `yaml:"max_concurrent_agents"`

	// HealthIntervalRaw is the YAML form of the default health-check
	// interval for agents that do not set their own
	HealthIntervalRaw string `yaml:"health_interval"`

	// HealthInterval is the parsed default health-check interval
	HealthInterval time.Duration `yaml:"-"`

	// RestartOnFailure controls whether the dashboard offers restart after
	// a forced stop. The supervisor itself never auto-restarts an agent
	// that exhausted its retry budget.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// MaxRestartAttempts is the default retry budget for agents that do
	// not set max_retries
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// JournalPath is the SQLite event journal location
	JournalPath string `yaml:"journal_path"`

	// DashboardAddr is the dashboard HTTP listen address
	DashboardAddr string `yaml:"dashboard_addr"`

	// ControlSocket is the Unix socket path for CLI control commands
	ControlSocket string `yaml:"control_socket"`
}

// DefaultGlobal returns the default global policy
func DefaultGlobal() GlobalConfig {
	return GlobalConfig{
		LogLevel:            "info",
		MaxConcurrentAgents: 10,
		HealthInterval:      30 * time.Second,
		RestartOnFailure:    true,
		MaxRestartAttempts:  3,
		JournalPath:         ".sentinel/journal.db",
		DashboardAddr:       "127.0.0.1:8153",
		ControlSocket:       ".sentinel/control.sock",
	}
}

// Load reads and validates a configuration file. Per-agent values that are
// omitted are filled in from global policy, so callers always see complete
// definitions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults, and validates a configuration document
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Global: DefaultGlobal()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(&cfg.Global); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults parses duration strings and fills omitted per-agent values
// from global policy.
func (c *Config) applyDefaults() error {
	if c.Global.HealthIntervalRaw != "" {
		d, err := time.ParseDuration(c.Global.HealthIntervalRaw)
		if err != nil {
			return fmt.Errorf("global health_interval: %w", err)
		}
		c.Global.HealthInterval = d
	}
	if c.Global.HealthInterval == 0 {
		c.Global.HealthInterval = DefaultGlobal().HealthInterval
	}

	if c.Agents == nil {
		c.Agents = make(map[string]*AgentDefinition)
	}
	for name, def := range c.Agents {
		if def == nil {
			def = &AgentDefinition{}
			c.Agents[name] = def
		}
		if def.Name == "" {
			def.Name = name
		}
		if def.MaxRetries == 0 {
			def.MaxRetries = c.Global.MaxRestartAttempts
		}
		if def.HealthIntervalRaw != "" {
			d, err := time.ParseDuration(def.HealthIntervalRaw)
			if err != nil {
				return fmt.Errorf("agent %q health_interval: %w", name, err)
			}
			def.HealthInterval = d
		}
		if def.HealthInterval == 0 {
			def.HealthInterval = c.Global.HealthInterval
		}
		if def.Settings == nil {
			def.Settings = make(map[string]interface{})
		}
	}
	return nil
}

// Validate checks the configuration for structural problems. It does not
// interpret per-agent settings; those are the agent kind's business.
func (c *Config) Validate() error {
	switch c.Global.LogLevel {
	case "debug", "info", "warn":
	default:
		return fmt.Errorf("log_level must be debug, info, or warn (got %q)", c.Global.LogLevel)
	}

	if c.Global.MaxConcurrentAgents < 1 || c.Global.MaxConcurrentAgents > 100 {
		return fmt.Errorf("max_concurrent_agents must be between 1 and 100 (got %d)",
			c.Global.MaxConcurrentAgents)
	}

	if c.Global.HealthInterval < time.Second {
		return fmt.Errorf("health_interval must be at least 1s (got %v)", c.Global.HealthInterval)
	}

	if c.Global.MaxRestartAttempts < 1 || c.Global.MaxRestartAttempts > 20 {
		return fmt.Errorf("max_restart_attempts must be between 1 and 20 (got %d)",
			c.Global.MaxRestartAttempts)
	}

	for name, def := range c.Agents {
		if def.Name != name {
			return fmt.Errorf("agent %q: name field %q does not match map key", name, def.Name)
		}
		if def.Kind == "" {
			return fmt.Errorf("agent %q: kind is required", name)
		}
		if def.MaxRetries < 1 || def.MaxRetries > 20 {
			return fmt.Errorf("agent %q: max_retries must be between 1 and 20 (got %d)",
				name, def.MaxRetries)
		}
		if def.HealthInterval < time.Second {
			return fmt.Errorf("agent %q: health_interval must be at least 1s (got %v)",
				name, def.HealthInterval)
		}
	}

	return nil
}

// Definition returns the definition for name, or nil if none exists
func (c *Config) Definition(name string) *AgentDefinition {
	return c.Agents[name]
}

// EnabledAgents returns the enabled definitions sorted by name. The sort is
// for log stability only; StartAll order is unspecified.
func (c *Config) EnabledAgents() []*AgentDefinition {
	var defs []*AgentDefinition
	for _, def := range c.Agents {
		if def.Enabled {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
