package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides applies SENTINEL_* environment variables on top of the
// loaded global policy. Unset variables leave the file values alone.
//
// Environment variables:
//   - SENTINEL_LOG_LEVEL: operational output verbosity
//   - SENTINEL_MAX_CONCURRENT_AGENTS: bound on simultaneously active agents
//   - SENTINEL_HEALTH_INTERVAL: default health-check interval (e.g. "30s")
//   - SENTINEL_MAX_RESTART_ATTEMPTS: default retry budget
//   - SENTINEL_JOURNAL_PATH: SQLite event journal location
//   - SENTINEL_DASHBOARD_ADDR: dashboard HTTP listen address
//   - SENTINEL_CONTROL_SOCKET: control socket path
func applyEnvOverrides(g *GlobalConfig) error {
	if err := parseEnvString("SENTINEL_LOG_LEVEL", &g.LogLevel); err != nil {
		return err
	}
	if err := parseEnvInt("SENTINEL_MAX_CONCURRENT_AGENTS", &g.MaxConcurrentAgents); err != nil {
		return err
	}
	if err := parseEnvDuration("SENTINEL_HEALTH_INTERVAL", &g.HealthInterval); err != nil {
		return err
	}
	if err := parseEnvInt("SENTINEL_MAX_RESTART_ATTEMPTS", &g.MaxRestartAttempts); err != nil {
		return err
	}
	if err := parseEnvString("SENTINEL_JOURNAL_PATH", &g.JournalPath); err != nil {
		return err
	}
	if err := parseEnvString("SENTINEL_DASHBOARD_ADDR", &g.DashboardAddr); err != nil {
		return err
	}
	return parseEnvString("SENTINEL_CONTROL_SOCKET", &g.ControlSocket)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
