package types

import (
	"errors"
	"fmt"
	"time"
)

// AgentState represents the lifecycle state of an agent instance
type AgentState string

const (
	// AgentStopped means the agent is not running
	AgentStopped AgentState = "stopped"
	// AgentStarting means the agent is initializing
	AgentStarting AgentState = "starting"
	// AgentRunning means the agent's main loop is active
	AgentRunning AgentState = "running"
	// AgentStopping means the agent is shutting down
	AgentStopping AgentState = "stopping"
	// AgentError means the agent failed during init, at runtime, or after
	// exhausting its retry budget
	AgentError AgentState = "error"
)

// IsValid returns whether the state is a known agent state
func (s AgentState) IsValid() bool {
	switch s {
	case AgentStopped, AgentStarting, AgentRunning, AgentStopping, AgentError:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Transitions are monotonic within a single start/stop cycle:
// there is no shortcut from stopping back to running, and the only way out
// of error is an explicit stop/start cycle.
func (s AgentState) CanTransition(next AgentState) bool {
	switch s {
	case AgentStopped:
		return next == AgentStarting
	case AgentStarting:
		return next == AgentRunning || next == AgentError
	case AgentRunning:
		return next == AgentStopping || next == AgentError
	case AgentStopping:
		return next == AgentStopped || next == AgentError
	case AgentError:
		return next == AgentStopping
	}
	return false
}

// HealthStatus is the binary outcome of a health check. Unhealthy is the
// normal, expected representation of a degraded agent, not an error.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthResult is the ephemeral product of one health-check tick. It is
// consumed immediately by the supervisor's retry policy and then handed to
// event subscribers; nothing persists it as agent state.
type HealthResult struct {
	Status  HealthStatus           `json:"status"`
	Uptime  time.Duration          `json:"uptime"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Healthy reports whether the result's status is healthy
func (r HealthResult) Healthy() bool {
	return r.Status == HealthHealthy
}

// InstanceSnapshot is a point-in-time view of an agent instance, safe to
// hand to callers. The zero snapshot (state=stopped, uptime=0) is the
// canonical answer for any agent name with no active instance.
type InstanceSnapshot struct {
	Name           string        `json:"name"`
	Kind           string        `json:"kind,omitempty"`
	State          AgentState    `json:"state"`
	StartedAt      time.Time     `json:"started_at,omitzero"`
	LastActivityAt time.Time     `json:"last_activity_at,omitzero"`
	RetryCount     int           `json:"retry_count"`
	Uptime         time.Duration `json:"uptime"`
}

// StoppedSnapshot returns the snapshot reported for an agent that has no
// active instance. Absence is a valid, queryable state, never an error.
func StoppedSnapshot(name string) InstanceSnapshot {
	return InstanceSnapshot{
		Name:  name,
		State: AgentStopped,
	}
}

// Sentinel errors for configuration-level failures. These are caller-visible
// and fatal to the single operation, never to the supervisor itself.
var (
	// ErrNotFound indicates no agent definition exists for the given name
	ErrNotFound = errors.New("agent not found in configuration")

	// ErrUnknownKind indicates a definition's kind has no registered factory
	ErrUnknownKind = errors.New("unknown agent kind")

	// ErrConcurrencyLimit indicates the global cap on simultaneously active
	// agents is reached
	ErrConcurrencyLimit = errors.New("concurrency limit reached")
)

// NotFoundError wraps ErrNotFound with the offending agent name
func NotFoundError(name string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// UnknownKindError wraps ErrUnknownKind with the offending kind
func UnknownKindError(kind string) error {
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ConcurrencyLimitError wraps ErrConcurrencyLimit with the active-agent cap
func ConcurrencyLimitError(limit int) error {
	return fmt.Errorf("%w (%d agents active)", ErrConcurrencyLimit, limit)
}
