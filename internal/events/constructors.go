package events

import (
	"time"

	"github.com/google/uuid"
)

// NewAgentStartedEvent creates the event emitted after an agent's full start
// sequence succeeds.
func NewAgentStartedEvent(agent, kind string) LifecycleEvent {
	return LifecycleEvent{
		ID:        uuid.New().String(),
		Kind:      EventAgentStarted,
		Agent:     agent,
		Timestamp: time.Now(),
		Message:   "agent started",
		Payload: map[string]interface{}{
			"agent_kind": kind,
		},
	}
}

// NewAgentStoppedEvent creates the event emitted when an agent is removed
// from the active set.
func NewAgentStoppedEvent(agent string, uptime time.Duration) LifecycleEvent {
	return LifecycleEvent{
		ID:        uuid.New().String(),
		Kind:      EventAgentStopped,
		Agent:     agent,
		Timestamp: time.Now(),
		Message:   "agent stopped",
		Payload: map[string]interface{}{
			"uptime_ms": uptime.Milliseconds(),
		},
	}
}

// NewHealthCheckEvent creates the event emitted on every health-check tick,
// regardless of outcome.
func NewHealthCheckEvent(agent, status string, uptime time.Duration, retryCount int, details map[string]interface{}) LifecycleEvent {
	payload := map[string]interface{}{
		"status":      status,
		"uptime_ms":   uptime.Milliseconds(),
		"retry_count": retryCount,
	}
	for k, v := range details {
		payload[k] = v
	}
	return LifecycleEvent{
		ID:        uuid.New().String(),
		Kind:      EventHealthCheck,
		Agent:     agent,
		Timestamp: time.Now(),
		Message:   "health check " + status,
		Payload:   payload,
	}
}

// NewAgentErrorEvent creates the event emitted when an agent hook fails or
// the retry budget is exhausted.
func NewAgentErrorEvent(agent, message string, err error) LifecycleEvent {
	payload := make(map[string]interface{})
	if err != nil {
		payload["error"] = err.Error()
	}
	return LifecycleEvent{
		ID:        uuid.New().String(),
		Kind:      EventAgentError,
		Agent:     agent,
		Timestamp: time.Now(),
		Message:   message,
		Payload:   payload,
	}
}
