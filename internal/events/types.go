package events

import (
	"time"
)

// EventKind represents the type of lifecycle event emitted by the supervisor.
type EventKind string

const (
	// EventAgentStarted indicates an agent completed its full start sequence
	EventAgentStarted EventKind = "agent_started"
	// EventAgentStopped indicates an agent was stopped and removed from the
	// active set
	EventAgentStopped EventKind = "agent_stopped"
	// EventHealthCheck indicates a health-check tick completed, healthy or not
	EventHealthCheck EventKind = "health_check"
	// EventAgentError indicates an agent hook failed or the agent exhausted
	// its retry budget
	EventAgentError EventKind = "agent_error"
)

// LifecycleEvent is a notification of an agent state transition. Events are
// ephemeral: delivered synchronously to subscribers at most once each, with
// no replay for late subscribers.
type LifecycleEvent struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	// Kind is the event type
	Kind EventKind `json:"kind"`

	// Agent is the name of the agent this event concerns
	Agent string `json:"agent"`

	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`

	// Message is a human-readable one-liner for logs and the dashboard feed
	Message string `json:"message"`

	// Payload carries kind-specific details (health result fields, error
	// text, retry counts). Opaque to the bus.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Handler receives lifecycle events. Handlers run synchronously on the
// emitter's goroutine and should return quickly.
type Handler func(LifecycleEvent)
