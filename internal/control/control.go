// Package control provides the Unix-socket command channel between the
// sentinel CLI and a running daemon. The protocol is one JSON command and
// one JSON response per connection.
package control

import (
	"time"
)

// Command types understood by the daemon
const (
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdRestart = "restart"
	CmdStatus  = "status"
	CmdList    = "list"
)

// Command is a control request sent to the daemon
type Command struct {
	// Type is one of the Cmd* constants
	Type string `json:"type"`

	// Agent is the target agent name (required for start/stop/restart,
	// optional for status)
	Agent string `json:"agent,omitempty"`

	// Timestamp is when the command was sent
	Timestamp time.Time `json:"timestamp"`
}

// Response is the daemon's reply to a command
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
