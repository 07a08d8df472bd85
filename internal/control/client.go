package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a control client for the given socket path
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout overrides the per-command timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers one command and waits for the response
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}

// StartAgent asks the daemon to start the named agent
func (c *Client) StartAgent(name string) (*Response, error) {
	return c.Send(Command{Type: CmdStart, Agent: name})
}

// StopAgent asks the daemon to stop the named agent
func (c *Client) StopAgent(name string) (*Response, error) {
	return c.Send(Command{Type: CmdStop, Agent: name})
}

// RestartAgent asks the daemon to restart the named agent
func (c *Client) RestartAgent(name string) (*Response, error) {
	return c.Send(Command{Type: CmdRestart, Agent: name})
}

// Status requests the status of one agent, or all agents when name is empty
func (c *Client) Status(name string) (*Response, error) {
	return c.Send(Command{Type: CmdStatus, Agent: name})
}

// List requests the configured agent definitions
func (c *Client) List() (*Response, error) {
	return c.Send(Command{Type: CmdList})
}
