package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Handler executes one control command and returns response data
type Handler func(cmd Command) (map[string]interface{}, error)

// Server listens on a Unix socket for CLI control commands
type Server struct {
	socketPath string
	handler    Handler

	mu       sync.RWMutex
	listener net.Listener
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a control server. The socket is created on Start; a
// leftover socket file from a crashed daemon is removed first.
func NewServer(socketPath string, handler Handler) (*Server, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins accepting control connections in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	fmt.Printf("control: listening on %s\n", s.socketPath)
	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop accepts connections until stopped
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// A short accept deadline lets the loop notice the stop channel
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(time.Second)); err != nil {
			fmt.Fprintf(os.Stderr, "control: failed to set deadline: %v\n", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			fmt.Fprintf(os.Stderr, "control: accept error: %v\n", err)
			continue
		}

		go s.handle(conn)
	}
}

// handle serves one connection: decode a command, run it, reply
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to set deadline: %v\n", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.reply(conn, Response{
			Success: false,
			Message: fmt.Sprintf("decoding command: %v", err),
			Error:   err.Error(),
		})
		return
	}

	data, err := s.handler(cmd)
	if err != nil {
		s.reply(conn, Response{
			Success: false,
			Message: fmt.Sprintf("command %q failed", cmd.Type),
			Data:    data,
			Error:   err.Error(),
		})
		return
	}

	s.reply(conn, Response{
		Success: true,
		Message: fmt.Sprintf("command %q completed", cmd.Type),
		Data:    data,
	})
}

func (s *Server) reply(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to send response: %v\n", err)
	}
}

// Stop shuts the server down and removes the socket file
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	return os.RemoveAll(s.socketPath)
}
