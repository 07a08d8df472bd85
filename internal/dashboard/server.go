// Package dashboard serves the read-mostly HTTP view of the supervisor: a
// JSON API over agent snapshots and the event journal, lifecycle actions for
// the buttons, and a websocket feed of live events.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/steveyegge/sentinel/internal/journal"
	"github.com/steveyegge/sentinel/internal/supervisor"
	"github.com/steveyegge/sentinel/internal/types"
)

// Server is the dashboard HTTP server
type Server struct {
	echo    *echo.Echo
	sup     *supervisor.Supervisor
	jnl     *journal.Journal
	hub     *Hub
	version string
}

// NewServer creates a dashboard over the given supervisor. jnl may be nil
// when the journal failed to open; the event-history endpoints then report
// the journal unavailable while everything else keeps working.
func NewServer(sup *supervisor.Supervisor, jnl *journal.Journal, version string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		sup:     sup,
		jnl:     jnl,
		hub:     NewHub(),
		version: version,
	}

	e.GET("/", s.handleIndex)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/agents", s.handleAgents)
	e.GET("/api/agents/:name", s.handleAgent)
	e.GET("/api/agents/:name/events", s.handleAgentEvents)
	e.GET("/api/events", s.handleEvents)
	e.POST("/api/agents/:name/start", s.handleStart)
	e.POST("/api/agents/:name/stop", s.handleStop)
	e.POST("/api/agents/:name/restart", s.handleRestart)
	e.GET("/ws", s.handleWS)

	return s
}

// Hub exposes the websocket hub so the caller can subscribe it to the bus
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until Shutdown or a listener error
func (s *Server) Start(addr string) error {
	fmt.Printf("dashboard: listening on http://%s\n", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the server and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.HTML(http.StatusOK, indexHTML)
}

func (s *Server) handleStatus(c echo.Context) error {
	snapshots := s.sup.AllStatuses()
	running := 0
	errored := 0
	for _, snap := range snapshots {
		switch snap.State {
		case types.AgentRunning:
			running++
		case types.AgentError:
			errored++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":    s.version,
		"configured": len(snapshots),
		"active":     s.sup.ActiveCount(),
		"running":    running,
		"error":      errored,
		"ws_clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sup.AllStatuses())
}

func (s *Server) handleAgent(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sup.AgentStatus(c.Param("name")))
}

func (s *Server) handleEvents(c echo.Context) error {
	if s.jnl == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "event journal unavailable"})
	}
	evts, err := s.jnl.Recent(c.Request().Context(), queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, evts)
}

func (s *Server) handleAgentEvents(c echo.Context) error {
	if s.jnl == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "event journal unavailable"})
	}
	evts, err := s.jnl.ByAgent(c.Request().Context(), c.Param("name"), queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, evts)
}

func (s *Server) handleStart(c echo.Context) error {
	return s.lifecycle(c, "start", s.sup.StartAgent)
}

func (s *Server) handleStop(c echo.Context) error {
	return s.lifecycle(c, "stop", s.sup.StopAgent)
}

func (s *Server) handleRestart(c echo.Context) error {
	return s.lifecycle(c, "restart", s.sup.RestartAgent)
}

// lifecycle runs one supervisor operation and maps its errors onto HTTP
// status codes. Unknown names are 404, a full active-agent cap is 409;
// everything else is the supervisor's message verbatim.
func (s *Server) lifecycle(c echo.Context, op string, fn func(context.Context, string) error) error {
	name := c.Param("name")
	if err := fn(c.Request().Context(), name); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, types.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, types.ErrConcurrencyLimit):
			status = http.StatusConflict
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"op":     op,
		"agent":  s.sup.AgentStatus(name),
		"action": fmt.Sprintf("%s %s", op, name),
	})
}

func (s *Server) handleWS(c echo.Context) error {
	return s.hub.HandleConn(c.Response(), c.Request())
}

func queryLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}
