package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sentinel/internal/agent"
	"github.com/steveyegge/sentinel/internal/ai"
	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/control"
	"github.com/steveyegge/sentinel/internal/dashboard"
	"github.com/steveyegge/sentinel/internal/events"
	"github.com/steveyegge/sentinel/internal/journal"
	"github.com/steveyegge/sentinel/internal/lock"
	"github.com/steveyegge/sentinel/internal/supervisor"
	"github.com/steveyegge/sentinel/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the supervisor daemon",
	Long: `Start the supervisor daemon: launch every enabled agent, serve the
dashboard, and listen for control commands until interrupted.

Optional subsystems degrade instead of failing: without an Anthropic API
key agents skip AI summaries, and without a writable journal path events
are simply not persisted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		lockPath := filepath.Join(filepath.Dir(cfg.Global.ControlSocket), "daemon.lock")
		lk, err := lock.Acquire(lockPath, Version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := lk.Release(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s Acquired workspace lock (%s)\n", green("✓"), lockPath)

		bus := events.NewBus()

		jnl, err := journal.Open(cfg.Global.JournalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: event journal unavailable, running without history: %v\n", err)
			jnl = nil
		} else {
			defer jnl.Close()
			defer jnl.Subscribe(bus)()
		}

		var summarizer agent.Summarizer
		if client, err := ai.NewClient(""); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: AI summaries disabled: %v\n", err)
		} else {
			summarizer = client
		}

		sup, err := supervisor.New(&supervisor.Config{
			Store:    cfg,
			Registry: agent.Default(summarizer),
			Bus:      bus,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create supervisor: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if jnl != nil {
			go jnl.RunRetentionLoop(ctx, journal.DefaultRetentionConfig())
		}

		ctrl, err := control.NewServer(cfg.Global.ControlSocket, controlHandler(sup, cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: control socket unavailable, CLI commands will not work: %v\n", err)
			ctrl = nil
		} else if err := ctrl.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: control socket unavailable, CLI commands will not work: %v\n", err)
			ctrl = nil
		}

		dash := dashboard.NewServer(sup, jnl, Version)
		defer dash.Hub().Subscribe(bus)()
		go func() {
			if err := dash.Start(cfg.Global.DashboardAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "Warning: dashboard server stopped: %v\n", err)
			}
		}()

		sup.StartAll(ctx)
		fmt.Printf("sentinel %s: %d/%d agents running, dashboard at http://%s\n",
			Version, sup.ActiveCount(), len(cfg.Agents), cfg.Global.DashboardAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		fmt.Printf("\nsentinel: received %v, shutting down\n", sig)

		sup.StopAll(ctx)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: dashboard shutdown: %v\n", err)
		}
		if ctrl != nil {
			if err := ctrl.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: control server shutdown: %v\n", err)
			}
		}
	},
}

// controlHandler maps control-socket commands onto supervisor operations
func controlHandler(sup *supervisor.Supervisor, cfg *config.Config) control.Handler {
	return func(cmd control.Command) (map[string]interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		switch cmd.Type {
		case control.CmdStart, control.CmdStop, control.CmdRestart:
			if cmd.Agent == "" {
				return nil, fmt.Errorf("agent name is required for %q", cmd.Type)
			}
			var err error
			switch cmd.Type {
			case control.CmdStart:
				err = sup.StartAgent(ctx, cmd.Agent)
			case control.CmdStop:
				err = sup.StopAgent(ctx, cmd.Agent)
			case control.CmdRestart:
				err = sup.RestartAgent(ctx, cmd.Agent)
			}
			data := map[string]interface{}{"agent": sup.AgentStatus(cmd.Agent)}
			return data, err

		case control.CmdStatus:
			if cmd.Agent != "" {
				return map[string]interface{}{"agent": sup.AgentStatus(cmd.Agent)}, nil
			}
			return map[string]interface{}{
				"agents": sup.AllStatuses(),
				"active": sup.ActiveCount(),
			}, nil

		case control.CmdList:
			defs := make([]map[string]interface{}, 0, len(cfg.Agents))
			for _, name := range sortedAgentNames(cfg) {
				def := cfg.Agents[name]
				defs = append(defs, map[string]interface{}{
					"name":            def.Name,
					"kind":            def.Kind,
					"enabled":         def.Enabled,
					"description":     def.Description,
					"max_retries":     def.MaxRetries,
					"health_interval": def.HealthInterval.String(),
				})
			}
			return map[string]interface{}{"agents": defs}, nil

		default:
			return nil, fmt.Errorf("unknown command %q", cmd.Type)
		}
	}
}

func sortedAgentNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stateColor picks the display color for an agent state
func stateColor(state types.AgentState) func(a ...interface{}) string {
	switch state {
	case types.AgentRunning:
		return color.New(color.FgGreen).SprintFunc()
	case types.AgentError:
		return color.New(color.FgRed).SprintFunc()
	case types.AgentStarting, types.AgentStopping:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
