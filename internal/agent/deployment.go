package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// Deployment watches for a trigger file and runs the configured deploy
// command when it appears. The trigger file is consumed (removed) before the
// deploy runs so a failing deploy does not retry forever.
type Deployment struct {
	Base
	runner   *Runner
	interval time.Duration
	trigger  string
	command  string

	mu          sync.RWMutex
	deploys     int
	lastStatus  string
	lastDeploy  time.Time
	deployError error
}

// NewDeployment constructs a deployment agent.
//
// Settings: trigger_file (default ".sentinel/deploy.trigger"),
// command (default "make deploy"), dir, interval (default 30s).
func NewDeployment(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	return &Deployment{
		Base: NewBase(def.Name, KindDeployment, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("dir", "."),
			Timeout: settings.Duration("command_timeout", 15*time.Minute),
		},
		interval: settings.Duration("interval", 30*time.Second),
		trigger:  settings.String("trigger_file", ".sentinel/deploy.trigger"),
		command:  settings.String("command", "make deploy"),
	}, nil
}

func (a *Deployment) Initialize(ctx context.Context) error {
	tool := strings.Fields(a.command)[0]
	return Probe(tool)
}

func (a *Deployment) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.poll)
	return nil
}

func (a *Deployment) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// poll checks for the trigger file and deploys when present
func (a *Deployment) poll(ctx context.Context) error {
	if _, err := os.Stat(a.trigger); err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to deploy
		}
		return fmt.Errorf("checking trigger file: %w", err)
	}

	// Consume the trigger before deploying
	if err := os.Remove(a.trigger); err != nil {
		return fmt.Errorf("removing trigger file: %w", err)
	}

	fmt.Printf("deployment[%s]: trigger found, running %q\n", a.Name(), a.command)
	res, err := a.runner.Run(ctx, a.command)

	a.mu.Lock()
	a.deploys++
	a.lastDeploy = time.Now()
	a.deployError = err
	if err != nil {
		a.lastStatus = "failed"
	} else {
		a.lastStatus = "succeeded"
	}
	a.mu.Unlock()

	a.RecordEvent("deploy", map[string]interface{}{
		"status":      a.lastStatus,
		"duration_ms": res.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}
	return nil
}

// CheckHealth reports unhealthy after a failed deploy until the next
// successful one.
func (a *Deployment) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["deploys"] = a.deploys
	if a.lastStatus != "" {
		result.Details["last_deploy_status"] = a.lastStatus
		result.Details["last_deploy_at"] = a.lastDeploy.Format(time.RFC3339)
	}
	if a.deployError != nil {
		result.Status = types.HealthUnhealthy
		result.Details["deploy_error"] = a.deployError.Error()
	}
	return result
}
