package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// TestRunner executes the project's test suite on a schedule and reports
// unhealthy after consecutive failures.
type TestRunner struct {
	Base
	runner   *Runner
	command  string
	interval time.Duration
	maxFails int

	mu           sync.RWMutex
	lastPassed   bool
	everRan      bool
	consecFails  int
	lastFailures []string
}

// NewTestRunner constructs a test-runner agent.
//
// Settings: command (default "go test ./..."), dir, interval (default 10m),
// max_consecutive_failures before reporting unhealthy (default 1).
func NewTestRunner(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	return &TestRunner{
		Base: NewBase(def.Name, KindTestRunner, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("dir", "."),
			Timeout: settings.Duration("command_timeout", 10*time.Minute),
		},
		command:  settings.String("command", "go test ./..."),
		interval: settings.Duration("interval", 10*time.Minute),
		maxFails: settings.Int("max_consecutive_failures", 1),
	}, nil
}

func (a *TestRunner) Initialize(ctx context.Context) error {
	tool := strings.Fields(a.command)[0]
	return Probe(tool)
}

func (a *TestRunner) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.runTests)
	return nil
}

func (a *TestRunner) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// runTests executes one suite run and records pass/fail bookkeeping
func (a *TestRunner) runTests(ctx context.Context) error {
	res, err := a.runner.Run(ctx, a.command)

	a.mu.Lock()
	a.everRan = true
	if err != nil {
		a.lastPassed = false
		a.consecFails++
		a.lastFailures = failingPackages(res.Output)
	} else {
		a.lastPassed = true
		a.consecFails = 0
		a.lastFailures = nil
	}
	fails := a.consecFails
	a.mu.Unlock()

	a.RecordMetric("test_duration_ms", float64(res.Duration.Milliseconds()), nil)
	a.RecordMetric("consecutive_failures", float64(fails), nil)
	return err
}

// failingPackages extracts FAIL lines from go test output
func failingPackages(output string) []string {
	var fails []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "FAIL") || strings.HasPrefix(line, "--- FAIL") {
			fails = append(fails, strings.TrimSpace(line))
		}
	}
	return fails
}

// CheckHealth reports unhealthy once the consecutive-failure budget is spent
func (a *TestRunner) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	// A suite that has never run yet is healthy, not unknown
	result.Status = types.HealthHealthy
	delete(result.Details, "last_error")
	result.Details["last_passed"] = a.lastPassed || !a.everRan
	result.Details["consecutive_failures"] = a.consecFails
	if len(a.lastFailures) > 0 {
		result.Details["failing"] = a.lastFailures
	}
	if a.everRan && a.consecFails >= a.maxFails {
		result.Status = types.HealthUnhealthy
	}
	return result
}
