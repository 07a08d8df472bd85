package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// Performance times a probe command on a schedule and tracks regression
// against a rolling baseline of recent runs.
type Performance struct {
	Base
	runner    *Runner
	interval  time.Duration
	command   string
	window    int
	tolerance float64

	mu      sync.RWMutex
	samples []time.Duration
	lastMs  int64
	slow    bool
}

// NewPerformance constructs a performance-analysis agent.
//
// Settings: command (default "go build ./..."), dir, interval (default 15m),
// window (rolling sample count, default 10), tolerance (slowdown multiplier
// over the rolling mean before flagging, default 2.0).
func NewPerformance(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	window := settings.Int("window", 10)
	if window < 2 {
		window = 2
	}
	tolerance := 2.0
	if v, ok := settings["tolerance"].(float64); ok && v > 1 {
		tolerance = v
	}
	return &Performance{
		Base: NewBase(def.Name, KindPerformance, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("dir", "."),
			Timeout: settings.Duration("command_timeout", 10*time.Minute),
		},
		interval:  settings.Duration("interval", 15*time.Minute),
		command:   settings.String("command", "go build ./..."),
		window:    window,
		tolerance: tolerance,
	}, nil
}

func (a *Performance) Initialize(ctx context.Context) error {
	tool := strings.Fields(a.command)[0]
	return Probe(tool)
}

func (a *Performance) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.probe)
	return nil
}

func (a *Performance) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// probe times one run and compares against the rolling mean
func (a *Performance) probe(ctx context.Context) error {
	res, err := a.runner.Run(ctx, a.command)
	if err != nil {
		return fmt.Errorf("probe command failed: %w", err)
	}

	a.mu.Lock()
	a.samples = append(a.samples, res.Duration)
	if len(a.samples) > a.window {
		a.samples = a.samples[len(a.samples)-a.window:]
	}
	mean := rollingMean(a.samples[:len(a.samples)-1])
	a.lastMs = res.Duration.Milliseconds()
	a.slow = mean > 0 && float64(res.Duration) > float64(mean)*a.tolerance
	a.mu.Unlock()

	a.RecordMetric("probe_ms", float64(res.Duration.Milliseconds()), nil)
	return nil
}

func rollingMean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// CheckHealth reports unhealthy when the last probe regressed past tolerance
func (a *Performance) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["last_probe_ms"] = a.lastMs
	result.Details["samples"] = len(a.samples)
	if a.slow {
		result.Status = types.HealthUnhealthy
		result.Details["regression"] = fmt.Sprintf("last probe %dms exceeded %.1fx rolling mean",
			a.lastMs, a.tolerance)
	}
	return result
}
