package agent

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// Monitoring samples host resource usage and flags threshold breaches.
type Monitoring struct {
	Base
	runner        *Runner
	interval      time.Duration
	diskThreshold int
	diskPath      string

	mu          sync.RWMutex
	diskPercent int
	goroutines  int
	breached    bool
}

// NewMonitoring constructs a monitoring agent.
//
// Settings: interval (default 1m), disk_path (default "/"),
// disk_threshold_percent (default 90).
func NewMonitoring(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	return &Monitoring{
		Base:          NewBase(def.Name, KindMonitoring, def.Settings, sink),
		runner:        &Runner{Timeout: settings.Duration("command_timeout", 30*time.Second)},
		interval:      settings.Duration("interval", time.Minute),
		diskPath:      settings.String("disk_path", "/"),
		diskThreshold: settings.Int("disk_threshold_percent", 90),
	}, nil
}

func (a *Monitoring) Initialize(ctx context.Context) error {
	return Probe("df")
}

func (a *Monitoring) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.sample)
	return nil
}

func (a *Monitoring) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// sample takes one resource measurement
func (a *Monitoring) sample(ctx context.Context) error {
	res, err := a.runner.Run(ctx, fmt.Sprintf("df --output=pcent %s | tail -1", a.diskPath))
	if err != nil {
		return fmt.Errorf("disk sample failed: %w", err)
	}

	percent, perr := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(res.Output), "%"))
	if perr != nil {
		return fmt.Errorf("unexpected df output %q: %w", res.Output, perr)
	}

	a.mu.Lock()
	a.diskPercent = percent
	a.goroutines = runtime.NumGoroutine()
	a.breached = percent >= a.diskThreshold
	a.mu.Unlock()

	a.RecordMetric("disk_percent", float64(percent), map[string]string{"path": a.diskPath})
	a.RecordMetric("goroutines", float64(runtime.NumGoroutine()), nil)
	return nil
}

// CheckHealth reports unhealthy while a threshold is breached
func (a *Monitoring) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["disk_percent"] = a.diskPercent
	result.Details["goroutines"] = a.goroutines
	if a.breached {
		result.Status = types.HealthUnhealthy
		result.Details["breach"] = fmt.Sprintf("disk usage %d%% >= %d%% on %s",
			a.diskPercent, a.diskThreshold, a.diskPath)
	}
	return result
}
