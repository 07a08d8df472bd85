package agent

import (
	"context"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/types"
)

// Agent defines the capability interface every concrete agent kind
// implements. The supervisor depends only on this interface, never on kind
// internals, and drives the lifecycle sequence itself:
//
//	Initialize → RunMainLoop → (periodic CheckHealth) → Cleanup
//
// Hooks may fail; the supervisor catches hook errors at its boundary and
// converts them to events. Hooks must honor their context: RunMainLoop's
// context is cancelled when the supervisor stops the agent, and any work the
// hook spawned must wind down before Cleanup returns.
type Agent interface {
	// Name returns the unique agent name from its definition
	Name() string

	// Kind returns the agent kind identifier
	Kind() Kind

	// Initialize performs one-time setup (validating settings, probing for
	// required tools, loading prior history). Failure leaves the agent in
	// error state without entering the active set.
	Initialize(ctx context.Context) error

	// RunMainLoop starts the agent's background work. It must not block:
	// long-running work runs on goroutines tied to ctx.
	RunMainLoop(ctx context.Context) error

	// Cleanup releases resources on stop. The main-loop context is already
	// cancelled when Cleanup runs.
	Cleanup(ctx context.Context) error

	// CheckHealth returns the agent's self-reported operational status.
	// Unhealthy is a normal, expected result for a degraded agent, not an
	// error.
	CheckHealth(ctx context.Context) types.HealthResult
}

// MetricSink receives fire-and-forget instrumentation from agents. It must
// never block or affect control flow.
type MetricSink interface {
	RecordMetric(agent, name string, value float64, tags map[string]string)
	RecordEvent(agent, name string, data map[string]interface{})
}

// discardSink drops all instrumentation
type discardSink struct{}

func (discardSink) RecordMetric(string, string, float64, map[string]string) {}
func (discardSink) RecordEvent(string, string, map[string]interface{})      {}

// Base provides the shared skeleton concrete kinds embed: identity, settings
// access, uptime tracking, a managed work-loop goroutine, and instrumentation
// side channels.
type Base struct {
	name     string
	kind     Kind
	settings Settings

	mu        sync.RWMutex
	startedAt time.Time
	lastRun   time.Time
	lastErr   error
	runCount  int
	failCount int

	loopCancel context.CancelFunc
	loopDone   chan struct{}

	sink MetricSink
}

// NewBase constructs the shared agent skeleton
func NewBase(name string, kind Kind, settings map[string]interface{}, sink MetricSink) Base {
	if sink == nil {
		sink = discardSink{}
	}
	return Base{
		name:     name,
		kind:     kind,
		settings: Settings(settings),
		sink:     sink,
	}
}

// Name returns the agent name
func (b *Base) Name() string { return b.name }

// Kind returns the agent kind
func (b *Base) Kind() Kind { return b.kind }

// Settings returns the opaque per-agent configuration map
func (b *Base) Settings() Settings { return b.settings }

// MarkStarted records the timestamp the uptime clock runs from. StartLoop
// calls it; a kind with a custom main loop calls it there itself.
func (b *Base) MarkStarted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = time.Now()
}

// Uptime returns time since start, or zero if never started
func (b *Base) Uptime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.startedAt.IsZero() {
		return 0
	}
	return time.Since(b.startedAt)
}

// StartLoop runs work at the given interval on a background goroutine until
// the context is cancelled or StopLoop is called. The first run happens after
// one interval, not immediately; Initialize is the place for upfront work.
// The uptime clock starts here.
func (b *Base) StartLoop(ctx context.Context, interval time.Duration, work func(context.Context) error) {
	b.MarkStarted()
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	b.mu.Lock()
	b.loopCancel = cancel
	b.loopDone = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				err := work(loopCtx)
				b.recordRun(err)
			}
		}
	}()
}

// StopLoop cancels the work loop and waits for it to exit
func (b *Base) StopLoop() {
	b.mu.Lock()
	cancel := b.loopCancel
	done := b.loopDone
	b.loopCancel = nil
	b.loopDone = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// recordRun updates run bookkeeping after one work-loop iteration
func (b *Base) recordRun(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRun = time.Now()
	b.lastErr = err
	b.runCount++
	if err != nil {
		b.failCount++
	}
}

// LastRun returns the timestamp and error of the most recent work iteration
func (b *Base) LastRun() (time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRun, b.lastErr
}

// RunStats returns total and failed work-loop iteration counts
func (b *Base) RunStats() (runs, failures int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runCount, b.failCount
}

// DefaultHealth reports healthy with current uptime and run statistics.
// Kinds that embed Base get this behavior unless they override CheckHealth;
// overrides must preserve the status field semantics.
func (b *Base) DefaultHealth() types.HealthResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := types.HealthHealthy
	details := map[string]interface{}{
		"runs":     b.runCount,
		"failures": b.failCount,
	}
	if b.lastErr != nil {
		status = types.HealthUnhealthy
		details["last_error"] = b.lastErr.Error()
	}
	if !b.lastRun.IsZero() {
		details["last_run"] = b.lastRun.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startedAt.IsZero() {
		uptime = time.Since(b.startedAt)
	}

	return types.HealthResult{
		Status:  status,
		Uptime:  uptime,
		Details: details,
	}
}

// RecordMetric forwards a metric to the instrumentation sink. Fire-and-forget.
func (b *Base) RecordMetric(name string, value float64, tags map[string]string) {
	b.sink.RecordMetric(b.name, name, value, tags)
}

// RecordEvent forwards a structured event to the instrumentation sink.
// Fire-and-forget.
func (b *Base) RecordEvent(name string, data map[string]interface{}) {
	b.sink.RecordEvent(b.name, name, data)
}
