package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sentinel/internal/agent"
	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/events"
	"github.com/steveyegge/sentinel/internal/types"
)

// fakeAgent is a scriptable agent for supervisor tests
type fakeAgent struct {
	name string

	mu           sync.Mutex
	initErr      error
	initPanic    bool
	runErr       error
	cleanupErr   error
	initCalls    int
	cleanupCalls int
	healthFn     func(ctx context.Context) types.HealthResult
}

func (f *fakeAgent) Name() string     { return f.name }
func (f *fakeAgent) Kind() agent.Kind { return "fake" }

func (f *fakeAgent) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initPanic {
		panic("init exploded")
	}
	return f.initErr
}

func (f *fakeAgent) RunMainLoop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runErr
}

func (f *fakeAgent) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return f.cleanupErr
}

func (f *fakeAgent) CheckHealth(ctx context.Context) types.HealthResult {
	f.mu.Lock()
	fn := f.healthFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return types.HealthResult{Status: types.HealthHealthy}
}

func (f *fakeAgent) cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanupCalls
}

// harness tracks every fake the factory constructs, so tests can inspect
// agents across restarts.
type harness struct {
	mu        sync.Mutex
	created   []*fakeAgent
	configure func(*fakeAgent)
}

func (h *harness) factory(def *config.AgentDefinition, _ agent.MetricSink) (agent.Agent, error) {
	f := &fakeAgent{name: def.Name}
	if h.configure != nil {
		h.configure(f)
	}
	h.mu.Lock()
	h.created = append(h.created, f)
	h.mu.Unlock()
	return f, nil
}

func (h *harness) agents() []*fakeAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*fakeAgent, len(h.created))
	copy(out, h.created)
	return out
}

func (h *harness) registry(t *testing.T) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register("fake", h.factory))
	return reg
}

// recorder collects bus events for assertions
type recorder struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (r *recorder) record(e events.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) byKind(kind events.EventKind) []events.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.LifecycleEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

const baseYAML = `
global:
  max_concurrent_agents: 5
  health_interval: 1h
agents:
  alpha:
    enabled: true
    kind: fake
  beta:
    enabled: true
    kind: fake
  sleeper:
    enabled: false
    kind: fake
`

func testSupervisor(t *testing.T, yamlDoc string, h *harness) (*Supervisor, *recorder) {
	t.Helper()

	cfg, err := config.Parse([]byte(yamlDoc))
	require.NoError(t, err)

	bus := events.NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.record)

	sup, err := New(&Config{
		Store:        cfg,
		Registry:     h.registry(t),
		Bus:          bus,
		GraceDelay:   10 * time.Millisecond,
		CheckTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() { sup.StopAll(context.Background()) })
	return sup, rec
}

func TestStartStopLifecycle(t *testing.T) {
	h := &harness{}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	snap := sup.AgentStatus("alpha")
	assert.Equal(t, types.AgentRunning, snap.State)
	assert.Equal(t, "fake", snap.Kind)
	assert.False(t, snap.StartedAt.IsZero())
	assert.Equal(t, 1, sup.ActiveCount())
	require.Len(t, rec.byKind(events.EventAgentStarted), 1)

	require.NoError(t, sup.StopAgent(ctx, "alpha"))
	assert.Equal(t, 0, sup.ActiveCount())
	assert.Equal(t, types.AgentStopped, sup.AgentStatus("alpha").State)
	require.Len(t, rec.byKind(events.EventAgentStopped), 1)

	agents := h.agents()
	require.Len(t, agents, 1)
	assert.Equal(t, 1, agents[0].cleanups())
}

func TestStartUnknownAgent(t *testing.T) {
	sup, _ := testSupervisor(t, baseYAML, &harness{})

	err := sup.StartAgent(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestStartUnknownKind(t *testing.T) {
	yamlDoc := `
global:
  health_interval: 1h
agents:
  weird:
    enabled: true
    kind: no-such-kind
`
	sup, _ := testSupervisor(t, yamlDoc, &harness{})

	err := sup.StartAgent(context.Background(), "weird")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnknownKind))
}

func TestStartDisabledAgentIsNoOp(t *testing.T) {
	sup, rec := testSupervisor(t, baseYAML, &harness{})

	require.NoError(t, sup.StartAgent(context.Background(), "sleeper"))
	assert.Equal(t, 0, sup.ActiveCount())
	assert.Empty(t, rec.byKind(events.EventAgentStarted))
}

func TestDoubleStartIsNoOp(t *testing.T) {
	h := &harness{}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))
	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	assert.Equal(t, 1, sup.ActiveCount())
	assert.Len(t, h.agents(), 1)
	assert.Len(t, rec.byKind(events.EventAgentStarted), 1)
}

func TestStopInactiveAgentIsNoOp(t *testing.T) {
	sup, rec := testSupervisor(t, baseYAML, &harness{})

	require.NoError(t, sup.StopAgent(context.Background(), "alpha"))
	assert.Empty(t, rec.byKind(events.EventAgentStopped))
}

func TestCleanupFailureStillRemovesAgent(t *testing.T) {
	h := &harness{configure: func(f *fakeAgent) {
		f.cleanupErr = fmt.Errorf("resource leak")
	}}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	err := sup.StopAgent(ctx, "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource leak")

	// The entry is gone and the stop event fired despite the cleanup error
	assert.Equal(t, 0, sup.ActiveCount())
	assert.Len(t, rec.byKind(events.EventAgentStopped), 1)

	// A fresh start works: no stale entry blocks it
	require.NoError(t, sup.StartAgent(ctx, "alpha"))
	assert.Equal(t, 1, sup.ActiveCount())
}

func TestInitFailureLeavesErrorState(t *testing.T) {
	h := &harness{configure: func(f *fakeAgent) {
		f.initErr = fmt.Errorf("missing credential")
	}}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	err := sup.StartAgent(ctx, "alpha")
	require.Error(t, err)

	// The failed instance stays visible in error state until stopped
	assert.Equal(t, types.AgentError, sup.AgentStatus("alpha").State)
	assert.Len(t, rec.byKind(events.EventAgentError), 1)
	assert.Empty(t, rec.byKind(events.EventAgentStarted))

	require.NoError(t, sup.StopAgent(ctx, "alpha"))
	assert.Equal(t, types.AgentStopped, sup.AgentStatus("alpha").State)
}

func TestInitPanicIsContained(t *testing.T) {
	h := &harness{configure: func(f *fakeAgent) {
		f.initPanic = true
	}}
	sup, _ := testSupervisor(t, baseYAML, h)

	err := sup.StartAgent(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestRetryBudgetExhaustionForcesStop(t *testing.T) {
	yamlDoc := `
global:
  health_interval: 1h
agents:
  alpha:
    enabled: true
    kind: fake
    max_retries: 2
`
	h := &harness{configure: func(f *fakeAgent) {
		f.healthFn = func(context.Context) types.HealthResult {
			return types.HealthResult{Status: types.HealthUnhealthy}
		}
	}}
	sup, rec := testSupervisor(t, yamlDoc, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	// Two unhealthy ticks spend the budget without tripping it
	require.True(t, sup.CheckNow("alpha"))
	require.True(t, sup.CheckNow("alpha"))
	assert.Equal(t, 1, sup.ActiveCount())
	assert.Equal(t, 2, sup.AgentStatus("alpha").RetryCount)

	// The third consecutive failure exceeds max_retries and forces a stop
	require.True(t, sup.CheckNow("alpha"))
	assert.Equal(t, 0, sup.ActiveCount())
	assert.Equal(t, types.AgentStopped, sup.AgentStatus("alpha").State)

	// Stopped exactly once, never auto-restarted
	agents := h.agents()
	require.Len(t, agents, 1)
	assert.Equal(t, 1, agents[0].cleanups())

	errs := rec.byKind(events.EventAgentError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "retry budget exhausted")
	assert.Len(t, rec.byKind(events.EventHealthCheck), 3)
	assert.Len(t, rec.byKind(events.EventAgentStopped), 1)
}

func TestForcedStopRacingOperatorStop(t *testing.T) {
	yamlDoc := `
global:
  health_interval: 1h
agents:
  alpha:
    enabled: true
    kind: fake
    max_retries: 1
`
	h := &harness{configure: func(f *fakeAgent) {
		f.healthFn = func(context.Context) types.HealthResult {
			return types.HealthResult{Status: types.HealthUnhealthy}
		}
	}}
	sup, rec := testSupervisor(t, yamlDoc, h)
	ctx := context.Background()

	// A budget-exhausting tick and an operator stop racing the same instance
	// must resolve to exactly one stop, with no double-close panic.
	const rounds = 25
	for i := 0; i < rounds; i++ {
		require.NoError(t, sup.StartAgent(ctx, "alpha"))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.StopAgent(ctx, "alpha")
		}()
		sup.CheckNow("alpha")
		sup.CheckNow("alpha")
		wg.Wait()

		assert.Equal(t, 0, sup.ActiveCount())
	}
	assert.Len(t, rec.byKind(events.EventAgentStopped), rounds)
}

func TestHealthyCheckResetsRetryCount(t *testing.T) {
	var unhealthy bool
	var mu sync.Mutex

	h := &harness{configure: func(f *fakeAgent) {
		f.healthFn = func(context.Context) types.HealthResult {
			mu.Lock()
			defer mu.Unlock()
			if unhealthy {
				return types.HealthResult{Status: types.HealthUnhealthy}
			}
			return types.HealthResult{Status: types.HealthHealthy}
		}
	}}
	sup, _ := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	mu.Lock()
	unhealthy = true
	mu.Unlock()
	require.True(t, sup.CheckNow("alpha"))
	require.True(t, sup.CheckNow("alpha"))
	assert.Equal(t, 2, sup.AgentStatus("alpha").RetryCount)

	mu.Lock()
	unhealthy = false
	mu.Unlock()
	require.True(t, sup.CheckNow("alpha"))
	assert.Equal(t, 0, sup.AgentStatus("alpha").RetryCount)
	assert.Equal(t, 1, sup.ActiveCount())
}

func TestHealthCheckTimeoutCountsAsUnhealthy(t *testing.T) {
	h := &harness{configure: func(f *fakeAgent) {
		f.healthFn = func(ctx context.Context) types.HealthResult {
			<-ctx.Done()
			return types.HealthResult{Status: types.HealthHealthy}
		}
	}}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))
	require.True(t, sup.CheckNow("alpha"))

	assert.Equal(t, 1, sup.AgentStatus("alpha").RetryCount)
	checks := rec.byKind(events.EventHealthCheck)
	require.Len(t, checks, 1)
	assert.Equal(t, string(types.HealthUnhealthy), checks[0].Payload["status"])
}

func TestHealthCheckPanicCountsAsUnhealthy(t *testing.T) {
	h := &harness{configure: func(f *fakeAgent) {
		f.healthFn = func(context.Context) types.HealthResult {
			panic("check exploded")
		}
	}}
	sup, _ := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))
	require.True(t, sup.CheckNow("alpha"))
	assert.Equal(t, 1, sup.AgentStatus("alpha").RetryCount)
}

func TestRestartYieldsNewInstance(t *testing.T) {
	h := &harness{}
	sup, rec := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))
	first := sup.AgentStatus("alpha").StartedAt

	require.NoError(t, sup.RestartAgent(ctx, "alpha"))

	second := sup.AgentStatus("alpha").StartedAt
	assert.True(t, second.After(first), "restart must produce a strictly newer start time")
	assert.Equal(t, types.AgentRunning, sup.AgentStatus("alpha").State)

	agents := h.agents()
	require.Len(t, agents, 2)
	assert.Equal(t, 1, agents[0].cleanups())
	assert.Equal(t, 0, agents[1].cleanups())
	assert.Len(t, rec.byKind(events.EventAgentStarted), 2)
	assert.Len(t, rec.byKind(events.EventAgentStopped), 1)
}

func TestConcurrencyLimit(t *testing.T) {
	yamlDoc := `
global:
  max_concurrent_agents: 1
  health_interval: 1h
agents:
  alpha:
    enabled: true
    kind: fake
  beta:
    enabled: true
    kind: fake
`
	sup, _ := testSupervisor(t, yamlDoc, &harness{})
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	err := sup.StartAgent(ctx, "beta")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConcurrencyLimit))
	assert.Contains(t, err.Error(), "concurrency limit")

	// Stopping one frees the slot
	require.NoError(t, sup.StopAgent(ctx, "alpha"))
	require.NoError(t, sup.StartAgent(ctx, "beta"))
}

func TestStartAllSkipsDisabled(t *testing.T) {
	h := &harness{}
	sup, _ := testSupervisor(t, baseYAML, h)

	sup.StartAll(context.Background())
	assert.Equal(t, 2, sup.ActiveCount())
	assert.Equal(t, types.AgentStopped, sup.AgentStatus("sleeper").State)
}

func TestAllStatusesCoversEveryDefinition(t *testing.T) {
	sup, _ := testSupervisor(t, baseYAML, &harness{})
	ctx := context.Background()

	require.NoError(t, sup.StartAgent(ctx, "alpha"))

	snaps := sup.AllStatuses()
	require.Len(t, snaps, 3)

	byName := make(map[string]types.InstanceSnapshot)
	for _, snap := range snaps {
		byName[snap.Name] = snap
	}
	assert.Equal(t, types.AgentRunning, byName["alpha"].State)
	assert.Equal(t, types.AgentStopped, byName["beta"].State)
	assert.Equal(t, types.AgentStopped, byName["sleeper"].State)
}

func TestStopAllStopsEverything(t *testing.T) {
	h := &harness{}
	sup, _ := testSupervisor(t, baseYAML, h)
	ctx := context.Background()

	sup.StartAll(ctx)
	require.Equal(t, 2, sup.ActiveCount())

	sup.StopAll(ctx)
	assert.Equal(t, 0, sup.ActiveCount())
	for _, f := range h.agents() {
		assert.Equal(t, 1, f.cleanups())
	}
}

func TestCheckNowOnInactiveAgent(t *testing.T) {
	sup, _ := testSupervisor(t, baseYAML, &harness{})
	assert.False(t, sup.CheckNow("alpha"))
}
