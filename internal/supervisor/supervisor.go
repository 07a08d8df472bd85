package supervisor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/sentinel/internal/agent"
	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/events"
	"github.com/steveyegge/sentinel/internal/types"
)

// Supervisor owns the set of active agent instances and mediates every
// start/stop/restart request. It drives each instance's periodic health
// check and applies the retry budget: the one genuinely load-bearing policy
// in the system. One misbehaving agent must never take down the supervisor
// or any other agent; hook errors and panics are caught at this boundary,
// logged, and converted to events.
type Supervisor struct {
	cfg      *config.Config
	registry *agent.Registry
	bus      *events.Bus
	sink     agent.MetricSink

	graceDelay   time.Duration
	checkTimeout time.Duration

	// sem bounds simultaneously active agents per global policy
	sem *semaphore.Weighted

	// mu guards the active map. The map has a single writer (the lifecycle
	// operations below); status reads take the read lock and copy.
	mu     sync.RWMutex
	active map[string]*instance

	// nameMu serializes lifecycle operations per agent name. Overlapping
	// start/stop for the same name would risk an inconsistent active-set
	// entry; across different names no ordering is guaranteed or needed.
	nameMuMu sync.Mutex
	nameMu   map[string]*sync.Mutex
}

// instance is the supervisor's bookkeeping for one active agent. Owned
// exclusively by the supervisor; callers only ever see snapshots.
type instance struct {
	agent agent.Agent
	def   *config.AgentDefinition

	mu             sync.RWMutex
	state          types.AgentState
	startedAt      time.Time
	lastActivityAt time.Time
	retryCount     int

	// cancel tears down the agent's main-loop context
	cancel context.CancelFunc

	// healthStop/healthDone manage the health-check goroutine
	healthStop chan struct{}
	healthDone chan struct{}
}

// Config holds supervisor construction parameters
type Config struct {
	// Store is the loaded configuration (agent definitions + global policy)
	Store *config.Config

	// Registry maps agent kinds to factories
	Registry *agent.Registry

	// Bus receives lifecycle events; required
	Bus *events.Bus

	// Sink receives agent instrumentation; nil discards
	Sink agent.MetricSink

	// GraceDelay is the pause between stop and start during a restart
	// (default 1s; tests shorten it)
	GraceDelay time.Duration

	// CheckTimeout bounds a single health check (default 30s). A hung
	// check surfaces as an unhealthy result, never a hung supervisor.
	CheckTimeout time.Duration
}

// New creates a supervisor. It starts nothing; call StartAll or StartAgent.
func New(cfg *Config) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("configuration store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent registry is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	graceDelay := cfg.GraceDelay
	if graceDelay == 0 {
		graceDelay = time.Second
	}
	checkTimeout := cfg.CheckTimeout
	if checkTimeout == 0 {
		checkTimeout = 30 * time.Second
	}

	return &Supervisor{
		cfg:          cfg.Store,
		registry:     cfg.Registry,
		bus:          cfg.Bus,
		sink:         cfg.Sink,
		graceDelay:   graceDelay,
		checkTimeout: checkTimeout,
		sem:          semaphore.NewWeighted(int64(cfg.Store.Global.MaxConcurrentAgents)),
		active:       make(map[string]*instance),
		nameMu:       make(map[string]*sync.Mutex),
	}, nil
}

// lockName returns the per-agent lifecycle mutex, creating it on first use
func (s *Supervisor) lockName(name string) *sync.Mutex {
	s.nameMuMu.Lock()
	defer s.nameMuMu.Unlock()
	mu, ok := s.nameMu[name]
	if !ok {
		mu = &sync.Mutex{}
		s.nameMu[name] = mu
	}
	return mu
}

// StartAll starts every enabled agent definition. Best-effort: per-agent
// failures are logged and surfaced as error events, and the remaining agents
// still start. There is no aggregate return signal.
func (s *Supervisor) StartAll(ctx context.Context) {
	for _, def := range s.cfg.EnabledAgents() {
		if err := s.StartAgent(ctx, def.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start agent %q: %v\n", def.Name, err)
		}
	}
}

// StartAgent starts the named agent. Returns a NotFoundError when no
// definition exists, an UnknownKindError when the definition's kind has no
// registered factory, and a ConcurrencyLimitError when the active-agent cap
// is reached. Starting a disabled or already-active agent is a warning
// no-op, not an error.
func (s *Supervisor) StartAgent(ctx context.Context, name string) error {
	mu := s.lockName(name)
	mu.Lock()
	defer mu.Unlock()

	def := s.cfg.Definition(name)
	if def == nil {
		return types.NotFoundError(name)
	}

	if !def.Enabled {
		fmt.Fprintf(os.Stderr, "Warning: agent %q is disabled, not starting\n", name)
		return nil
	}

	s.mu.RLock()
	_, alreadyActive := s.active[name]
	s.mu.RUnlock()
	if alreadyActive {
		fmt.Fprintf(os.Stderr, "Warning: agent %q is already active, ignoring start\n", name)
		return nil
	}

	if !s.registry.Known(agent.Kind(def.Kind)) {
		return types.UnknownKindError(def.Kind)
	}

	if !s.sem.TryAcquire(1) {
		return fmt.Errorf("not starting %q: %w",
			name, types.ConcurrencyLimitError(s.cfg.Global.MaxConcurrentAgents))
	}

	ag, err := s.registry.New(def, s.sink)
	if err != nil {
		s.sem.Release(1)
		return fmt.Errorf("constructing agent %q: %w", name, err)
	}

	// The agent's lifetime is decoupled from the caller's request context;
	// only an explicit stop tears it down.
	agentCtx, cancel := context.WithCancel(context.Background())

	inst := &instance{
		agent:      ag,
		def:        def,
		state:      types.AgentStarting,
		cancel:     cancel,
		healthStop: make(chan struct{}),
		healthDone: make(chan struct{}),
	}

	if err := s.runHook(name, "initialize", func() error { return ag.Initialize(agentCtx) }); err != nil {
		// Failed init leaves the instance in the active set in error state
		// for operator inspection; an explicit stop/start cycle clears it.
		inst.setState(types.AgentError)
		close(inst.healthDone) // no health loop was started
		s.register(name, inst)
		s.bus.Emit(events.NewAgentErrorEvent(name, "initialization failed", err))
		return fmt.Errorf("initializing agent %q: %w", name, err)
	}

	if err := s.runHook(name, "run main loop", func() error { return ag.RunMainLoop(agentCtx) }); err != nil {
		inst.setState(types.AgentError)
		close(inst.healthDone)
		s.register(name, inst)
		s.bus.Emit(events.NewAgentErrorEvent(name, "main loop failed to start", err))
		return fmt.Errorf("starting main loop for agent %q: %w", name, err)
	}

	now := time.Now()
	inst.mu.Lock()
	inst.state = types.AgentRunning
	inst.startedAt = now
	inst.lastActivityAt = now
	inst.mu.Unlock()

	s.register(name, inst)
	go s.healthLoop(name, inst)

	s.bus.Emit(events.NewAgentStartedEvent(name, def.Kind))
	fmt.Printf("supervisor: started agent %q (kind=%s, health_interval=%v, max_retries=%d)\n",
		name, def.Kind, def.HealthInterval, def.MaxRetries)
	return nil
}

// StopAgent stops the named agent and removes it from the active set.
// Stopping an inactive agent is a warning no-op. A cleanup failure is
// logged and returned, but the entry is removed regardless: the registry
// must stay consistent even when cleanup fails.
func (s *Supervisor) StopAgent(ctx context.Context, name string) error {
	mu := s.lockName(name)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	inst, ok := s.active[name]
	s.mu.RUnlock()
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: agent %q is not active, ignoring stop\n", name)
		return nil
	}

	return s.stopInstance(name, inst, true)
}

// stopInstance runs the stop sequence for an instance already fetched from
// the active set. waitHealth is false only when called from the instance's
// own health loop, which is already exiting.
func (s *Supervisor) stopInstance(name string, inst *instance, waitHealth bool) error {
	inst.setState(types.AgentStopping)

	// Cancel the agent's own pending work before cleanup: health loop first,
	// then the main-loop context. This is the only place healthStop closes,
	// and callers hold the name lock, so the close cannot race.
	select {
	case <-inst.healthStop:
	default:
		close(inst.healthStop)
	}
	if waitHealth {
		<-inst.healthDone
	}
	inst.cancel()

	uptime := inst.uptime()
	cleanupErr := s.runHook(name, "cleanup", func() error {
		return inst.agent.Cleanup(context.Background())
	})

	// Remove the entry whether or not cleanup failed; a zombie entry is
	// worse than an unreported resource.
	s.mu.Lock()
	if s.active[name] == inst {
		delete(s.active, name)
	}
	s.mu.Unlock()
	s.sem.Release(1)

	inst.setState(types.AgentStopped)
	s.bus.Emit(events.NewAgentStoppedEvent(name, uptime))
	fmt.Printf("supervisor: stopped agent %q (uptime=%v)\n", name, uptime.Round(time.Millisecond))

	if cleanupErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: cleanup failed for agent %q: %v\n", name, cleanupErr)
		return fmt.Errorf("cleanup for agent %q: %w", name, cleanupErr)
	}
	return nil
}

// StopAll stops every active agent. Individual failures are logged, never
// re-raised: shutdown always proceeds.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		if err := s.StopAgent(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop agent %q: %v\n", name, err)
		}
	}
}

// RestartAgent stops the agent, waits the grace delay, and starts it again.
// Not atomic: when the stop succeeds but the start fails, the agent stays in
// error state rather than being rolled back to running. Failure from either
// step propagates to the caller.
func (s *Supervisor) RestartAgent(ctx context.Context, name string) error {
	if err := s.StopAgent(ctx, name); err != nil {
		return err
	}

	select {
	case <-time.After(s.graceDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.StartAgent(ctx, name)
}

// AgentStatus returns a snapshot for the named agent. Absence is a valid,
// queryable state: names with no active instance report stopped with zero
// uptime, never an error.
func (s *Supervisor) AgentStatus(name string) types.InstanceSnapshot {
	s.mu.RLock()
	inst, ok := s.active[name]
	s.mu.RUnlock()
	if !ok {
		return types.StoppedSnapshot(name)
	}
	return inst.snapshot(name)
}

// AllStatuses returns snapshots for every configured agent, active or not,
// sorted by name.
func (s *Supervisor) AllStatuses() []types.InstanceSnapshot {
	s.mu.RLock()
	activeCopy := make(map[string]*instance, len(s.active))
	for name, inst := range s.active {
		activeCopy[name] = inst
	}
	s.mu.RUnlock()

	var snapshots []types.InstanceSnapshot
	for name := range s.cfg.Agents {
		if inst, ok := activeCopy[name]; ok {
			snapshots = append(snapshots, inst.snapshot(name))
		} else {
			snapshots = append(snapshots, types.StoppedSnapshot(name))
		}
	}
	// Instances without definitions cannot exist: StartAgent requires one.
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name < snapshots[j].Name })
	return snapshots
}

// ActiveCount returns the number of active instances
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// register inserts a fully-constructed instance into the active set
func (s *Supervisor) register(name string, inst *instance) {
	s.mu.Lock()
	s.active[name] = inst
	s.mu.Unlock()
}

// runHook invokes an agent hook, converting panics into errors so a
// misbehaving agent cannot crash the supervisor.
func (s *Supervisor) runHook(name, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s for agent %q: %v", hook, name, r)
		}
	}()
	return fn()
}

// setState transitions the instance state, tolerating redundant sets
func (i *instance) setState(next types.AgentState) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == next || i.state.CanTransition(next) {
		i.state = next
		return
	}
	// Out-of-order transitions indicate a supervisor bug, not agent
	// misbehavior; log and force the state rather than wedging.
	fmt.Fprintf(os.Stderr, "supervisor: illegal state transition %s -> %s\n", i.state, next)
	i.state = next
}

// uptime returns time since the instance started, or zero if never running
func (i *instance) uptime() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.startedAt.IsZero() {
		return 0
	}
	return time.Since(i.startedAt)
}

// snapshot copies the instance state for callers
func (i *instance) snapshot(name string) types.InstanceSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	uptime := time.Duration(0)
	if !i.startedAt.IsZero() && i.state == types.AgentRunning {
		uptime = time.Since(i.startedAt)
	}
	return types.InstanceSnapshot{
		Name:           name,
		Kind:           i.def.Kind,
		State:          i.state,
		StartedAt:      i.startedAt,
		LastActivityAt: i.lastActivityAt,
		RetryCount:     i.retryCount,
		Uptime:         uptime,
	}
}
