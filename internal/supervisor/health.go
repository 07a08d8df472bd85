package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/steveyegge/sentinel/internal/events"
	"github.com/steveyegge/sentinel/internal/types"
)

// healthLoop drives the periodic health check for one instance. Each running
// agent arms its own timer at its configured interval; ticks are independent
// across agents. The loop exits when the instance is stopped or when the
// retry budget is exhausted and the supervisor forces a stop.
func (s *Supervisor) healthLoop(name string, inst *instance) {
	defer close(inst.healthDone)

	ticker := time.NewTicker(inst.def.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-inst.healthStop:
			return
		case <-ticker.C:
			// Re-check the stop channel before a potentially slow check
			select {
			case <-inst.healthStop:
				return
			default:
			}

			if exhausted := s.healthTick(name, inst); exhausted {
				// The forced stop finishes on its own goroutine; this loop
				// must exit first so the stop sequence is not waiting on
				// itself.
				go s.finalizeForcedStop(name, inst, false)
				return
			}
		}
	}
}

// CheckNow runs a single health tick for the named agent outside its timer;
// the retry policy applies exactly as it does on a timer tick. Reports
// whether the agent was active.
func (s *Supervisor) CheckNow(name string) bool {
	s.mu.RLock()
	inst, ok := s.active[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if exhausted := s.healthTick(name, inst); exhausted {
		s.finalizeForcedStop(name, inst, true)
	}
	return true
}

// healthTick runs one health check and applies the retry policy. A healthy
// result resets the retry count; an unhealthy one spends budget. Returns
// true when the budget is exhausted and the agent must be force-stopped.
// Every tick emits a health_check event, regardless of outcome.
func (s *Supervisor) healthTick(name string, inst *instance) bool {
	result := s.checkWithTimeout(inst)

	inst.mu.Lock()
	inst.lastActivityAt = time.Now()
	if result.Healthy() {
		inst.retryCount = 0
	} else {
		inst.retryCount++
	}
	retries := inst.retryCount
	inst.mu.Unlock()

	s.bus.Emit(events.NewHealthCheckEvent(name, string(result.Status), result.Uptime, retries, result.Details))

	if result.Healthy() {
		return false
	}

	if retries > inst.def.MaxRetries {
		fmt.Fprintf(os.Stderr, "supervisor: agent %q exhausted retry budget (%d consecutive unhealthy checks), forcing stop\n",
			name, retries)
		inst.setState(types.AgentError)
		s.bus.Emit(events.NewAgentErrorEvent(name,
			fmt.Sprintf("retry budget exhausted after %d unhealthy checks", retries), nil))
		return true
	}

	fmt.Printf("supervisor: agent %q unhealthy (retry %d/%d)\n", name, retries, inst.def.MaxRetries)
	return false
}

// checkWithTimeout runs CheckHealth bounded by the configured timeout. A
// check that hangs past the deadline is reported as unhealthy rather than
// stalling the loop; the stuck goroutine is abandoned to finish on its own.
func (s *Supervisor) checkWithTimeout(inst *instance) types.HealthResult {
	ctx, cancel := context.WithTimeout(context.Background(), s.checkTimeout)
	defer cancel()

	resultCh := make(chan types.HealthResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- types.HealthResult{
					Status:  types.HealthUnhealthy,
					Details: map[string]interface{}{"panic": fmt.Sprintf("%v", r)},
				}
			}
		}()
		resultCh <- inst.agent.CheckHealth(ctx)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return types.HealthResult{
			Status: types.HealthUnhealthy,
			Uptime: inst.uptime(),
			Details: map[string]interface{}{
				"error": fmt.Sprintf("health check timed out after %v", s.checkTimeout),
			},
		}
	}
}

// finalizeForcedStop completes the stop sequence after the retry budget is
// exhausted. The agent is stopped exactly once and never auto-restarted; an
// operator or the dashboard must restart it explicitly. The health-stop
// channel is closed inside stopInstance, under the name lock, so an operator
// stop racing this cannot double-close it. waitHealth is false only when the
// call originates from the instance's own health loop.
func (s *Supervisor) finalizeForcedStop(name string, inst *instance, waitHealth bool) {
	mu := s.lockName(name)
	mu.Lock()
	defer mu.Unlock()

	// The operator may have raced a stop in; only finish ours
	s.mu.RLock()
	current, ok := s.active[name]
	s.mu.RUnlock()
	if !ok || current != inst {
		return
	}

	if err := s.stopInstance(name, inst, waitHealth); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: forced stop of agent %q reported: %v\n", name, err)
	}
}
