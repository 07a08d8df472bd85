package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// GitSync keeps a repository's remote refs fresh and tracks how far the
// local branch has drifted from upstream. It never merges or rebases; that
// is an operator decision.
type GitSync struct {
	Base
	runner   *Runner
	interval time.Duration
	remote   string

	mu       sync.RWMutex
	ahead    int
	behind   int
	fetchErr error
}

// NewGitSync constructs a git-sync agent.
//
// Settings: repo (default "."), remote (default "origin"),
// interval (default 2m).
func NewGitSync(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	return &GitSync{
		Base: NewBase(def.Name, KindGitSync, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("repo", "."),
			Timeout: settings.Duration("command_timeout", DefaultCommandTimeout),
		},
		interval: settings.Duration("interval", 2*time.Minute),
		remote:   settings.String("remote", "origin"),
	}, nil
}

func (a *GitSync) Initialize(ctx context.Context) error {
	if err := Probe("git"); err != nil {
		return err
	}
	if _, err := a.runner.Run(ctx, fmt.Sprintf("git remote get-url %s", a.remote)); err != nil {
		return fmt.Errorf("remote %q not configured: %w", a.remote, err)
	}
	return nil
}

func (a *GitSync) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.sync)
	return nil
}

func (a *GitSync) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// sync fetches the remote and measures ahead/behind drift
func (a *GitSync) sync(ctx context.Context) error {
	_, err := a.runner.Run(ctx, fmt.Sprintf("git fetch %s", a.remote))

	a.mu.Lock()
	a.fetchErr = err
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	res, cerr := a.runner.Run(ctx,
		"git rev-list --left-right --count @{upstream}...HEAD 2>/dev/null || echo '0	0'")
	if cerr != nil {
		return nil // no upstream configured for this branch; fetch alone is the job
	}

	var behind, ahead int
	fmt.Sscanf(res.Output, "%d %d", &behind, &ahead)

	a.mu.Lock()
	a.ahead = ahead
	a.behind = behind
	a.mu.Unlock()

	a.RecordMetric("commits_ahead", float64(ahead), nil)
	a.RecordMetric("commits_behind", float64(behind), nil)
	return nil
}

// CheckHealth reports unhealthy while fetches are failing
func (a *GitSync) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["ahead"] = a.ahead
	result.Details["behind"] = a.behind
	if a.fetchErr != nil {
		result.Status = types.HealthUnhealthy
		result.Details["fetch_error"] = a.fetchErr.Error()
	}
	return result
}
