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

// CodeReview watches the working tree for uncommitted changes and produces
// review notes. When a summarizer is available the notes include an AI
// summary of the diff; otherwise the raw diffstat is recorded.
type CodeReview struct {
	Base
	runner     *Runner
	summarizer Summarizer
	interval   time.Duration
	patterns   []string

	mu         sync.RWMutex
	lastReview string
	pending    int
}

// NewCodeReview constructs a code-review agent.
//
// Settings: repo (working dir, default "."), interval (default 5m),
// patterns (markers to flag, default TODO/FIXME/HACK/XXX).
func NewCodeReview(def *config.AgentDefinition, sink MetricSink, summarizer Summarizer) (Agent, error) {
	settings := Settings(def.Settings)
	patterns := settings.Strings("patterns")
	if len(patterns) == 0 {
		patterns = []string{"TODO", "FIXME", "HACK", "XXX"}
	}
	return &CodeReview{
		Base: NewBase(def.Name, KindCodeReview, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("repo", "."),
			Timeout: settings.Duration("command_timeout", DefaultCommandTimeout),
		},
		summarizer: summarizer,
		interval:   settings.Duration("interval", 5*time.Minute),
		patterns:   patterns,
	}, nil
}

// Initialize verifies git is available and the directory is a repository
func (a *CodeReview) Initialize(ctx context.Context) error {
	if err := Probe("git"); err != nil {
		return err
	}
	if _, err := a.runner.Run(ctx, "git rev-parse --git-dir"); err != nil {
		return fmt.Errorf("not a git repository: %w", err)
	}
	return nil
}

// RunMainLoop starts the periodic review pass
func (a *CodeReview) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.review)
	return nil
}

// Cleanup stops the review loop
func (a *CodeReview) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// review runs one pass: diffstat, marker scan, optional AI summary
func (a *CodeReview) review(ctx context.Context) error {
	stat, err := a.runner.Run(ctx, "git diff --stat HEAD")
	if err != nil {
		return fmt.Errorf("diffstat failed: %w", err)
	}

	pending := 0
	if stat.Output != "" {
		pending = strings.Count(stat.Output, "\n")
	}

	summary := stat.Output
	if pending > 0 && a.summarizer != nil {
		diff, derr := a.runner.Run(ctx, "git diff HEAD")
		if derr == nil {
			if s, serr := a.summarizer.Summarize(ctx, "uncommitted changes", diff.Output); serr == nil {
				summary = s
			} else {
				fmt.Fprintf(os.Stderr, "Warning: code-review summary failed: %v (using diffstat)\n", serr)
			}
		}
	}

	markers := 0
	grep := fmt.Sprintf("git diff HEAD | grep -cE %q || true", strings.Join(a.patterns, "|"))
	if res, gerr := a.runner.Run(ctx, grep); gerr == nil {
		fmt.Sscanf(res.Output, "%d", &markers)
	}

	a.mu.Lock()
	a.lastReview = summary
	a.pending = pending
	a.mu.Unlock()

	a.RecordMetric("pending_files", float64(pending), nil)
	a.RecordMetric("review_markers", float64(markers), nil)
	return nil
}

// CheckHealth adds review backlog details to the default report
func (a *CodeReview) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()
	a.mu.RLock()
	result.Details["pending_files"] = a.pending
	if a.lastReview != "" {
		result.Details["last_review"] = truncate(a.lastReview, 500)
	}
	a.mu.RUnlock()
	return result
}

// truncate caps s at n bytes for event payloads
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
