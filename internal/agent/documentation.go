package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// Documentation tracks which source files have changed since their docs were
// last regenerated and, when a summarizer is available, drafts changelog
// entries for the dashboard.
type Documentation struct {
	Base
	runner     *Runner
	summarizer Summarizer
	interval   time.Duration
	dir        string
	docDir     string

	mu        sync.RWMutex
	staleDocs int
	changelog string
}

// NewDocumentation constructs a documentation agent.
//
// Settings: dir (default "."), doc_dir (default "docs"),
// interval (default 1h).
func NewDocumentation(def *config.AgentDefinition, sink MetricSink, summarizer Summarizer) (Agent, error) {
	settings := Settings(def.Settings)
	dir := settings.String("dir", ".")
	return &Documentation{
		Base: NewBase(def.Name, KindDocumentation, def.Settings, sink),
		runner: &Runner{
			Dir:     dir,
			Timeout: settings.Duration("command_timeout", DefaultCommandTimeout),
		},
		summarizer: summarizer,
		interval:   settings.Duration("interval", time.Hour),
		dir:        dir,
		docDir:     settings.String("doc_dir", "docs"),
	}, nil
}

// Initialize verifies the doc directory exists
func (a *Documentation) Initialize(ctx context.Context) error {
	docPath := filepath.Join(a.dir, a.docDir)
	info, err := os.Stat(docPath)
	if err != nil {
		return fmt.Errorf("doc directory %q: %w", docPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("doc path %q is not a directory", docPath)
	}
	return nil
}

func (a *Documentation) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.audit)
	return nil
}

func (a *Documentation) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// audit counts source files newer than the doc tree and drafts a changelog
// entry from recent commits when a summarizer is available.
func (a *Documentation) audit(ctx context.Context) error {
	cmd := fmt.Sprintf("find . -name '*.go' -newer %s -not -path './.git/*' | wc -l", a.docDir)
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("doc audit failed: %w", err)
	}

	var stale int
	fmt.Sscanf(strings.TrimSpace(res.Output), "%d", &stale)

	changelog := ""
	if a.summarizer != nil && stale > 0 {
		log, lerr := a.runner.Run(ctx, "git log --oneline -20")
		if lerr == nil && log.Output != "" {
			if s, serr := a.summarizer.Summarize(ctx, "recent commits for changelog", log.Output); serr == nil {
				changelog = s
			} else {
				fmt.Fprintf(os.Stderr, "Warning: changelog draft failed: %v\n", serr)
			}
		}
	}

	a.mu.Lock()
	a.staleDocs = stale
	if changelog != "" {
		a.changelog = changelog
	}
	a.mu.Unlock()

	a.RecordMetric("stale_docs", float64(stale), nil)
	return nil
}

// CheckHealth adds doc staleness to the default report. Stale docs are a
// detail, not unhealthiness; docs lag code in every living project.
func (a *Documentation) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["stale_docs"] = a.staleDocs
	if a.changelog != "" {
		result.Details["changelog_draft"] = truncate(a.changelog, 500)
	}
	return result
}
