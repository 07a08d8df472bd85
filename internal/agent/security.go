package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
	"github.com/steveyegge/sentinel/internal/types"
)

// Security scans the tree for likely credential leaks on a schedule. The
// patterns are deliberately coarse; findings are facts for the dashboard,
// not judgments.
type Security struct {
	Base
	runner   *Runner
	interval time.Duration
	patterns []string

	mu       sync.RWMutex
	findings int
	lastScan time.Time
}

// NewSecurity constructs a security-scan agent.
//
// Settings: dir (default "."), interval (default 30m), patterns (regexes,
// defaults cover common key material).
func NewSecurity(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	settings := Settings(def.Settings)
	patterns := settings.Strings("patterns")
	if len(patterns) == 0 {
		patterns = []string{
			"AKIA[0-9A-Z]{16}",
			"-----BEGIN (RSA|EC|OPENSSH) PRIVATE KEY-----",
			"(api|secret)_?key\\s*[:=]\\s*['\"][A-Za-z0-9]{20,}",
		}
	}
	return &Security{
		Base: NewBase(def.Name, KindSecurity, def.Settings, sink),
		runner: &Runner{
			Dir:     settings.String("dir", "."),
			Timeout: settings.Duration("command_timeout", 5*time.Minute),
		},
		interval: settings.Duration("interval", 30*time.Minute),
		patterns: patterns,
	}, nil
}

func (a *Security) Initialize(ctx context.Context) error {
	return Probe("grep")
}

func (a *Security) RunMainLoop(ctx context.Context) error {
	a.StartLoop(ctx, a.interval, a.scan)
	return nil
}

func (a *Security) Cleanup(ctx context.Context) error {
	a.StopLoop()
	return nil
}

// scan runs one pass over the tree counting pattern hits
func (a *Security) scan(ctx context.Context) error {
	pattern := strings.Join(a.patterns, "|")
	cmd := fmt.Sprintf("grep -rIlE %q . --exclude-dir=.git --exclude-dir=node_modules | wc -l",
		pattern)
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	count, perr := strconv.Atoi(strings.TrimSpace(res.Output))
	if perr != nil {
		return fmt.Errorf("unexpected scan output %q: %w", res.Output, perr)
	}

	a.mu.Lock()
	a.findings = count
	a.lastScan = time.Now()
	a.mu.Unlock()

	a.RecordMetric("files_with_findings", float64(count), nil)
	return nil
}

// CheckHealth reports unhealthy while any finding is outstanding
func (a *Security) CheckHealth(ctx context.Context) types.HealthResult {
	result := a.DefaultHealth()

	a.mu.RLock()
	defer a.mu.RUnlock()

	result.Details["files_with_findings"] = a.findings
	if !a.lastScan.IsZero() {
		result.Details["last_scan"] = a.lastScan.Format(time.RFC3339)
	}
	if a.findings > 0 {
		result.Status = types.HealthUnhealthy
	}
	return result
}
