package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds external commands run by agents. A hung
// command surfaces as a failed run, never a hung supervisor.
const DefaultCommandTimeout = 2 * time.Minute

// RunResult captures one external command execution
type RunResult struct {
	Command  string
	Output   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes shell commands on behalf of agents with a bounded timeout.
type Runner struct {
	// Dir is the working directory for commands ("" means inherit)
	Dir string
	// Timeout bounds each command (zero means DefaultCommandTimeout)
	Timeout time.Duration
}

// Run executes the command line via the shell, honoring both the runner
// timeout and the caller's context.
func (r *Runner) Run(ctx context.Context, command string) (*RunResult, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &RunResult{
		Command:  command,
		Output:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, fmt.Errorf("command timed out after %v: %s", timeout, command)
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("command exited %d: %s", result.ExitCode, command)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("running command %q: %w", command, err)
	}

	return result, nil
}

// Probe checks that a tool is present on PATH. Used by Initialize hooks to
// fail fast instead of failing on the first work iteration.
func Probe(tool string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return fmt.Errorf("required tool %q not found on PATH: %w", tool, err)
	}
	return nil
}
