package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/sentinel/internal/config"
)

func TestBaseIdentity(t *testing.T) {
	b := NewBase("alpha", KindMonitoring, map[string]interface{}{"x": 1}, nil)

	if b.Name() != "alpha" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.Kind() != KindMonitoring {
		t.Errorf("Kind() = %q", b.Kind())
	}
	if b.Settings().Int("x", 0) != 1 {
		t.Error("settings not carried through")
	}
}

func TestBaseUptime(t *testing.T) {
	b := NewBase("alpha", KindMonitoring, nil, nil)

	if b.Uptime() != 0 {
		t.Error("uptime before start must be zero")
	}
	b.MarkStarted()
	time.Sleep(10 * time.Millisecond)
	if b.Uptime() <= 0 {
		t.Error("uptime after start must be positive")
	}
}

func TestBaseLoopRunsAndStops(t *testing.T) {
	b := NewBase("alpha", KindMonitoring, nil, nil)

	var runs atomic.Int32
	b.StartLoop(context.Background(), 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	if b.Uptime() <= 0 {
		t.Error("uptime clock must start with the loop")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("loop ran %d times, want at least 3", runs.Load())
	}

	b.StopLoop()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != after {
		t.Error("loop kept running after StopLoop")
	}

	// Stopping an already-stopped loop is harmless
	b.StopLoop()
}

func TestBaseLoopRecordsFailures(t *testing.T) {
	b := NewBase("alpha", KindMonitoring, nil, nil)

	var calls atomic.Int32
	b.StartLoop(context.Background(), 5*time.Millisecond, func(context.Context) error {
		if calls.Add(1)%2 == 0 {
			return fmt.Errorf("every other run fails")
		}
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runs, fails := b.RunStats(); runs >= 4 && fails >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.StopLoop()

	runs, fails := b.RunStats()
	if runs < 4 || fails < 1 {
		t.Errorf("RunStats() = (%d, %d), want >=4 runs with >=1 failure", runs, fails)
	}
}

func TestKindReportsUptimeAfterStart(t *testing.T) {
	def := &config.AgentDefinition{
		Name:     "watch",
		Kind:     string(KindMonitoring),
		Settings: map[string]interface{}{"interval": "1h"},
	}
	ag, err := NewMonitoring(def, nil)
	if err != nil {
		t.Fatalf("NewMonitoring() error: %v", err)
	}

	ctx := context.Background()
	if err := ag.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := ag.RunMainLoop(ctx); err != nil {
		t.Fatalf("RunMainLoop() error: %v", err)
	}
	defer ag.Cleanup(ctx)

	time.Sleep(20 * time.Millisecond)
	if res := ag.CheckHealth(ctx); res.Uptime <= 0 {
		t.Errorf("running agent reported uptime %v, want > 0", res.Uptime)
	}
}

func TestDefaultHealthReflectsLastError(t *testing.T) {
	b := NewBase("alpha", KindMonitoring, nil, nil)
	b.MarkStarted()

	b.recordRun(nil)
	res := b.DefaultHealth()
	if !res.Healthy() {
		t.Errorf("healthy run produced %+v", res)
	}

	b.recordRun(fmt.Errorf("disk on fire"))
	res = b.DefaultHealth()
	if res.Healthy() {
		t.Error("failed run must report unhealthy")
	}
	if res.Details["last_error"] != "disk on fire" {
		t.Errorf("last_error = %v", res.Details["last_error"])
	}

	// Recovery clears the status
	b.recordRun(nil)
	if !b.DefaultHealth().Healthy() {
		t.Error("successful run must clear unhealthy status")
	}
}

func TestSettingsAccessors(t *testing.T) {
	s := Settings{
		"str":      "value",
		"num":      3,
		"float":    4.0,
		"flag":     true,
		"interval": "5m",
		"bad":      "not-a-duration",
		"list":     []interface{}{"a", "b"},
	}

	if got := s.String("str", "x"); got != "value" {
		t.Errorf("String = %q", got)
	}
	if got := s.String("missing", "x"); got != "x" {
		t.Errorf("String fallback = %q", got)
	}
	if got := s.Int("num", 0); got != 3 {
		t.Errorf("Int = %d", got)
	}
	if got := s.Int("float", 0); got != 4 {
		t.Errorf("Int from float64 = %d", got)
	}
	if got := s.Bool("flag", false); got != true {
		t.Errorf("Bool = %v", got)
	}
	if got := s.Duration("interval", time.Second); got != 5*time.Minute {
		t.Errorf("Duration = %v", got)
	}
	if got := s.Duration("bad", time.Second); got != time.Second {
		t.Errorf("Duration fallback = %v", got)
	}
	if got := s.Strings("list"); len(got) != 2 || got[0] != "a" {
		t.Errorf("Strings = %v", got)
	}
	if got := s.Strings("missing"); got != nil {
		t.Errorf("Strings for missing key = %v, want nil", got)
	}
}

func TestDefaultRegistryHasAllKinds(t *testing.T) {
	reg := Default(nil)

	want := []Kind{
		KindCodeReview, KindTestRunner, KindMonitoring, KindGitSync,
		KindDeployment, KindSecurity, KindPerformance, KindDocumentation,
	}
	for _, kind := range want {
		if !reg.Known(kind) {
			t.Errorf("kind %q not registered", kind)
		}
	}
	if len(reg.Kinds()) != len(want) {
		t.Errorf("got %d kinds, want %d", len(reg.Kinds()), len(want))
	}
	if reg.Known("alien") {
		t.Error("unknown kind reported as known")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("fake", nil); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register("fake", nil); err == nil {
		t.Error("duplicate Register must fail")
	}
}

func TestRunnerExecutesCommands(t *testing.T) {
	r := &Runner{Timeout: 5 * time.Second}

	res, err := r.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}

	res, err = r.Run(context.Background(), "exit 3")
	if err == nil {
		t.Fatal("failing command must return an error")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := &Runner{Timeout: 50 * time.Millisecond}

	_, err := r.Run(context.Background(), "sleep 5")
	if err == nil {
		t.Fatal("hung command must time out")
	}
}

func TestProbe(t *testing.T) {
	if err := Probe("sh"); err != nil {
		t.Errorf("Probe(sh) = %v", err)
	}
	if err := Probe("definitely-not-a-real-tool-xyz"); err == nil {
		t.Error("Probe of a missing tool must fail")
	}
}

func TestFailingPackages(t *testing.T) {
	output := `ok  	example.com/good	0.01s
--- FAIL: TestThing (0.00s)
FAIL	example.com/bad	0.02s
FAIL`
	fails := failingPackages(output)
	if len(fails) != 3 {
		t.Fatalf("got %d FAIL lines, want 3: %v", len(fails), fails)
	}
}

// sinkRecorder captures instrumentation for assertions
type sinkRecorder struct {
	mu      sync.Mutex
	metrics []string
}

func (s *sinkRecorder) RecordMetric(agent, name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, name)
}

func (s *sinkRecorder) RecordEvent(string, string, map[string]interface{}) {}

func TestBaseForwardsMetricsToSink(t *testing.T) {
	sink := &sinkRecorder{}
	b := NewBase("alpha", KindMonitoring, nil, sink)

	b.RecordMetric("latency_ms", 12, nil)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.metrics) != 1 || sink.metrics[0] != "latency_ms" {
		t.Errorf("metrics = %v", sink.metrics)
	}
}
