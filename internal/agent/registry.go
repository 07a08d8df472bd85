package agent

import (
	"fmt"
	"sort"

	"github.com/steveyegge/sentinel/internal/config"
)

// Kind identifies a concrete agent behavior. The set is closed: an unknown
// kind in configuration is an error, not a silent no-op.
type Kind string

const (
	KindCodeReview    Kind = "code-review"
	KindTestRunner    Kind = "test-runner"
	KindMonitoring    Kind = "monitoring"
	KindGitSync       Kind = "git-sync"
	KindDeployment    Kind = "deployment"
	KindSecurity      Kind = "security"
	KindPerformance   Kind = "performance"
	KindDocumentation Kind = "documentation"
)

// Factory constructs an agent instance for a definition. The sink may be nil.
type Factory func(def *config.AgentDefinition, sink MetricSink) (Agent, error)

// Registry maps agent kinds to their factories. It is an explicit value
// passed into the supervisor at construction, not a package global, so tests
// can substitute fake kinds without process-wide state.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds a factory for a kind. Registering the same kind twice is a
// programming error.
func (r *Registry) Register(kind Kind, factory Factory) error {
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("agent kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// New constructs an agent for the definition, or reports an unknown kind
func (r *Registry) New(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
	factory, ok := r.factories[Kind(def.Kind)]
	if !ok {
		return nil, fmt.Errorf("no factory for kind %q", def.Kind)
	}
	return factory(def, sink)
}

// Known reports whether the kind has a registered factory
func (r *Registry) Known(kind Kind) bool {
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns the registered kinds, sorted
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Default returns a registry with all eight built-in agent kinds wired.
// The summarizer may be nil; kinds that use it fall back to plain output.
func Default(summarizer Summarizer) *Registry {
	r := NewRegistry()
	// Register cannot fail here: the kind set is distinct by construction
	_ = r.Register(KindCodeReview, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewCodeReview(def, sink, summarizer)
	})
	_ = r.Register(KindTestRunner, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewTestRunner(def, sink)
	})
	_ = r.Register(KindMonitoring, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewMonitoring(def, sink)
	})
	_ = r.Register(KindGitSync, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewGitSync(def, sink)
	})
	_ = r.Register(KindDeployment, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewDeployment(def, sink)
	})
	_ = r.Register(KindSecurity, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewSecurity(def, sink)
	})
	_ = r.Register(KindPerformance, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewPerformance(def, sink)
	})
	_ = r.Register(KindDocumentation, func(def *config.AgentDefinition, sink MetricSink) (Agent, error) {
		return NewDocumentation(def, sink, summarizer)
	})
	return r
}
