// Package agent defines the capability interface implemented by every
// autonomous worker and the explicit registry the workflow engine looks
// agents up in.
package agent

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of one agent invocation.
type Result struct {
	// Content is the raw text the agent produced.
	Content string
	// Structured is the parsed JSON output, when the agent produced
	// valid JSON; otherwise nil.
	Structured map[string]any
	// CostUSD is the estimated spend for this invocation.
	CostUSD float64
	// DurationMS is wall-clock time for the invocation.
	DurationMS int64
}

// Agent executes one named action. The prompt already carries the run's
// accumulated context; the context map is supplementary structured input.
type Agent interface {
	Slug() string
	Execute(ctx context.Context, action, prompt string, input map[string]any) (*Result, error)
}

// NotRegisteredError is returned by Registry.Get for unknown slugs.
type NotRegisteredError struct {
	Slug string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("agent not registered: %s", e.Slug)
}

// Registry maps agent slugs to implementations. It is constructed and
// populated at process start and injected into the engine; there is no
// ambient global registry.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]Agent{}}
}

// Register adds or replaces an agent under its slug.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Slug()] = a
}

// Get returns the agent for a slug, or a NotRegisteredError.
func (r *Registry) Get(slug string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[slug]
	if !ok {
		return nil, &NotRegisteredError{Slug: slug}
	}
	return a, nil
}

// Slugs returns all registered slugs.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for slug := range r.agents {
		out = append(out, slug)
	}
	return out
}
