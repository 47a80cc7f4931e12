// Package toolbox maps tool records to runnable implementations.
package toolbox

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tmc/langchaingo/tools"

	"github.com/avi3tal/agentgraph/internal/graph"
)

var (
	ErrUnknownKind = errors.New("unknown tool kind")
	ErrUnknownTool = errors.New("unknown tool")
	ErrKindExists  = errors.New("tool kind already registered")
)

// Registry holds tool implementations keyed by kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]tools.Tool
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]tools.Tool)}
}

// Builtin returns a registry with the bundled tools.
func Builtin() *Registry {
	r := NewRegistry()
	_ = r.Register(KindPalindrome, Palindrome{})
	_ = r.Register(KindTemperature, Temperature{})
	_ = r.Register(KindEmail, Email{})
	return r
}

func (r *Registry) Register(kind string, t tools.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("%s: %w", kind, ErrKindExists)
	}
	r.kinds[kind] = t
	return nil
}

func (r *Registry) Lookup(kind string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.kinds[kind]
	return t, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Resolver turns tool ids into implementations using the stored tool records.
type Resolver struct {
	registry *Registry
	records  map[string]graph.Tool
}

func NewResolver(registry *Registry, records []graph.Tool) *Resolver {
	m := make(map[string]graph.Tool, len(records))
	for _, t := range records {
		m[t.ID] = t
	}
	return &Resolver{registry: registry, records: m}
}

// Resolve returns one tool per id. The tool is exposed under the record's
// name and description so the model sees what the operator registered.
func (r *Resolver) Resolve(ids []string) ([]tools.Tool, error) {
	out := make([]tools.Tool, 0, len(ids))
	for _, id := range ids {
		rec, ok := r.records[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownTool)
		}
		impl, ok := r.registry.Lookup(rec.Kind)
		if !ok {
			return nil, fmt.Errorf("tool %q: %s: %w", rec.Name, rec.Kind, ErrUnknownKind)
		}
		out = append(out, named{Tool: impl, name: rec.Name, description: rec.Description})
	}
	return out, nil
}

type named struct {
	tools.Tool
	name        string
	description string
}

func (n named) Name() string {
	if n.name == "" {
		return n.Tool.Name()
	}
	return n.name
}

func (n named) Description() string {
	if n.description == "" {
		return n.Tool.Description()
	}
	return n.description
}
