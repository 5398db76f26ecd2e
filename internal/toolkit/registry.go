package toolkit

import (
	"sync"

	"github.com/kairoai/agentrt/pkg/models"
)

// Registry holds the canonical, frozen tool catalog. Schemas() returns
// entries in registration order — that order is part of the cache key the
// Model Client uses to maximize backend prefix reuse, so tools
// must be registered once, at process start, in a fixed sequence.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering the same name keeps its original
// position in Schemas()'s order.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the ToolSchema for each name in enabled, in the
// registry's canonical order — never the order of the enabled slice — so
// that two runs enabling the same subset always see byte-identical schema
// lists. Transport-injected parameters (session id) are never included:
// each Tool's Schema() omits them by construction.
func (r *Registry) Schemas(enabled []string) []models.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}

	out := make([]models.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		if len(enabled) > 0 && !want[name] {
			continue
		}
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// AllNames returns every registered tool name in canonical order, used as
// the Chat Orchestrator's default enabled-tool subset.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
