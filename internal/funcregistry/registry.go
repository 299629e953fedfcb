// Package funcregistry resolves named external functions (e.g. ML
// classifiers) that function actions invoke with a record as input.
package funcregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// Output is what a named function returns. Fields are candidate record
// mutations; Confidence gates whether they are applied (function output is
// untrusted until it clears the rule's threshold).
type Output struct {
	Confidence float64        `json:"confidence"`
	Fields     map[string]any `json:"fields,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// Invoker executes one named function.
type Invoker interface {
	Invoke(ctx context.Context, rec types.Record) (*Output, error)
}

// Registry maps function names to invokers.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Invoker
}

// NewRegistry creates an empty function registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Invoker)}
}

// Register binds a name to an invoker, replacing any previous binding.
func (r *Registry) Register(name string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = inv
}

// Get resolves a named function.
func (r *Registry) Get(name string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("function %q is not registered", name)
	}
	return inv, nil
}

// LoadEndpoints registers an HTTP invoker per configured name -> URL.
func (r *Registry) LoadEndpoints(endpoints map[string]string) {
	for name, url := range endpoints {
		r.Register(name, NewHTTPInvoker(url))
	}
}
