// Package worker implements the App Worker side of spec.md §5: claiming jobs
// from a per-version queue, dispatching them to registered handlers, and
// persisting the result. Adapted from the teacher's internal/jobs/runtime
// Handler/Registry split, generalized from a job_type dispatch table to a
// (method, path) one.
package worker

import (
	"fmt"
	"strings"
	"sync"
)

// Handler is the contract a business endpoint implements. Method and Path
// together identify the route this handler claims responsibility for, the
// same way the teacher's runtime.Handler.Type() claims a job_type.
type Handler interface {
	Method() string
	Path() string
	Handle(ctx *Context) error
}

// Registry is a concurrency-safe (method, path) -> Handler dispatch table.
// Registration is expected at process startup; lookups happen from many
// consumer goroutines concurrently (spec.md §5).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func routeDispatchKey(method, path string) string {
	return strings.ToUpper(method) + "|" + path
}

// Register adds a handler. At most one handler may claim a given
// (method, path); a duplicate registration is a wiring error and fails fast.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("worker: nil handler")
	}
	if h.Method() == "" || h.Path() == "" {
		return fmt.Errorf("worker: handler Method()/Path() must be non-empty")
	}
	key := routeDispatchKey(h.Method(), h.Path())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("worker: handler already registered for %s", key)
	}
	r.handlers[key] = h
	return nil
}

func (r *Registry) Get(method, path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[routeDispatchKey(method, path)]
	return h, ok
}

// Routes returns every registered handler, one per distinct (method, path)
// this registry can serve, used at startup to register with the Route
// Registry (spec.md §4.3).
func (r *Registry) Routes() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	return out
}
