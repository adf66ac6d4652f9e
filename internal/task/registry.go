package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common errors returned by the Registry.
var (
	ErrUnknownHandler   = errors.New("unknown handler reference")
	ErrDuplicateHandler = errors.New("handler reference already registered")
)

// Handler processes one execution attempt of a task and reports the
// outcome as a typed Result. Implementations must be safe for concurrent
// use: the pool may run many attempts of different tasks at once.
type Handler interface {
	Handle(ctx context.Context, exec *Execution) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, exec *Execution) Result

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, exec *Execution) Result {
	return f(ctx, exec)
}

// PermanentFailureHandler is optionally implemented by handlers that
// need a compensating action when their task fails permanently, e.g.
// marking the owning entity's status as failed with a human-readable
// note so operators can find and remediate it.
type PermanentFailureHandler interface {
	OnPermanentFailure(ctx context.Context, exec *Execution, cause error)
}

// Registry maps handler references to typed handlers. All registrations
// happen during startup wiring; unknown references fail fast at enqueue
// time rather than surfacing as dead tasks at dequeue time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds ref to h. Registering the same reference twice is a
// wiring bug and returns ErrDuplicateHandler.
func (r *Registry) Register(ref string, h Handler) error {
	if ref == "" {
		return fmt.Errorf("handler reference cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q cannot be nil", ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[ref]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, ref)
	}
	r.handlers[ref] = h
	return nil
}

// MustRegister is Register for static startup wiring, panicking on a
// duplicate or invalid registration.
func (r *Registry) MustRegister(ref string, h Handler) {
	if err := r.Register(ref, h); err != nil {
		// ALLOW-PANIC: startup wiring error, unreachable after boot
		panic(err)
	}
}

// Resolve returns the handler registered for ref.
func (r *Registry) Resolve(ref string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, ref)
	}
	return h, nil
}

// Known reports whether ref has a registered handler.
func (r *Registry) Known(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[ref]
	return ok
}

// Refs returns the sorted list of registered handler references.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
