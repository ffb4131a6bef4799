package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// Handler processes items of a single job type. Implementations own the
// job record lifecycle for their type: mark it running, then complete or
// fail it. A returned error is recorded by the worker's counters but
// never stops the worker loop.
type Handler interface {
	Type() model.JobType
	Run(ctx context.Context, item Item) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	JobType model.JobType
	Fn      func(ctx context.Context, item Item) error
}

// Type implements Handler.
func (h HandlerFunc) Type() model.JobType { return h.JobType }

// Run implements Handler.
func (h HandlerFunc) Run(ctx context.Context, item Item) error { return h.Fn(ctx, item) }

// Registry maps job types to handlers. Registration is
// last-registration-wins, which lets tests and embedders override a
// built-in handler by registering after it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[model.JobType]Handler),
	}
}

// Register adds a handler for its job type, replacing any previous
// registration for that type.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Lookup returns the handler for a job type, or nil when none is
// registered. Callers treat nil as a dispatch failure, not an error.
func (r *Registry) Lookup(t model.JobType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[t]
}

// Types returns the registered job type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
