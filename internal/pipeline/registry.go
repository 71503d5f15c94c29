package pipeline

import (
	"context"

	"caribou/internal/event"
	"caribou/pkg/models"
)

// HandlerFunc is one unit of event-specific work. Handlers run inside the
// retry engine, so they must stay safe under repeated invocation.
type HandlerFunc func(ctx context.Context, env *models.Envelope) error

// Registry maps each semantic event type to its ordered handler chain.
// Registration happens during startup wiring; the map is read-only
// afterwards, so lookups need no locking.
type Registry struct {
	handlers map[event.Type][]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[event.Type][]HandlerFunc)}
}

func (r *Registry) Register(t event.Type, fn HandlerFunc) {
	r.handlers[t] = append(r.handlers[t], fn)
}

func (r *Registry) For(t event.Type) []HandlerFunc {
	return r.handlers[t]
}
