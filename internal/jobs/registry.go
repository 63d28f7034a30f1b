package jobs

import "fmt"

// Registry maps job types to handlers. It is immutable after construction.
type Registry struct {
	handlers map[JobType]Handler
}

// NewRegistry builds a registry from the given handlers. It fails on
// duplicate registrations and when any known job type is left uncovered, so
// a missing handler surfaces at startup instead of at dispatch time.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	m := make(map[JobType]Handler, len(handlers))
	for _, h := range handlers {
		if _, exists := m[h.Type()]; exists {
			return nil, fmt.Errorf("duplicate handler for job type %s", h.Type())
		}
		m[h.Type()] = h
	}
	for _, t := range KnownJobTypes() {
		if _, ok := m[t]; !ok {
			return nil, fmt.Errorf("no handler registered for job type %s", t)
		}
	}
	return &Registry{handlers: m}, nil
}

// Lookup returns the handler for a job type.
func (r *Registry) Lookup(jobType JobType) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
