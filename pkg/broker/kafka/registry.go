package kafka

import (
	"sync"

	"github.com/tnewman/event-gateway/pkg/broker"
)

// registry maps a topic to its single handler. Topics are listed in the
// order they were first registered.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]broker.Handler
	order    []string
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]broker.Handler)}
}

// set registers h for topic and reports whether a previous handler was replaced.
func (r *registry) set(topic string, h broker.Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.handlers[topic]
	if !replaced {
		r.order = append(r.order, topic)
	}
	r.handlers[topic] = h
	return replaced
}

func (r *registry) get(topic string) (broker.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[topic]
	return h, ok
}

func (r *registry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
