package dispatch

import (
	"fmt"

	"github.com/nerrad567/mqtt-recorder/internal/topic"
)

// maxQoS is the highest MQTT QoS level.
const maxQoS = 2

// Subscription is a registered topic pattern with its QoS and handler.
type Subscription struct {
	Pattern string
	QoS     byte
	Handler Handler
}

// Registry maps topic patterns to handlers.
type Registry struct {
	subs   []Subscription
	index  map[string]int
	cache  map[string]Handler
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
		cache: make(map[string]Handler),
	}
}

// Register adds a subscription for pattern.
//
// Registering a pattern that already exists replaces its QoS and handler but
// keeps its original position in the match order.
func (r *Registry) Register(pattern string, qos byte, h Handler) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, pattern)
	}
	if h == nil {
		return fmt.Errorf("%w: pattern %q", ErrNilHandler, pattern)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: pattern %q qos %d", ErrInvalidQoS, pattern, qos)
	}

	// Earlier resolutions may no longer hold.
	clear(r.cache)

	sub := Subscription{Pattern: pattern, QoS: qos, Handler: h}
	if i, ok := r.index[pattern]; ok {
		r.subs[i] = sub
		return nil
	}

	r.index[pattern] = len(r.subs)
	r.subs = append(r.subs, sub)
	return nil
}

// Freeze stops further registration. It is called when the session connects.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Subscriptions returns the registered subscriptions in registration order.
func (r *Registry) Subscriptions() []Subscription {
	out := make([]Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Resolve returns the handler for a concrete topic, or nil when no pattern
// matches. The earliest registered matching pattern wins. Results, including
// nil, are cached per topic.
func (r *Registry) Resolve(t string) Handler {
	if h, ok := r.cache[t]; ok {
		return h
	}

	var h Handler
	for _, sub := range r.subs {
		if topic.Matches(sub.Pattern, t) {
			h = sub.Handler
			break
		}
	}

	r.cache[t] = h
	return h
}

// CacheSize returns the number of memoised topic resolutions.
func (r *Registry) CacheSize() int {
	return len(r.cache)
}
