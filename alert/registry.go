package alert

import (
	"context"
	"sort"
	"sync"
)

// Registry holds the configured channels by name.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: map[string]Channel{}}
}

// Register adds a channel; a later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.Name()] = c
}

// Channels returns the registered channels in name order.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Channel, 0, len(names))
	for _, name := range names {
		out = append(out, r.channels[name])
	}
	return out
}

// Test sends a test message through every channel and reports each
// outcome. Used by the test-channels command.
func (r *Registry) Test(ctx context.Context) map[string]error {
	msg := Message{
		Kind:  "test",
		Title: "sqlsentinel channel test",
		Body:  "If you can read this, the channel is wired correctly.",
	}
	out := map[string]error{}
	for _, c := range r.Channels() {
		out[c.Name()] = c.Send(ctx, msg)
	}
	return out
}
