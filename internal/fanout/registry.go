// Package fanout tracks subscriber endpoints and broadcasts state-change
// events to them, best effort, one delivery task per subscriber per event.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openoutcry/crier/internal/eventlog"
)

// Registry is the set of subscriber endpoints. Append-only for the lifetime
// of the process; rebuilt from the subscribers topic at startup.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]struct{}
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]struct{})}
}

// Add inserts an endpoint. Duplicate registrations are collapsed, which also
// makes replay of the subscribers topic idempotent.
func (r *Registry) Add(endpoint string) {
	if endpoint == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[endpoint]; ok {
		return
	}
	r.endpoints[endpoint] = struct{}{}
	r.order = append(r.order, endpoint)
}

// Endpoints returns a copy of the registered endpoints in insertion order.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Start replays the subscribers topic (history, then live) into the registry
// until ctx is cancelled.
func (r *Registry) Start(ctx context.Context, log eventlog.Log, logger *slog.Logger) error {
	entries, err := log.Stream(ctx, eventlog.TopicSubscribers)
	if err != nil {
		return err
	}
	go func() {
		for e := range entries {
			r.Add(string(e.Value))
			logger.Info("subscriber registered", "endpoint", string(e.Value))
		}
	}()
	return nil
}
