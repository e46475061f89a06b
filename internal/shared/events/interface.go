// Package events carries domain events from committed operations to an event store.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/sos-villages/signalement/internal/shared/types"
)

// Event is a domain event published after the change that raised it has committed
type Event struct {
	ID            types.ID       `json:"id"`
	Type          string         `json:"type"`
	Source        string         `json:"source"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   types.ID       `json:"aggregate_id"`
	ActorID       types.ID       `json:"actor_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no event store is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NoopPublisher) Close() error                            { return nil }

// MemoryPublisher keeps published events in memory
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemoryPublisher creates an empty in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records events, or fails with the error set by SetError
func (p *MemoryPublisher) Publish(_ context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

// Close is a no-op
func (p *MemoryPublisher) Close() error { return nil }

// SetError makes later publishes fail with err
func (p *MemoryPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Events returns a copy of everything published so far
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Types returns the type of every published event, in order
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
