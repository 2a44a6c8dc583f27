// Package mock provides a recording test double for events.Publisher.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nara/internal/events"
)

// Publisher records every published event.
type Publisher struct {
	mu sync.Mutex

	// PublishErr, if non-nil, is returned by Publish after recording.
	PublishErr error

	events []events.Event
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.PublishErr
}

// Events returns a copy of the recorded events. Thread-safe.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

var _ events.Publisher = (*Publisher)(nil)
