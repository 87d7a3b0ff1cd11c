// Package memory implements an in-process publisher that records completion
// events instead of sending them anywhere. It backs engine tests and local
// development runs where no Pub/Sub topic exists.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one recorded completion event.
type Event struct {
	Topic string
	Body  any
}

// Publisher accumulates events in order of publication. Safe for use from
// concurrent pool workers.
type Publisher struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, body any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Body: body})
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a snapshot of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
