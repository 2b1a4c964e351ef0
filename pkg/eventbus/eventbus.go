// SPDX-License-Identifier: Apache-2.0

// Package eventbus implements the pub/sub notification component
// referenced in spec.md §2 ("on success updates the Record Store and
// notifies subscribers through the Event Bus"). It is a plain in-process
// fan-out: there is no persistence or replay, matching the channel-based
// concurrency style already used elsewhere in this module (compare
// pkg/workerpool, whose job queue is the same "channel as a queue"
// idiom).
package eventbus

import (
	"sync"

	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// Event is published once a request reaches a terminal status.
type Event struct {
	RequestID  string
	ResourceID resourceid.ID
	Status     request.Status
}

// Bus fans out events to every current subscriber. A slow subscriber never
// blocks the publisher or other subscribers: Publish drops the event for
// any subscriber whose buffer is full.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given buffer depth. The
// returned cancel func unregisters it and closes the channel; callers must
// call it exactly once to avoid leaking the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish fans ev out to every current subscriber, non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than stall the worker that
			// just completed a compile (spec.md §5: workers never block on
			// shared-resource contention beyond the record store).
		}
	}
}
