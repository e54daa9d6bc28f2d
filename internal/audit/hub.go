// Package audit implements the request/response audit pipeline: capture of
// every SCIM exchange, durable persistence, and best-effort fan-out to live
// subscribers.
package audit

import (
	"context"
	"sync"

	"github.com/royletron/scimit/internal/model"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// it is dropped from the registry.
const subscriberBuffer = 64

// Hub is the publish/subscribe registry for live audit events. Delivery is
// best-effort fan-out: a subscriber that cannot keep up is removed and the
// broadcast continues to the rest. The publishing request is never affected
// by subscriber failures.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// Subscriber is an opaque handle receiving broadcast events in order until
// Unsubscribe is called or the hub drops it.
type Subscriber struct {
	hub *Hub
	ch  chan *model.AuditEvent
}

// Events is the ordered stream of broadcast events. The channel is closed
// when the subscriber is removed or the hub shuts down.
func (s *Subscriber) Events() <-chan *model.AuditEvent {
	return s.ch
}

// Unsubscribe removes the handle from the registry. Safe to call more than
// once.
func (s *Subscriber) Unsubscribe() {
	s.hub.remove(s)
}

// NewHub creates an empty subscriber registry.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new handle that will receive every subsequently
// broadcast event.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{hub: h, ch: make(chan *model.AuditEvent, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Broadcast delivers an event to every subscriber. With no subscribers it
// is a no-op. Subscribers with a full buffer are removed mid-broadcast.
func (h *Hub) Broadcast(ev *model.AuditEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			delete(h.subs, s)
			close(s.ch)
		}
	}
}

// SubscriberCount reports the current registry size.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber and refuses new ones. Registered as a
// shutdown hook.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
	return nil
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}
