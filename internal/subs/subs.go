// Package subs implements the change-subscription hub: callers
// register a glob pattern and get back a channel of Events for every
// Set or Remove whose key matches. Grounded on
// matteso1-sentinel/internal/broker's topic registry (a
// map[string]*Topic guarded by a RWMutex, looked up by name on every
// publish); adapted here from its poll-based Consume into a push
// model, since spec.md requires subscribers to be notified as changes
// happen rather than having to ask.
package subs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/duskdb/duskdb/internal/glob"
)

// EventKind identifies whether an Event is a Set or a Remove.
type EventKind uint8

const (
	// EventSet reports a key that was written.
	EventSet EventKind = iota + 1
	// EventRemove reports a key that was deleted.
	EventRemove
)

// Event is delivered to a subscriber for every matching change.
type Event struct {
	Kind  EventKind
	Key   string
	Value []byte
}

// defaultCapacity is the default per-subscriber channel buffer depth.
const defaultCapacity = 64

// Subscription is the handle returned by Subscribe: Events delivers
// matching changes, and Lagged counts how many were dropped because
// the subscriber fell behind.
type Subscription struct {
	ID     uuid.UUID
	events chan Event
	lagged *counter
	hub    *Hub
}

// Events returns the channel Events are delivered on.
func (s *Subscription) Events() <-chan Event { return s.events }

// Lagged returns how many events have been dropped so far because
// this subscriber's channel was full. Writers never block on a slow
// subscriber (spec.md invariant): once the buffer is full, the new
// event is dropped and counted here rather than stalling the writer
// that produced it; events already in the buffer are kept.
func (s *Subscription) Lagged() uint64 { return s.lagged.get() }

// Unsubscribe removes this subscription from the hub and closes its
// channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.ID)
}

type counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type subscriber struct {
	pattern *glob.Pattern
	sub     *Subscription
}

// Hub is the registry of live subscriptions. The zero value is not
// usable; construct one with New.
type Hub struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*subscriber
	capacity int
}

// New returns a Hub whose subscriber channels are buffered to
// capacity. A capacity of 0 or less uses defaultCapacity.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Hub{
		byID:     make(map[uuid.UUID]*subscriber),
		capacity: capacity,
	}
}

// Subscribe registers a new subscription for pattern and returns its
// handle.
func (h *Hub) Subscribe(pattern *glob.Pattern) *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		events: make(chan Event, h.capacity),
		lagged: &counter{},
		hub:    h,
	}

	h.mu.Lock()
	h.byID[sub.ID] = &subscriber{pattern: pattern, sub: sub}
	h.mu.Unlock()

	return sub
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	s, ok := h.byID[id]
	if ok {
		delete(h.byID, id)
	}
	h.mu.Unlock()

	if ok {
		close(s.sub.events)
	}
}

// Publish delivers evt to every subscriber whose pattern matches key.
// A subscriber whose channel is full has evt dropped and its Lagged
// counter incremented; Publish itself never blocks.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	key := []byte(evt.Key)
	for _, s := range h.byID {
		if !s.pattern.Match(key) {
			continue
		}
		select {
		case s.sub.events <- evt:
		default:
			s.sub.lagged.inc()
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// CloseAll unsubscribes every live subscriber, closing their channels.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.byID))
	for id := range h.byID {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.remove(id)
	}
}
