package status

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Subscription is a live feed of events for one topic.
type Subscription struct {
	ID    uuid.UUID
	Topic string
	C     <-chan Event

	ch chan Event
}

// Hub fans events out to subscribers grouped by topic (usually a user ID).
// Events for a subscriber whose buffer is full are dropped.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uuid.UUID]*Subscription
	buffer int
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[uuid.UUID]*Subscription),
		buffer: DefaultBuffer,
		now:    time.Now,
	}
}

// Subscribe registers a new subscriber for topic. Callers must Unsubscribe
// when done.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: uuid.New(), Topic: topic, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[sub.Topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, sub.Topic)
	}
}

// Publish sends e to every subscriber of topic without blocking.
func (h *Hub) Publish(topic string, e Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- e:
		default:
			// Slow subscriber
		}
	}
}

// Subscribers returns the number of subscribers for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topic returns a Sink publishing to topic.
func (h *Hub) Topic(topic string) Sink {
	return SinkFunc(func(e Event) { h.Publish(topic, e) })
}
