// Package hub is the real-time fan-out channel between the report pipeline
// and connected dashboards. Delivery is best-effort and at-most-once per
// connected subscriber: there is no replay, and a subscriber whose buffer is
// full misses the event rather than blocking the publisher.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Topics published by the pipeline.
const (
	TopicReports   = "reports"
	TopicSightings = "sightings"
)

// Event names consumed by dashboards.
const (
	EventReportProcessed = "ReportProcessed"
	EventReceiveLocation = "ReceiveLocation"
)

// Event is one frame delivered to subscribers.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Subscriber is one connected client's registration: a connection id, the
// set of topics it cares about, and a buffered delivery channel.
type Subscriber struct {
	ID     string
	topics map[string]bool
	ch     chan Event

	closeOnce sync.Once
}

// C is the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Hub is the subscriber registry. The registry is only mutated under the
// mutex, and Publish iterates it under the same mutex, so the subscriber set
// is never read while being modified.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	logger *slog.Logger
	buffer int
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscriber), logger: logger, buffer: 32}
}

// Subscribe registers a new subscriber for the given topics. With no topics
// the subscriber receives every topic.
func (h *Hub) Subscribe(topics ...string) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		topics: make(map[string]bool, len(topics)),
		ch:     make(chan Event, h.buffer),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Info("subscriber registered", "id", sub.ID, "topics", topics)
	return sub
}

// Unsubscribe deregisters the subscriber and closes its channel. It is safe
// to call more than once, so transport teardown paths need no coordination.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, present := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	h.mu.Unlock()

	sub.closeOnce.Do(func() { close(sub.ch) })
	if present {
		h.logger.Info("subscriber removed", "id", sub.ID)
	}
}

// Publish delivers the event to every currently connected subscriber
// interested in the topic. Subscribers that connect afterwards never receive
// it. Because every publisher for a given topic calls Publish in order and
// each subscriber channel is filled under the registry mutex, per-topic
// delivery order matches publish order.
func (h *Hub) Publish(topic string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if len(sub.topics) > 0 && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// slow consumer: drop rather than block the pipeline
			h.logger.Warn("dropping event for slow subscriber", "id", sub.ID, "topic", topic, "event", ev.Name)
		}
	}
}

// SubscriberCount returns the current registry size.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
