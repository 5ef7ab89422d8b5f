/*
Event Bus (C11): topic-based fan-out to subscribed sessions through bounded
per-subscriber queues. A full queue drops its oldest entry rather than
blocking the publisher or the subscriber ahead of it, and increments an
events_dropped counter surfaced in subscription stats. Per-topic publish
order is preserved for any one subscriber because each subscriber has a
single ordered queue all of its topics are delivered through.
*/
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-video/camera-gateway/internal/logging"
)

// Event is one published notification.
type Event struct {
	Topic     string                 `json:"topic"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	EventID   string                 `json:"event_id"`
}

type subscriber struct {
	id       string
	topics   map[string]bool
	queue    chan Event
	mu       sync.Mutex
	dropped  int64
	capacity int
}

// Bus is the Event Bus (C11).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	queueSize   int
	logger      *logging.Logger
}

// New constructs a Bus with the given per-subscriber queue capacity
// (spec default 256).
func New(queueSize int, logger *logging.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = logging.GetLogger("eventbus")
	}
	return &Bus{
		subscribers: make(map[string]*subscriber),
		queueSize:   queueSize,
		logger:      logger,
	}
}

// Subscribe registers sessionID for the given topics and returns its
// delivery channel (created on first subscription, reused thereafter).
func (b *Bus) Subscribe(sessionID string, topics []string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[sessionID]
	if !ok {
		sub = &subscriber{
			id:       sessionID,
			topics:   make(map[string]bool),
			queue:    make(chan Event, b.queueSize),
			capacity: b.queueSize,
		}
		b.subscribers[sessionID] = sub
	}
	sub.mu.Lock()
	for _, t := range topics {
		sub.topics[t] = true
	}
	sub.mu.Unlock()
	return sub.queue
}

// Unsubscribe removes topics from a subscriber. An empty topics list
// removes every subscription and drops the subscriber entirely.
func (b *Bus) Unsubscribe(sessionID string, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	if len(topics) == 0 {
		delete(b.subscribers, sessionID)
		return
	}
	sub.mu.Lock()
	for _, t := range topics {
		delete(sub.topics, t)
	}
	sub.mu.Unlock()
}

// Close removes a subscriber entirely, e.g. on session disconnect.
func (b *Bus) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sessionID)
}

// Publish delivers an event to every subscriber of topic. A subscriber
// whose queue is full has its oldest queued event dropped to make room,
// never the publisher blocked.
func (b *Bus) Publish(topic string, data map[string]interface{}) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		EventID:   uuid.New().String(),
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		sub.mu.Lock()
		interested := sub.topics[topic]
		sub.mu.Unlock()
		if interested {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscriber, event Event) {
	select {
	case sub.queue <- event:
		return
	default:
	}

	// Queue full: drop the oldest entry and retry once.
	select {
	case <-sub.queue:
		atomic.AddInt64(&sub.dropped, 1)
		b.logger.WithFields(logging.Fields{
			"subscriber": sub.id,
			"topic":      event.Topic,
		}).Warn("subscriber queue full, dropped oldest event")
	default:
	}

	select {
	case sub.queue <- event:
	default:
		atomic.AddInt64(&sub.dropped, 1)
	}
}

// Stats is the get_subscription_stats response shape.
type Stats struct {
	TotalSubscribers int              `json:"total_subscribers"`
	TopicCounts      map[string]int   `json:"topic_counts"`
	DroppedByClient  map[string]int64 `json:"dropped_by_client"`
}

// Stats reports current subscription counts and per-subscriber drop
// totals, for the get_subscription_stats RPC method.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		TotalSubscribers: len(b.subscribers),
		TopicCounts:      make(map[string]int),
		DroppedByClient:  make(map[string]int64),
	}
	for id, sub := range b.subscribers {
		sub.mu.Lock()
		for t := range sub.topics {
			stats.TopicCounts[t]++
		}
		sub.mu.Unlock()
		if d := atomic.LoadInt64(&sub.dropped); d > 0 {
			stats.DroppedByClient[id] = d
		}
	}
	return stats
}

// Publisher adapts Bus to the narrow EventPublisher interface the camera
// registry and other producers depend on.
type Publisher struct{ bus *Bus }

// NewPublisher wraps a Bus as an EventPublisher.
func NewPublisher(bus *Bus) *Publisher { return &Publisher{bus: bus} }

func (p *Publisher) Publish(topic string, payload map[string]interface{}) {
	p.bus.Publish(topic, payload)
}

var _ fmt.Stringer = Event{}

func (e Event) String() string {
	return fmt.Sprintf("Event{topic=%s id=%s}", e.Topic, e.EventID)
}
