package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of hive lifecycle events. The broker
// delivers into a buffered channel and never blocks on a slow
// consumer: a dashboard that stops draining its channel must not stall
// the scheduler's cycle, so delivery is best-effort and drops are
// silent.
//
// Backpressure is credit-based. Each delivered event costs one credit;
// at zero credits the subscriber is skipped until the consumer calls
// AddCredits. This lets a consumer meter the firehose topic without
// unsubscribing.
type Subscriber struct {
	id string

	// events carries delivered lifecycle events to the consumer.
	events chan *Event

	// credits is the remaining delivery budget. Decremented per
	// delivery; a delivery observing an overdraft refunds itself.
	credits atomic.Int64

	closed atomic.Bool

	// keep, when set, must return true for an event to be delivered.
	// Consumers use it to narrow a broad topic, e.g. only
	// cycle.failed events off the cycles topic.
	keep func(*Event) bool

	topicsMu sync.RWMutex
	topics   map[string]struct{}
}

// NewSubscriber creates a subscriber with the given channel buffer and
// delivery budget.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		events: make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel lifecycle events arrive on. It is closed when
// the subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.events }

// AddCredits extends the delivery budget by n.
func (s *Subscriber) AddCredits(n int64) {
	s.credits.Add(n)
}

// Credits returns the remaining delivery budget.
func (s *Subscriber) Credits() int64 {
	return s.credits.Load()
}

// SetFilter narrows delivery to events the predicate accepts. Filtered
// events cost no credits.
func (s *Subscriber) SetFilter(pred func(*Event) bool) {
	s.keep = pred
}

func (s *Subscriber) addTopic(topic string) {
	s.topicsMu.Lock()
	s.topics[topic] = struct{}{}
	s.topicsMu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.topicsMu.Lock()
	delete(s.topics, topic)
	s.topicsMu.Unlock()
}

// Topics returns a copy of the subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.topicsMu.RLock()
	defer s.topicsMu.RUnlock()
	names := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		names = append(names, topic)
	}
	return names
}

// send attempts one delivery. It reports false when the event was
// dropped: subscriber closed, filtered out, budget exhausted, or
// buffer full.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	if s.keep != nil && !s.keep(evt) {
		return false
	}

	// Spend one credit up front; refund on overdraft. Concurrent
	// publishers may briefly drive the count negative, which only
	// causes those deliveries to drop, never an over-delivery.
	if s.credits.Add(-1) < 0 {
		s.credits.Add(1)
		return false
	}

	select {
	case s.events <- evt:
		return true
	default:
		// Consumer is not draining; refund and drop.
		s.credits.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.events)
	}
}
