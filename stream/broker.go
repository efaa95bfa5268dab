package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Compile-time interface checks.
var (
	_ hook.Extension      = (*Broker)(nil)
	_ hook.TaskCreated    = (*Broker)(nil)
	_ hook.TaskAssigned   = (*Broker)(nil)
	_ hook.CycleCompleted = (*Broker)(nil)
	_ hook.CycleFailed    = (*Broker)(nil)
	_ hook.WorkerReaped   = (*Broker)(nil)
	_ hook.Shutdown       = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the hook
// extension interfaces to receive lifecycle events and fans them out
// to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements hook.TaskCreated.
func (b *Broker) OnTaskCreated(_ context.Context, t *task.Task) error {
	b.publish(&Event{
		Type:      EventTaskCreated,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic(t.ID.String()),
		Data: mustMarshal(TaskEventData{
			TaskID:   t.ID.String(),
			TaskName: t.Name,
		}),
	})
	return nil
}

// OnTaskAssigned implements hook.TaskAssigned.
func (b *Broker) OnTaskAssigned(_ context.Context, t *task.Task, w *worker.Worker) error {
	b.publish(&Event{
		Type:      EventTaskAssigned,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic(t.ID.String()),
		Data: mustMarshal(TaskEventData{
			TaskID:   t.ID.String(),
			TaskName: t.Name,
			WorkerID: w.ID.String(),
			Pool:     w.Pool,
		}),
	})
	return nil
}

// ── Cycle lifecycle hooks ───────────────────────────

// OnCycleCompleted implements hook.CycleCompleted.
func (b *Broker) OnCycleCompleted(_ context.Context, stats hook.CycleStats) error {
	b.publish(&Event{
		Type:      EventCycleCompleted,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(CycleEventData{
			PendingTasks: stats.PendingTasks,
			IdleWorkers:  stats.IdleWorkers,
			Assigned:     stats.Assigned,
			ElapsedMs:    stats.Elapsed.Milliseconds(),
		}),
	})
	return nil
}

// OnCycleFailed implements hook.CycleFailed.
func (b *Broker) OnCycleFailed(_ context.Context, cycleErr error) error {
	b.publish(&Event{
		Type:      EventCycleFailed,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(CycleEventData{
			Error: cycleErr.Error(),
		}),
	})
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerReaped implements hook.WorkerReaped.
func (b *Broker) OnWorkerReaped(_ context.Context, w *worker.Worker) error {
	b.publish(&Event{
		Type:      EventWorkerReaped,
		Timestamp: time.Now().UTC(),
		Topic:     WorkerTopic(w.ID.String()),
		Data: mustMarshal(WorkerEventData{
			WorkerID: w.ID.String(),
			Hostname: w.Hostname,
			Pool:     w.Pool,
			LastSeen: w.LastSeen.Format(time.RFC3339),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

// OnShutdown implements hook.Shutdown.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
