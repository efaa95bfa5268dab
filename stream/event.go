// Package stream provides a real-time event broker for hive lifecycle
// events. It bridges the hook extension system to in-process consumers
// via topic-based pub/sub: dashboards, log tails, and tests can watch
// assignments and cycles as they happen.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Task events.
	EventTaskCreated  EventType = "task.created"
	EventTaskAssigned EventType = "task.assigned"

	// Cycle events.
	EventCycleCompleted EventType = "cycle.completed"
	EventCycleFailed    EventType = "cycle.failed"

	// Worker events.
	EventWorkerReaped EventType = "worker.reaped"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// TaskEventData is the payload for task lifecycle events.
type TaskEventData struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	WorkerID string `json:"worker_id,omitempty"`
	Pool     string `json:"pool,omitempty"`
}

// CycleEventData is the payload for reconciliation cycle events.
type CycleEventData struct {
	PendingTasks int    `json:"pending_tasks"`
	IdleWorkers  int    `json:"idle_workers"`
	Assigned     int    `json:"assigned"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	Error        string `json:"error,omitempty"`
}

// WorkerEventData is the payload for worker lifecycle events.
type WorkerEventData struct {
	WorkerID string `json:"worker_id"`
	Hostname string `json:"hostname"`
	Pool     string `json:"pool,omitempty"`
	LastSeen string `json:"last_seen,omitempty"`
}
