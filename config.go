package hive

import "time"

// Config holds configuration for the Coordinator.
type Config struct {
	// PollInterval is the delay between the end of scheduling one
	// reconciliation tick and the firing of the next.
	PollInterval time.Duration

	// DispatchSchedule is an optional cron expression (5-field or
	// descriptor form, e.g. "@every 30s") that triggers additional
	// reconciliation cycles on top of the interval ticker. Empty
	// disables the cron trigger.
	DispatchSchedule string

	// MonitorInterval is how often the worker monitor scans for stale
	// workers. Zero disables the monitor.
	MonitorInterval time.Duration

	// StaleWorkerThreshold is how long a worker may go without a
	// heartbeat before it is marked lost.
	StaleWorkerThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:         1 * time.Second,
		MonitorInterval:      10 * time.Second,
		StaleWorkerThreshold: 30 * time.Second,
	}
}
