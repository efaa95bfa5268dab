// Package worker defines the worker entity, its store interface, and
// the liveness monitor.
//
// A [Worker] is an externally-managed executor registered with the
// store. Workers send periodic heartbeats; the [Monitor] marks workers
// whose heartbeat has expired as [StateLost] so the scheduler stops
// selecting them.
//
// The scheduler treats the Busy flag as the sole eligibility signal:
// it never inspects State, Pool, or Metadata when pairing tasks with
// workers.
package worker
