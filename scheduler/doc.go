// Package scheduler provides the dispatch scheduler: a reentrancy-safe
// reconciliation loop pairing pending tasks with idle workers.
//
// # Cycle
//
// On each tick the scheduler runs one reconciliation cycle:
//
//  1. If a cycle is already in flight, the tick is dropped.
//  2. Pending tasks and workers are fetched concurrently from the store.
//  3. Idle workers (busy flag false) are kept, preserving store order.
//  4. tasks[i] is assigned to the i-th idle worker, sequentially, for
//     i up to min(idle workers, pending tasks).
//
// Pairing is purely positional — no priority, age, or matching
// heuristic. If an assignment fails, the remaining pairs are skipped
// for that cycle; because the store stays the source of truth, the
// unassigned tasks and workers are re-evaluated (and possibly paired
// differently) on the next tick.
//
// # Concurrency
//
// One scheduler instance never overlaps its own cycles: the in-flight
// flag is an atomic compare-and-swap guard. The flag has no
// cross-instance visibility; running two schedulers against one store
// requires the store itself to guard against double assignment.
//
// Stop cancels future ticks but is fire-and-forget with respect to a
// cycle already in flight: in-progress store calls are not
// interrupted, and their assignments may commit after Stop returns.
//
// # Triggers
//
// The interval ticker is the primary trigger. WithDispatchSchedule
// adds a cron trigger for dispatch windows; both share the same
// in-flight guard, so overlapping fires still run at most one cycle.
package scheduler
