// Package task defines the task entity, its state machine, and its
// store interface.
//
// A [Task] represents a unit of work. It embeds [hive.Entity] for
// timestamps, carries an opaque payload, and progresses through a
// state machine:
//
//	pending → assigned → completed
//	pending → assigned → failed
//
// A pending task has no worker; assignment pairs it with exactly one
// worker via [Store.AssignTask]. The dispatch scheduler only consumes
// ListPendingTasks and AssignTask; the remaining Store operations exist
// for the embedding application's producers and workers.
package task
