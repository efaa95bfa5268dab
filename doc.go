// Package hive provides a small task-to-worker dispatch library for Go.
// It reconciles pending tasks against idle workers on a fixed cadence and
// commits one-to-one assignments through a pluggable store.
//
// Hive is designed as a library, not a service. Import it, configure a
// store, wire the subsystems from the coordinator's config, and start:
//
//	c, err := hive.New(
//	    hive.WithStore(pgStore),
//	    hive.WithPollInterval(2*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	hooks := hook.NewRegistry(c.Logger())
//	c.SetScheduler(scheduler.FromConfig(pgStore, hooks, c.Logger(), c.Config()))
//	if mon := worker.MonitorFromConfig(pgStore, hooks, c.Logger(), c.Config()); mon != nil {
//	    c.SetMonitor(mon)
//	}
//	c.SetExtensions(hooks)
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//
// # Architecture
//
// Hive follows a composable store pattern where each subsystem (task,
// worker) defines its own store interface. A single backend implements
// all of them. Backends: Postgres, Bun, Redis, SQLite, and Memory.
//
// The scheduler itself holds no task or worker state between cycles: the
// store is the single source of truth, and at most one reconciliation
// cycle runs at a time per scheduler instance.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package hive
