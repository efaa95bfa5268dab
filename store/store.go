package store

import (
	"context"

	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, bun, redis, sqlite, memory) implements all of them.
type Store interface {
	task.Store
	worker.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
