package hive

import "errors"

var (
	// Configuration errors.
	ErrNoScheduler = errors.New("hive: no scheduler configured")

	// Store errors.
	ErrNoStore         = errors.New("hive: no store configured")
	ErrStoreClosed     = errors.New("hive: store closed")
	ErrMigrationFailed = errors.New("hive: migration failed")

	// Not found errors.
	ErrTaskNotFound   = errors.New("hive: task not found")
	ErrWorkerNotFound = errors.New("hive: worker not found")

	// Conflict errors.
	ErrTaskAlreadyExists   = errors.New("hive: task already exists")
	ErrWorkerAlreadyExists = errors.New("hive: worker already exists")
	ErrWorkerBusy          = errors.New("hive: worker busy")

	// State errors.
	ErrTaskNotPending = errors.New("hive: task not pending")
	ErrInvalidState   = errors.New("hive: invalid state transition")
)
