package scheduler

import "errors"

var (
	// ErrInvalidTask wraps all registration validation failures.
	ErrInvalidTask = errors.New("invalid task")

	// ErrNotFound is returned for operations on unknown task ids.
	ErrNotFound = errors.New("task not found")

	// ErrAlreadyRunning is returned by Execute while the same task id has an
	// invocation in flight.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrStopped is returned when an operation needs a running engine.
	ErrStopped = errors.New("scheduler not running")
)
