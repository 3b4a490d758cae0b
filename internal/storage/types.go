package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures task storage.
//
// Driver values:
//   - "file": one JSON file per task under Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TaskRecord is the on-disk shape of a scheduled task.
// Keep it compact and schema-stable.
type TaskRecord struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	HandlerModule   string         `json:"handler_module"`
	HandlerFunction string         `json:"handler_function"`
	Data            map[string]any `json:"data,omitempty"`
	Tags            []string       `json:"tags,omitempty"`

	// Schedule. Kind is one of "cron", "interval", "date", "immediate".
	Kind     string     `json:"kind"`
	CronExpr string     `json:"cron_expr,omitempty"`
	Every    string     `json:"every,omitempty"` // Go duration string
	At       *time.Time `json:"at,omitempty"`

	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Executions uint64 `json:"executions"`
	Failures   uint64 `json:"failures"`

	Timeout string `json:"timeout,omitempty"` // Go duration string
}
