package config

// Config is the root of the taskd configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage configures the task persistence backend. If omitted, tasks
	// registered with persist=true are rejected at validation time in
	// Validate(), not silently dropped.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Notify configures the optional Telegram failure notifier.
	Notify *NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the task scheduling engine.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - check_interval: "1s"
//   - persist_interval: "1m"
//   - max_concurrent_tasks: 10
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//
// Enabled is a pointer so we can distinguish "omitted" (default true) from an
// explicit false.
type SchedulerConfig struct {
	Enabled            *bool  `json:"enabled,omitempty"`
	CheckInterval      string `json:"check_interval,omitempty"`
	PersistInterval    string `json:"persist_interval,omitempty"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks,omitempty"`

	// PersistTasks is the master switch for durable task records.
	// When false, per-task persist flags are ignored.
	PersistTasks bool `json:"persist_tasks"`

	// DefaultTimeout applies to handlers that do not set their own timeout.
	// Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`

	// Timezone is an IANA TZ (e.g. "Asia/Jakarta") used for cron evaluation.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the task persistence backend.
//
// Driver values:
//   - "file": one JSON file per task under Path
//   - "sqlite": SQLite database file at Path
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tasks" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifyConfig controls the Telegram failure notifier.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"` // default 20
}
