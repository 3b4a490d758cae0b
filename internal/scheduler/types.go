package scheduler

import (
	"context"
	"time"
)

// Config controls the scheduling engine.
type Config struct {
	Enabled bool

	// CheckInterval is the tick period of the due-task scan.
	CheckInterval time.Duration

	// PersistInterval is the period of the best-effort persist sweep that
	// re-serializes all persisted records.
	PersistInterval time.Duration

	// MaxConcurrent caps how many task handlers run at once.
	MaxConcurrent int

	// DefaultTimeout applies to handlers without a per-task timeout.
	// Zero disables the default.
	DefaultTimeout time.Duration

	// HistorySize bounds the execution audit ring.
	HistorySize int

	// Timezone is an IANA TZ used for cron evaluation (default: local).
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Kind identifies the schedule variant of a task.
type Kind uint8

const (
	KindCron Kind = iota + 1
	KindInterval
	KindDate
	KindImmediate
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	case KindDate:
		return "date"
	case KindImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

// Schedule is a tagged union over the four schedule kinds.
// Exactly one payload field is meaningful, selected by Kind.
// Immutable after registration.
type Schedule struct {
	Kind  Kind
	Expr  string        // KindCron: cron expression or descriptor ("@hourly")
	Every time.Duration // KindInterval
	At    time.Time     // KindDate
}

// Cron builds a cron schedule. The expression is validated at registration.
func Cron(expr string) Schedule { return Schedule{Kind: KindCron, Expr: expr} }

// Every builds a recurring interval schedule.
func Every(d time.Duration) Schedule { return Schedule{Kind: KindInterval, Every: d} }

// At builds a one-shot schedule for the given time.
func At(t time.Time) Schedule { return Schedule{Kind: KindDate, At: t} }

// Immediately builds a schedule that runs once, as soon as possible.
func Immediately() Schedule { return Schedule{Kind: KindImmediate} }

// Status is the lifecycle state of a task record.
type Status uint8

const (
	StatusScheduled Status = iota + 1
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Invocation is the payload passed to a handler for one run.
type Invocation struct {
	TaskID string
	Name   string

	// Data is the task's payload, merged with any extra data supplied to a
	// manual Execute call (extra wins on key collisions).
	Data map[string]any

	// Run is the number of completed successful runs before this one.
	Run uint64

	ScheduledAt time.Time
	StartedAt   time.Time
}

// HandlerFunc is a unit of schedulable work. Implementations should honor
// ctx cancellation; the engine's timeout only releases the concurrency slot,
// it cannot forcibly stop a handler that ignores its context.
type HandlerFunc func(ctx context.Context, inv Invocation) error

// HandlerRef names a registered handler so persisted tasks can re-resolve it
// after a restart.
type HandlerRef struct {
	Module   string
	Function string
}

func (r HandlerRef) IsZero() bool { return r.Module == "" && r.Function == "" }

func (r HandlerRef) String() string { return r.Module + "." + r.Function }

// Request describes a task registration.
type Request struct {
	// ID is optional; a UUID is generated when empty. Must be unique and
	// filename-safe ([A-Za-z0-9._:@-]).
	ID   string
	Name string

	// Handler is the work to run. May be nil when Ref names a registered
	// handler, in which case the registered function is used.
	Handler HandlerFunc

	// Ref is required when Persist is set (closures cannot be serialized).
	Ref HandlerRef

	Data map[string]any
	Tags []string

	Schedule Schedule

	// Timeout overrides Config.DefaultTimeout for this task. Zero means use
	// the default; negative disables the timeout entirely.
	Timeout time.Duration

	Persist bool

	// RunNow triggers an execution at registration time, without waiting
	// for the first tick.
	RunNow bool
}

// Filter selects tasks in List. Zero fields match everything.
type Filter struct {
	Kind   Kind
	Tag    string
	Status Status
}

// TaskInfo is a read-only copy of a task record. Handlers are never exposed.
type TaskInfo struct {
	ID   string
	Name string
	Ref  HandlerRef
	Tags []string

	Schedule Schedule

	// NextRun is zero when the task is exhausted.
	NextRun time.Time
	LastRun time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Executions uint64
	Failures   uint64

	Status  Status
	Persist bool
}

// Trigger records what caused an execution.
type Trigger string

const (
	TriggerTick     Trigger = "tick"
	TriggerManual   Trigger = "manual"
	TriggerRegister Trigger = "register"
)

// ExecutionRecord is one entry of the bounded audit ring.
type ExecutionRecord struct {
	TaskID      string
	Name        string
	Trigger     Trigger
	ScheduledAt time.Time
	Started     time.Time
	Duration    time.Duration
	Error       string
}

// Counters aggregates task outcomes.
type Counters struct {
	Scheduled uint64
	Executed  uint64
	Failed    uint64
	Cancelled uint64
}

// Statistics is the aggregate outcome view, overall and broken down by
// schedule kind and by tag.
type Statistics struct {
	Counters
	ByKind map[string]Counters
	ByTag  map[string]Counters
}

// Reporter receives handler failures. Optional; injected by the caller.
type Reporter interface {
	ReportTaskError(err error, taskID, taskName string)
}

// Snapshot is a lightweight diagnostics view.
type Snapshot struct {
	Enabled         bool
	Running         bool
	Timezone        string
	CheckInterval   time.Duration
	PersistInterval time.Duration
	MaxConcurrent   int
	DefaultTimeout  time.Duration

	Tasks    int
	InFlight int

	Stats   Statistics
	History []ExecutionRecord
}

// task is the internal mutable record. All fields are guarded by Service.mu.
type task struct {
	id      string
	name    string
	handler HandlerFunc
	ref     HandlerRef
	data    map[string]any
	tags    []string

	schedule Schedule

	nextRun time.Time // zero = exhausted
	lastRun time.Time

	createdAt time.Time
	updatedAt time.Time

	executions uint64
	failures   uint64

	status  Status
	persist bool
	timeout time.Duration

	// cancelled latches a Cancel() that arrived while the task was running;
	// the record is evicted when the in-flight handler returns.
	cancelled bool
}

// taskSnapshot is an immutable copy handed to the dispatch goroutine so the
// handler runs without holding Service.mu.
type taskSnapshot struct {
	id          string
	name        string
	handler     HandlerFunc
	data        map[string]any
	executions  uint64
	timeout     time.Duration
	scheduledAt time.Time
}
