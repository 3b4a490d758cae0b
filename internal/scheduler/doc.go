// Package scheduler is taskd's task scheduling engine.
//
// # Overview
//
// Callers register tasks with one of four schedule kinds: a recurring
// interval, a cron expression, a one-shot date, or immediate. A periodic tick
// loop scans for due tasks, runs their handlers on goroutines bounded by a
// concurrency budget, and recomputes each task's next due time. Exhausted
// tasks (no further due time) are evicted.
//
// # Persistence
//
// Tasks registered with Persist survive restarts: their record is written
// through a storage.Store (one JSON file per task, or SQLite). Handlers are
// functions and cannot be serialized, so a persisted task must name a
// (module, function) pair registered in the Registry; the pair is re-resolved
// at load time. Records whose handler is no longer registered are skipped
// with a warning. Loaded tasks keep their stored next due time, so work that
// came due while the process was down fires on the first tick.
//
// # Concurrency
//
// At most MaxConcurrent handlers run at once, and a given task id never has
// two concurrent invocations. The tick loop never blocks on a handler: it
// dispatches and keeps scanning. Cancellation stops future runs only; an
// in-flight handler is not preempted, but its record is removed once it
// returns.
//
// # Lifecycle
//
// The Service can be started and stopped at runtime (e.g. via config hot
// reload). Registering tasks while stopped is supported; they are picked up
// when the loop starts.
package scheduler
