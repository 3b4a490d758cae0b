// Package storage persists scheduled task records so schedules survive a
// process restart.
//
// Two drivers are available:
//   - "file": one JSON file per task under a directory
//   - "sqlite": a single SQLite database file
//
// A persisted record never contains the live handler function; it stores a
// (module, function) name pair that the scheduler re-resolves against its
// handler registry at load time.
package storage
