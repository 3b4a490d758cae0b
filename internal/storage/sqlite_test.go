package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "taskd/pkg/logx"
)

func openSQLiteStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.db")
	s, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSaveLoadDelete(t *testing.T) {
	t.Parallel()
	s := openSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("task-1")
	if err := s.SaveTask(ctx, rec); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := s.LoadTasks(ctx)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d records", len(got))
	}
	r := got[0]
	if r.ID != "task-1" || r.Name != "sample" || r.Kind != "interval" {
		t.Fatalf("loaded = %+v", r)
	}
	if r.HandlerModule != "system" || r.HandlerFunction != "heartbeat" {
		t.Fatalf("handler ref = %s.%s", r.HandlerModule, r.HandlerFunction)
	}
	if r.Every != "1m0s" || r.Timeout != "30s" || r.CronExpr != "" || r.At != nil {
		t.Fatalf("schedule fields = %+v", r)
	}
	if r.NextRun == nil || !r.NextRun.Equal(*rec.NextRun) {
		t.Fatalf("next_run = %v, want %v", r.NextRun, rec.NextRun)
	}
	if !r.CreatedAt.Equal(rec.CreatedAt) || !r.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("timestamps = %v / %v", r.CreatedAt, r.UpdatedAt)
	}
	if r.Data["key"] != "value" || r.Data["n"] != float64(3) {
		t.Fatalf("data = %+v", r.Data)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "a" {
		t.Fatalf("tags = %v", r.Tags)
	}
	if r.Executions != 7 || r.Failures != 1 {
		t.Fatalf("counters = %d/%d", r.Executions, r.Failures)
	}

	if err := s.DeleteTask(ctx, "task-1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	got, err = s.LoadTasks(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("after delete: %v, %v", got, err)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	t.Parallel()
	s := openSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("task-1")
	if err := s.SaveTask(ctx, rec); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rec.Name = "renamed"
	rec.Executions = 8
	next := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	rec.NextRun = &next
	if err := s.SaveTask(ctx, rec); err != nil {
		t.Fatalf("SaveTask update: %v", err)
	}

	got, err := s.LoadTasks(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("LoadTasks = %v, %v", got, err)
	}
	r := got[0]
	if r.Name != "renamed" || r.Executions != 8 {
		t.Fatalf("updated = %+v", r)
	}
	if r.NextRun == nil || !r.NextRun.Equal(next) {
		t.Fatalf("next_run = %v, want %v", r.NextRun, next)
	}
}

func TestSQLiteMinimalRecord(t *testing.T) {
	t.Parallel()
	s := openSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := TaskRecord{
		ID:              "bare",
		Name:            "bare",
		HandlerModule:   "system",
		HandlerFunction: "gc",
		Kind:            "immediate",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.SaveTask(ctx, rec); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := s.LoadTasks(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("LoadTasks = %v, %v", got, err)
	}
	r := got[0]
	if r.Data != nil || r.Tags != nil {
		t.Fatalf("empty payload round-trip = %+v", r)
	}
	if r.Every != "" || r.CronExpr != "" || r.At != nil || r.NextRun != nil || r.LastRun != nil {
		t.Fatalf("optional fields = %+v", r)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.db")
	ctx := context.Background()

	s, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveTask(ctx, sampleRecord("task-1")); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Config{Driver: "sqlite3", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.LoadTasks(ctx)
	if err != nil || len(got) != 1 || got[0].ID != "task-1" {
		t.Fatalf("after reopen: %v, %v", got, err)
	}
}
