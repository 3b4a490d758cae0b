package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"taskd/internal/config"
	"taskd/internal/scheduler"
)

func TestMapSchedulerConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapSchedulerConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if !got.Enabled {
		t.Fatal("scheduler should default to enabled")
	}
	if got.CheckInterval != time.Second || got.PersistInterval != time.Minute {
		t.Fatalf("default intervals = %v / %v", got.CheckInterval, got.PersistInterval)
	}
	if got.DefaultTimeout != 0 {
		t.Fatalf("default timeout = %v", got.DefaultTimeout)
	}
}

func TestMapSchedulerConfigExplicit(t *testing.T) {
	t.Parallel()
	off := false
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		Enabled:            &off,
		CheckInterval:      "250ms",
		PersistInterval:    "30s",
		MaxConcurrentTasks: 4,
		DefaultTimeout:     "2m",
		HistorySize:        50,
		Timezone:           "UTC",
	}}
	got, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if got.Enabled {
		t.Fatal("explicit enabled=false ignored")
	}
	if got.CheckInterval != 250*time.Millisecond || got.DefaultTimeout != 2*time.Minute {
		t.Fatalf("mapped config = %+v", got)
	}
	if got.MaxConcurrent != 4 || got.HistorySize != 50 || got.Timezone != "UTC" {
		t.Fatalf("mapped config = %+v", got)
	}
}

func TestMapSchedulerConfigBadDuration(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Scheduler: config.SchedulerConfig{CheckInterval: "soon"}}
	if _, err := mapSchedulerConfig(cfg); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestMapStorageConfigRequiresPersistSwitch(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Storage: &config.StorageConfig{Driver: "file", Path: "/tmp/x"},
	}
	if _, enabled, _ := mapStorageConfig(cfg); enabled {
		t.Fatal("storage enabled without persist_tasks")
	}

	cfg.Scheduler.PersistTasks = true
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		t.Fatalf("mapStorageConfig = %v, %v", enabled, err)
	}
	if sc.Driver != "file" || sc.Path != "/tmp/x" {
		t.Fatalf("mapped storage = %+v", sc)
	}
}

func TestMapNotifyConfig(t *testing.T) {
	t.Parallel()
	if _, enabled := mapNotifyConfig(&config.Config{}); enabled {
		t.Fatal("notify enabled without a notify block")
	}

	cfg := &config.Config{Notify: &config.NotifyConfig{
		Enabled: true,
		Token:   "t",
		ChatID:  -100,
	}}
	n, enabled := mapNotifyConfig(cfg)
	if !enabled || n.ChatID != -100 || n.Token != "t" {
		t.Fatalf("mapped notify = %+v, %v", n, enabled)
	}
}

func TestAppLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	raw := `{
  "logging": {"level": "error", "console": false},
  "scheduler": {
    "check_interval": "10ms",
    "persist_tasks": true
  },
  "storage": {"driver": "file", "path": ` + strconv.Quote(filepath.Join(dir, "tasks")) + `}
}`
	if err := os.WriteFile(cfgPath, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ran := make(chan struct{}, 1)
	if _, err := a.Scheduler().Add(scheduler.Request{
		Name:     "smoke",
		Handler:  func(context.Context, scheduler.Invocation) error { ran <- struct{}{}; return nil },
		Schedule: scheduler.Immediately(),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
