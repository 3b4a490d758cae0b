package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "logging": {"level": "debug", "console": true},
  "scheduler": {
    "check_interval": "2s",
    "max_concurrent_tasks": 5,
    "persist_tasks": true,
    "timezone": "UTC"
  },
  "storage": {"driver": "file", "path": "./tasks"}
}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.CheckInterval != "2s" || cfg.Scheduler.MaxConcurrentTasks != 5 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: warn
  console: false
scheduler:
  enabled: false
  check_interval: 500ms
  history_size: 20
notify:
  enabled: true
  token: abc
  chat_id: -100123
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.Enabled == nil || *cfg.Scheduler.Enabled {
		t.Fatalf("enabled = %v", cfg.Scheduler.Enabled)
	}
	if cfg.Notify == nil || cfg.Notify.ChatID != -100123 {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {"workers": 3}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {}}{"extra": true}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestEnabledDistinguishesOmittedFromFalse(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Enabled != nil {
		t.Fatalf("omitted enabled = %v, want nil", *cfg.Scheduler.Enabled)
	}
}

func TestWatchPublishesValidatedUpdates(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {"check_interval": "1s"}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return cfg.Validate() })

	ch := m.Subscribe(2)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = m.Watch(ctx)
	}()

	// give the watcher a moment to attach before writing
	time.Sleep(100 * time.Millisecond)

	// invalid update: must not be published
	if err := os.WriteFile(path, []byte(`{"scheduler": {"check_interval": "soon"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(600 * time.Millisecond):
	}

	// valid update: published and committed
	if err := os.WriteFile(path, []byte(`{"scheduler": {"check_interval": "3s"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Scheduler.CheckInterval != "3s" {
			t.Fatalf("published = %+v", cfg.Scheduler)
		}
		if m.Get().Scheduler.CheckInterval != "3s" {
			t.Fatal("update not committed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("update never published")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestPublishDropsOldestForSlowSubscriber(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Scheduler: SchedulerConfig{HistorySize: 9}}
	m.publish(first)
	m.publish(second) // buffer full: oldest dropped, newest delivered

	got := <-ch
	if got != second {
		t.Fatalf("got %+v, want the newest config", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra delivery: %+v", extra)
	default:
	}
}
