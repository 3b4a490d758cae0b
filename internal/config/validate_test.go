package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty config is valid"},
		{
			name: "bad check interval",
			cfg:  Config{Scheduler: SchedulerConfig{CheckInterval: "five"}},

			wantErr: "check_interval",
		},
		{
			name:    "negative max concurrent",
			cfg:     Config{Scheduler: SchedulerConfig{MaxConcurrentTasks: -1}},
			wantErr: "max_concurrent_tasks",
		},
		{
			name:    "unknown timezone",
			cfg:     Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}},
			wantErr: "timezone",
		},
		{
			name:    "persist without storage",
			cfg:     Config{Scheduler: SchedulerConfig{PersistTasks: true}},
			wantErr: "storage",
		},
		{
			name: "persist with storage",
			cfg: Config{
				Scheduler: SchedulerConfig{PersistTasks: true},
				Storage:   &StorageConfig{Driver: "sqlite", Path: "./t.db"},
			},
		},
		{
			name:    "unknown storage driver",
			cfg:     Config{Storage: &StorageConfig{Driver: "postgres"}},
			wantErr: "driver",
		},
		{
			name:    "notify enabled without token",
			cfg:     Config{Notify: &NotifyConfig{Enabled: true, ChatID: 1}},
			wantErr: "token",
		},
		{
			name:    "notify enabled without chat",
			cfg:     Config{Notify: &NotifyConfig{Enabled: true, Token: "t"}},
			wantErr: "chat_id",
		},
		{
			name: "notify disabled needs nothing",
			cfg:  Config{Notify: &NotifyConfig{Enabled: false}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "1 minute"); err == nil {
		t.Fatal("prose duration accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Fatalf("explicit = %v, %v", d, err)
	}
}
