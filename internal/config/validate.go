package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the config for problems that should reject a load/reload.
// It only validates shape and ranges; services apply their own defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("scheduler.check_interval", c.Scheduler.CheckInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.persist_interval", c.Scheduler.PersistInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if c.Scheduler.MaxConcurrentTasks < 0 {
		return fmt.Errorf("scheduler.max_concurrent_tasks: must be >= 1 (or omitted)")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: unknown timezone %q", tz)
		}
	}

	if c.Scheduler.PersistTasks && c.Storage == nil {
		return fmt.Errorf("scheduler.persist_tasks is on but no storage block is configured")
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	if c.Notify != nil && c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			return fmt.Errorf("notify.token is required when notify is enabled")
		}
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify is enabled")
		}
	}

	return nil
}
