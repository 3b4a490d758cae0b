package app

import (
	"time"

	"taskd/internal/config"
	"taskd/internal/notify"
	"taskd/internal/scheduler"
	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler

	check, err := config.ParseDurationOrDefault("scheduler.check_interval", sc.CheckInterval, time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	persist, err := config.ParseDurationOrDefault("scheduler.persist_interval", sc.PersistInterval, time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", sc.DefaultTimeout, 0)
	if err != nil {
		return scheduler.Config{}, err
	}

	enabled := true
	if sc.Enabled != nil {
		enabled = *sc.Enabled
	}

	return scheduler.Config{
		Enabled:         enabled,
		CheckInterval:   check,
		PersistInterval: persist,
		MaxConcurrent:   sc.MaxConcurrentTasks,
		DefaultTimeout:  timeout,
		HistorySize:     sc.HistorySize,
		Timezone:        sc.Timezone,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if !cfg.Scheduler.PersistTasks || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, bool) {
	if cfg.Notify == nil {
		return notify.Config{}, false
	}
	n := cfg.Notify
	return notify.Config{
		Enabled:     n.Enabled,
		Token:       n.Token,
		ChatID:      n.ChatID,
		ThreadID:    n.ThreadID,
		RatePerMin:  n.RatePerMin,
		DedupWindow: 5 * time.Minute,
	}, n.Enabled
}
