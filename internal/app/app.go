// Package app wires configuration, logging, storage, the scheduler, and the
// failure notifier into one lifecycle.
package app

import (
	"context"
	"fmt"

	"taskd/internal/config"
	"taskd/internal/handlers"
	"taskd/internal/notify"
	"taskd/internal/scheduler"
	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	reg   *scheduler.Registry
	sched *scheduler.Service
	notif *notify.Service

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	subCh       chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	// Storage is only opened when durable tasks are switched on; the
	// scheduler then rejects persist requests with a clear error when the
	// block is missing.
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	reg := scheduler.NewRegistry()
	handlers.Register(reg, log.With(logx.String("comp", "handlers")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	var (
		notifSvc *notify.Service
		reporter scheduler.Reporter
	)
	if ncfg, enabled := mapNotifyConfig(cfg); enabled {
		notifSvc, err = notify.New(ncfg, log.With(logx.String("comp", "notify")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
		reporter = notifSvc
	}

	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), reg, store, reporter)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		reg:     reg,
		sched:   sched,
		notif:   notifSvc,
	}, nil
}

// Scheduler exposes the task engine for callers embedding taskd.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Registry exposes the handler registry; custom handlers must be registered
// before Start so persisted tasks can resolve them.
func (a *App) Registry() *scheduler.Registry { return a.reg }

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if a.notif != nil {
		a.notif.Start(ctx)
	}
	a.sched.Start(ctx)

	// Watch the config file and hot-apply runtime-tunable settings.
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	a.subCh = a.cfgm.Subscribe(4)

	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer close(a.watchDone)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-a.subCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.log.Info("taskd started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig pushes a reloaded config into the running services. Storage
// driver changes need a restart and are ignored here.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		// Validator should have caught this; keep the old settings.
		a.log.Warn("reloaded config rejected", logx.Err(err))
		return
	}
	a.sched.Apply(schedCfg)

	if a.notif != nil {
		ncfg, _ := mapNotifyConfig(cfg)
		a.notif.Apply(ncfg)
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		<-a.watchDone
		a.cfgm.Unsubscribe(a.subCh)
		a.watchCancel = nil
	}

	a.sched.Stop(ctx)
	if a.notif != nil {
		a.notif.Stop(ctx)
	}

	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	a.log.Info("taskd stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
