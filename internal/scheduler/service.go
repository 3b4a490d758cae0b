package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

// Service owns the task store and runs the tick loop.
//
// All record mutation happens under mu, from the tick loop or from the direct
// API calls (Add, Cancel, Execute). Admission marks a task Running under the
// same lock that scans for due tasks, so a running task can never be admitted
// twice.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	reg      *Registry
	store    storage.Store
	reporter Reporter

	tasks    map[string]*task
	inFlight int

	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when
	// the loops and in-flight work fully exit.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	loopWG    sync.WaitGroup
	execWG    sync.WaitGroup

	stats *engineStats

	hmu     sync.Mutex
	history []ExecutionRecord
}

// New creates a scheduler. reg may be nil (an empty registry is created);
// store may be nil (persistence disabled); reporter may be nil.
func New(cfg Config, log logx.Logger, reg *Registry, store storage.Store, reporter Reporter) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Service{
		log:      log,
		cfg:      cfg.withDefaults(),
		reg:      reg,
		store:    store,
		reporter: reporter,
		tasks:    map[string]*task{},
		stats:    newEngineStats(),
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

// Registry returns the handler registry used for persisted-task resolution.
func (s *Service) Registry() *Registry { return s.reg }

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps runtime-tunable settings. Tick and sweep periods take effect on
// the next cycle; the concurrency budget on the next tick.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg.withDefaults()
	if newTZ := strings.TrimSpace(cfg.Timezone); newTZ != oldTZ {
		s.loc = s.loadLocation(newTZ)
	}
}

// Start loads persisted tasks (if a store is configured) and starts the tick
// and persist-sweep loops. Safe to call while a Stop is still draining: it
// waits for the stop to finish first. No-op when already running.
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double loops).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled; not starting")
		return
	}

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	if s.store != nil {
		s.loadStoredLocked(s.runCtx)
	}

	runCtx := s.runCtx
	stopCh := s.stopCh

	s.loopWG.Add(2)
	go func() {
		defer s.loopWG.Done()
		s.tickLoop(runCtx, stopCh)
	}()
	go func() {
		defer s.loopWG.Done()
		s.sweepLoop(runCtx, stopCh)
	}()

	s.log.Info("scheduler started",
		logx.Duration("check_interval", s.cfg.CheckInterval),
		logx.Int("max_concurrent", s.cfg.MaxConcurrent),
		logx.Int("tasks", len(s.tasks)),
		logx.String("tz", s.loc.String()),
	)
}

// Stop halts the loops and waits for in-flight handlers to return, up to
// ctx's deadline; draining continues in the background past the deadline.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	// Finalize cleanup in background so Stop() can return on timeout safely.
	go func() {
		s.loopWG.Wait()
		s.execWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// drain continues in background
	}
}

func (s *Service) tickLoop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		s.mu.Lock()
		interval := s.cfg.CheckInterval
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		s.mu.Lock()
		interval := s.cfg.PersistInterval
		store := s.store
		s.mu.Unlock()
		if store == nil {
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			n, err := s.PersistAll()
			if err != nil {
				// Retried on the next sweep, not immediately.
				s.log.Warn("persist sweep incomplete", logx.Int("saved", n), logx.Err(err))
			} else if n > 0 {
				s.log.Debug("persist sweep done", logx.Int("saved", n))
			}
		}
	}
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) now() time.Time {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return time.Now().In(loc)
}

func (s *Service) nowLocked() time.Time {
	return time.Now().In(s.loc)
}
