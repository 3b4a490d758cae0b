package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	logx "taskd/pkg/logx"
)

// slowRunThreshold promotes completion logs from debug to info.
const slowRunThreshold = 750 * time.Millisecond

// tick scans for due tasks and dispatches them, oldest due time first, up to
// the concurrency budget. Exhausted one-shot tasks are evicted here.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	now := s.nowLocked()

	for id, t := range s.tasks {
		if t.status == StatusScheduled && t.nextRun.IsZero() {
			delete(s.tasks, id)
			if t.persist {
				s.deleteStoredAsync(id)
			}
		}
	}

	var due []*task
	for _, t := range s.tasks {
		if t.status != StatusScheduled || t.nextRun.IsZero() {
			continue
		}
		if t.nextRun.After(now) {
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].nextRun.Before(due[j].nextRun) })

	budget := s.cfg.MaxConcurrent - s.inFlight
	if budget < 0 {
		budget = 0
	}
	if len(due) > budget {
		s.log.Debug("tick over budget",
			logx.Int("due", len(due)),
			logx.Int("budget", budget),
		)
		due = due[:budget]
	}

	snaps := make([]taskSnapshot, 0, len(due))
	for _, t := range due {
		t.status = StatusRunning
		s.inFlight++
		snaps = append(snaps, s.snapshotForRun(t, nil))
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		snap := snap
		s.execWG.Add(1)
		go func() {
			defer s.execWG.Done()
			_ = s.run(ctx, snap, TriggerTick)
		}()
	}
}

// snapshotForRun builds the immutable per-run view. Caller holds s.mu and has
// already marked the task Running.
func (s *Service) snapshotForRun(t *task, extra map[string]any) taskSnapshot {
	data := cloneData(t.data)
	if len(extra) > 0 {
		if data == nil {
			data = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			data[k] = v
		}
	}

	timeout := t.timeout
	switch {
	case timeout < 0:
		timeout = 0
	case timeout == 0:
		timeout = s.cfg.DefaultTimeout
	}

	scheduledAt := t.nextRun
	if scheduledAt.IsZero() {
		scheduledAt = s.nowLocked()
	}
	return taskSnapshot{
		id:          t.id,
		name:        t.name,
		handler:     t.handler,
		data:        data,
		executions:  t.executions,
		timeout:     timeout,
		scheduledAt: scheduledAt,
	}
}

// run invokes the handler, settles the task record, and records the outcome.
// The caller has already marked the task Running.
func (s *Service) run(ctx context.Context, snap taskSnapshot, trigger Trigger) error {
	started := time.Now()
	err := s.invoke(ctx, snap)
	dur := time.Since(started)

	kind, tags := s.settle(snap.id, err)

	if err != nil {
		s.stats.bump(kind, tags, func(c *Counters) { c.Failed++ })
		s.log.Error("task failed",
			logx.String("task", snap.id),
			logx.String("name", snap.name),
			logx.String("trigger", string(trigger)),
			logx.Duration("took", dur),
			logx.Err(err),
		)
		if s.reporter != nil {
			s.reporter.ReportTaskError(err, snap.id, snap.name)
		}
	} else {
		s.stats.bump(kind, tags, func(c *Counters) { c.Executed++ })
		fields := []logx.Field{
			logx.String("task", snap.id),
			logx.String("name", snap.name),
			logx.String("trigger", string(trigger)),
			logx.Duration("took", dur),
		}
		if dur >= slowRunThreshold {
			s.log.Info("task done", fields...)
		} else {
			s.log.Debug("task done", fields...)
		}
	}

	s.appendHistory(ExecutionRecord{
		TaskID:      snap.id,
		Name:        snap.name,
		Trigger:     trigger,
		ScheduledAt: snap.scheduledAt,
		Started:     started,
		Duration:    dur,
		Error:       errString(err),
	})
	return err
}

// invoke runs the handler with panic recovery and the effective timeout.
// On timeout the concurrency slot is released while the handler goroutine is
// left to drain; the handler sees its context cancelled and is expected to
// return on its own.
func (s *Service) invoke(ctx context.Context, snap taskSnapshot) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	inv := Invocation{
		TaskID:      snap.id,
		Name:        snap.name,
		Data:        snap.data,
		Run:         snap.executions,
		ScheduledAt: snap.scheduledAt,
		StartedAt:   time.Now(),
	}

	if snap.timeout <= 0 {
		return s.callHandler(ctx, snap, inv)
	}

	runCtx, cancel := context.WithTimeout(ctx, snap.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.callHandler(runCtx, snap, inv)
	}()

	select {
	case err = <-done:
		return err
	case <-runCtx.Done():
		return fmt.Errorf("task %s: %w after %s", snap.id, runCtx.Err(), snap.timeout)
	}
}

func (s *Service) callHandler(ctx context.Context, snap taskSnapshot, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", snap.id, r)
			s.log.Error("task panic",
				logx.String("task", snap.id),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	return snap.handler(ctx, inv)
}

// settle updates the task record after a run: bumps counters, reschedules
// recurring tasks, evicts exhausted or cancelled ones, re-persists. Returns
// the kind/tags for stat attribution.
func (s *Service) settle(id string, runErr error) (Kind, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight--
	t, ok := s.tasks[id]
	if !ok {
		// evicted while running; nothing to settle
		return 0, nil
	}

	now := s.nowLocked()
	t.lastRun = now
	t.updatedAt = now
	if runErr != nil {
		t.failures++
	} else {
		t.executions++
	}
	kind, tags := t.schedule.Kind, cloneTags(t.tags)

	if t.cancelled {
		delete(s.tasks, id)
		if t.persist {
			s.deleteStoredAsync(id)
		}
		return kind, tags
	}

	// A failed run does not change the cadence: the task retries at its
	// normal next occurrence.
	next, more := nextAfterRun(t.schedule, now)
	if !more {
		delete(s.tasks, id)
		if t.persist {
			s.deleteStoredAsync(id)
		}
		return kind, tags
	}

	t.nextRun = next
	t.status = StatusScheduled
	if t.persist {
		s.saveStoredAsync(t)
	}
	return kind, tags
}

func (s *Service) appendHistory(rec ExecutionRecord) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, rec)
	if over := len(s.history) - limit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
