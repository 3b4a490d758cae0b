package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "taskd/pkg/logx"
)

// Add registers a task and returns its id.
//
// Validation failures wrap ErrInvalidTask. Registration is allowed while the
// engine is stopped; the task waits for the next Start.
func (s *Service) Add(req Request) (string, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if !validTaskID(id) {
		return "", fmt.Errorf("%w: id %q (allowed: [A-Za-z0-9._:@-], max 128, no leading dot)", ErrInvalidTask, req.ID)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrInvalidTask)
	}
	if err := req.Schedule.Validate(); err != nil {
		return "", err
	}

	handler := req.Handler
	if handler == nil {
		fn, ok := s.reg.Resolve(req.Ref)
		if !ok {
			return "", fmt.Errorf("%w: no handler and ref %q not registered", ErrInvalidTask, req.Ref)
		}
		handler = fn
	}
	if req.Persist {
		if s.store == nil {
			return "", fmt.Errorf("%w: persistence requested but storage is disabled", ErrInvalidTask)
		}
		if req.Ref.IsZero() {
			return "", fmt.Errorf("%w: persisted tasks need a handler ref", ErrInvalidTask)
		}
		if _, ok := s.reg.Resolve(req.Ref); !ok {
			return "", fmt.Errorf("%w: ref %q not registered", ErrInvalidTask, req.Ref)
		}
	}

	s.mu.Lock()
	if _, dup := s.tasks[id]; dup {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: id %q already in use", ErrInvalidTask, id)
	}

	now := s.nowLocked()
	next, _ := firstRun(req.Schedule, now)
	t := &task{
		id:        id,
		name:      name,
		handler:   handler,
		ref:       req.Ref,
		data:      cloneData(req.Data),
		tags:      cloneTags(req.Tags),
		schedule:  req.Schedule,
		nextRun:   next, // zero when the schedule is already exhausted
		createdAt: now,
		updatedAt: now,
		status:    StatusScheduled,
		persist:   req.Persist,
		timeout:   req.Timeout,
	}
	s.tasks[id] = t
	if t.persist {
		s.saveStoredAsync(t)
	}
	s.mu.Unlock()

	s.stats.bump(t.schedule.Kind, t.tags, func(c *Counters) { c.Scheduled++ })
	s.log.Debug("task registered",
		logx.String("task", id),
		logx.String("name", name),
		logx.String("kind", t.schedule.Kind.String()),
	)

	if req.RunNow {
		s.execWG.Add(1)
		go func() {
			defer s.execWG.Done()
			if err := s.executeWith(context.Background(), id, nil, TriggerRegister); err != nil {
				s.log.Debug("run-now execution failed", logx.String("task", id), logx.Err(err))
			}
		}()
	}
	return id, nil
}

// Cancel removes a task. A task that is mid-execution finishes its current
// run and is evicted afterwards. Returns false for unknown ids, so a double
// cancel reports false.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	kind, tags := t.schedule.Kind, cloneTags(t.tags)
	if t.status == StatusRunning {
		t.cancelled = true
		t.nextRun = time.Time{}
	} else {
		delete(s.tasks, id)
		if t.persist {
			s.deleteStoredAsync(id)
		}
	}
	s.mu.Unlock()

	s.stats.bump(kind, tags, func(c *Counters) { c.Cancelled++ })
	s.log.Debug("task cancelled", logx.String("task", id))
	return true
}

// Get returns a read-only copy of the task record.
func (s *Service) Get(id string) (TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return infoFromTask(t), nil
}

// List returns tasks matching the filter, ordered by registration time
// (ties broken by id).
func (s *Service) List(f Filter) []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Kind != 0 && t.schedule.Kind != f.Kind {
			continue
		}
		if f.Status != 0 && t.status != f.Status {
			continue
		}
		if f.Tag != "" && !hasTag(t.tags, f.Tag) {
			continue
		}
		out = append(out, infoFromTask(t))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Execute runs a task immediately, outside its schedule, and returns the
// handler's error. The run bypasses the concurrency budget but still counts
// toward statistics, history, and the task's execution counters. extra is
// merged over the task's stored data for this run only.
func (s *Service) Execute(ctx context.Context, id string, extra map[string]any) error {
	return s.executeWith(ctx, id, extra, TriggerManual)
}

func (s *Service) executeWith(ctx context.Context, id string, extra map[string]any, trigger Trigger) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.status == StatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	t.status = StatusRunning
	s.inFlight++
	snap := s.snapshotForRun(t, extra)
	s.mu.Unlock()

	return s.run(ctx, snap, trigger)
}

// PersistAll serializes every persisted task. Returns the number of records
// saved and the joined errors of the ones that failed.
func (s *Service) PersistAll() (int, error) {
	s.mu.Lock()
	recs := make([]taskRecordPair, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.persist {
			recs = append(recs, taskRecordPair{id: t.id, rec: recordFromTask(t)})
		}
	}
	store := s.store
	s.mu.Unlock()

	if store == nil || len(recs) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	saved := 0
	var errs []error
	for _, p := range recs {
		if err := store.SaveTask(ctx, p.rec); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", p.id, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Stats returns aggregated outcome counters, overall and by kind/tag.
func (s *Service) Stats() Statistics { return s.stats.snapshot() }

// LastExecutions returns up to n audit entries, newest first. n <= 0 returns
// the whole ring.
func (s *Service) LastExecutions(n int) []ExecutionRecord {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]ExecutionRecord, 0, n)
	for i := len(s.history) - 1; i >= len(s.history)-n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// Snapshot returns a diagnostics view of the engine.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:         s.cfg.Enabled,
		Running:         s.stopCh != nil && s.stopDone == nil,
		Timezone:        s.loc.String(),
		CheckInterval:   s.cfg.CheckInterval,
		PersistInterval: s.cfg.PersistInterval,
		MaxConcurrent:   s.cfg.MaxConcurrent,
		DefaultTimeout:  s.cfg.DefaultTimeout,
		Tasks:           len(s.tasks),
		InFlight:        s.inFlight,
	}
	s.mu.Unlock()

	snap.Stats = s.stats.snapshot()
	snap.History = s.LastExecutions(0)
	return snap
}

func infoFromTask(t *task) TaskInfo {
	return TaskInfo{
		ID:         t.id,
		Name:       t.name,
		Ref:        t.ref,
		Tags:       cloneTags(t.tags),
		Schedule:   t.schedule,
		NextRun:    t.nextRun,
		LastRun:    t.lastRun,
		CreatedAt:  t.createdAt,
		UpdatedAt:  t.updatedAt,
		Executions: t.executions,
		Failures:   t.failures,
		Status:     t.status,
		Persist:    t.persist,
	}
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func cloneTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return append([]string(nil), tags...)
}

func cloneData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// validTaskID mirrors the storage filename alphabet so a persisted task can
// always be written as "<id>.json".
func validTaskID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':' || r == '@':
		default:
			return false
		}
	}
	return !strings.HasPrefix(id, ".")
}
