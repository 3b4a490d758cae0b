package scheduler

import (
	"context"
	"fmt"
	"time"

	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

// persistTimeout bounds every background store call.
const persistTimeout = 5 * time.Second

type taskRecordPair struct {
	id  string
	rec storage.TaskRecord
}

// recordFromTask builds the on-disk shape. Caller holds s.mu.
func recordFromTask(t *task) storage.TaskRecord {
	rec := storage.TaskRecord{
		ID:              t.id,
		Name:            t.name,
		HandlerModule:   t.ref.Module,
		HandlerFunction: t.ref.Function,
		Data:            t.data,
		Tags:            t.tags,
		Kind:            t.schedule.Kind.String(),
		CreatedAt:       t.createdAt,
		UpdatedAt:       t.updatedAt,
		Executions:      t.executions,
		Failures:        t.failures,
	}
	switch t.schedule.Kind {
	case KindCron:
		rec.CronExpr = t.schedule.Expr
	case KindInterval:
		rec.Every = t.schedule.Every.String()
	case KindDate:
		at := t.schedule.At
		rec.At = &at
	}
	if !t.nextRun.IsZero() {
		nr := t.nextRun
		rec.NextRun = &nr
	}
	if !t.lastRun.IsZero() {
		lr := t.lastRun
		rec.LastRun = &lr
	}
	if t.timeout != 0 {
		rec.Timeout = t.timeout.String()
	}
	return rec
}

// taskFromRecord rebuilds a stored task around the re-resolved handler.
// The stored next-run time is kept as-is, so a task that came due while the
// process was down fires on the first tick after startup.
func taskFromRecord(rec storage.TaskRecord, handler HandlerFunc, now time.Time) (*task, error) {
	sc, err := scheduleFromRecord(rec)
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if rec.Timeout != "" {
		timeout, err = time.ParseDuration(rec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("task %s: bad timeout %q: %w", rec.ID, rec.Timeout, err)
		}
	}

	t := &task{
		id:      rec.ID,
		name:    rec.Name,
		handler: handler,
		ref:     HandlerRef{Module: rec.HandlerModule, Function: rec.HandlerFunction},
		data:    rec.Data,
		tags:    rec.Tags,

		schedule: sc,

		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,

		executions: rec.Executions,
		failures:   rec.Failures,

		status:  StatusScheduled,
		persist: true,
		timeout: timeout,
	}
	if rec.NextRun != nil {
		t.nextRun = *rec.NextRun
	} else {
		// Older records without a next-run stamp: re-derive from the schedule.
		t.nextRun, _ = firstRun(sc, now)
	}
	if rec.LastRun != nil {
		t.lastRun = *rec.LastRun
	}
	return t, nil
}

func scheduleFromRecord(rec storage.TaskRecord) (Schedule, error) {
	switch rec.Kind {
	case "cron":
		sc := Cron(rec.CronExpr)
		if err := sc.Validate(); err != nil {
			return Schedule{}, fmt.Errorf("task %s: %w", rec.ID, err)
		}
		return sc, nil
	case "interval":
		every, err := time.ParseDuration(rec.Every)
		if err != nil {
			return Schedule{}, fmt.Errorf("task %s: bad interval %q: %w", rec.ID, rec.Every, err)
		}
		sc := Every(every)
		if err := sc.Validate(); err != nil {
			return Schedule{}, fmt.Errorf("task %s: %w", rec.ID, err)
		}
		return sc, nil
	case "date":
		if rec.At == nil {
			return Schedule{}, fmt.Errorf("task %s: date schedule without a date", rec.ID)
		}
		return At(*rec.At), nil
	case "immediate":
		return Immediately(), nil
	default:
		return Schedule{}, fmt.Errorf("task %s: unknown schedule kind %q", rec.ID, rec.Kind)
	}
}

// saveStoredAsync serializes the task under s.mu and writes it in the
// background. Caller holds s.mu.
func (s *Service) saveStoredAsync(t *task) {
	if s.store == nil {
		return
	}
	pair := taskRecordPair{id: t.id, rec: recordFromTask(t)}
	s.execWG.Add(1)
	go func() {
		defer s.execWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.store.SaveTask(ctx, pair.rec); err != nil {
			s.log.Warn("task save failed", logx.String("task", pair.id), logx.Err(err))
		}
	}()
}

// deleteStoredAsync removes the stored record in the background. Caller holds
// s.mu. A record that fails to delete is orphaned until the next startup,
// where it is skipped if its handler no longer resolves.
func (s *Service) deleteStoredAsync(id string) {
	if s.store == nil {
		return
	}
	s.execWG.Add(1)
	go func() {
		defer s.execWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.store.DeleteTask(ctx, id); err != nil {
			s.log.Warn("task delete failed", logx.String("task", id), logx.Err(err))
		}
	}()
}

// loadStoredLocked restores persisted tasks into the in-memory store.
// Records whose handler ref no longer resolves are skipped with a warning and
// left on disk. Caller holds s.mu.
func (s *Service) loadStoredLocked(ctx context.Context) {
	recs, err := s.store.LoadTasks(ctx)
	if err != nil {
		s.log.Error("loading stored tasks failed", logx.Err(err))
		return
	}

	now := s.nowLocked()
	loaded, skipped := 0, 0
	for _, rec := range recs {
		if _, dup := s.tasks[rec.ID]; dup {
			skipped++
			s.log.Warn("stored task shadowed by live task", logx.String("task", rec.ID))
			continue
		}
		ref := HandlerRef{Module: rec.HandlerModule, Function: rec.HandlerFunction}
		handler, ok := s.reg.Resolve(ref)
		if !ok {
			skipped++
			s.log.Warn("stored task handler not registered",
				logx.String("task", rec.ID),
				logx.String("ref", ref.String()),
			)
			continue
		}
		t, err := taskFromRecord(rec, handler, now)
		if err != nil {
			skipped++
			s.log.Warn("stored task unusable", logx.String("task", rec.ID), logx.Err(err))
			continue
		}
		s.tasks[t.id] = t
		loaded++
		s.stats.bump(t.schedule.Kind, t.tags, func(c *Counters) { c.Scheduled++ })
	}

	if loaded > 0 || skipped > 0 {
		s.log.Info("stored tasks loaded", logx.Int("loaded", loaded), logx.Int("skipped", skipped))
	}
}
