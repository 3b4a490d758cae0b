package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "taskd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveTask(ctx context.Context, rec TaskRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	dataJSON, err := marshalMap(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal task %s data: %w", rec.ID, err)
	}
	tagsJSON, err := marshalTags(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal task %s tags: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, name, handler_module, handler_function, data, tags,
		                   kind, cron_expr, every, at, next_run, last_run,
		                   created_at, updated_at, executions, failures, timeout)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name,
		   handler_module=excluded.handler_module,
		   handler_function=excluded.handler_function,
		   data=excluded.data,
		   tags=excluded.tags,
		   kind=excluded.kind,
		   cron_expr=excluded.cron_expr,
		   every=excluded.every,
		   at=excluded.at,
		   next_run=excluded.next_run,
		   last_run=excluded.last_run,
		   updated_at=excluded.updated_at,
		   executions=excluded.executions,
		   failures=excluded.failures,
		   timeout=excluded.timeout`,
		rec.ID, rec.Name, rec.HandlerModule, rec.HandlerFunction, dataJSON, tagsJSON,
		rec.Kind, nullStr(rec.CronExpr), nullStr(rec.Every), nullTime(rec.At),
		nullTime(rec.NextRun), nullTime(rec.LastRun),
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.Executions, rec.Failures, nullStr(rec.Timeout),
	)
	return err
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) LoadTasks(ctx context.Context) ([]TaskRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, handler_module, handler_function, data, tags,
		        kind, cron_expr, every, at, next_run, last_run,
		        created_at, updated_at, executions, failures, timeout
		 FROM tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []TaskRecord
	for rows.Next() {
		var (
			rec                      TaskRecord
			dataJSON, tagsJSON       sql.NullString
			cronExpr, every, timeout sql.NullString
			at, nextRun, lastRun     sql.NullString
			createdAt, updatedAt     string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.HandlerModule, &rec.HandlerFunction,
			&dataJSON, &tagsJSON, &rec.Kind, &cronExpr, &every, &at, &nextRun, &lastRun,
			&createdAt, &updatedAt, &rec.Executions, &rec.Failures, &timeout); err != nil {
			return nil, err
		}

		rec.CronExpr = cronExpr.String
		rec.Every = every.String
		rec.Timeout = timeout.String
		rec.At = parseNullTime(at)
		rec.NextRun = parseNullTime(nextRun)
		rec.LastRun = parseNullTime(lastRun)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &rec.Data); err != nil {
				s.log.Warn("task data corrupt; skipping record", logx.String("id", rec.ID), logx.Err(err))
				continue
			}
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
				s.log.Warn("task tags corrupt; skipping record", logx.String("id", rec.ID), logx.Err(err))
				continue
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func marshalMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
