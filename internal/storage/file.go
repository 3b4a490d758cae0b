package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "taskd/pkg/logx"
)

// fileStore keeps one JSON file per task id under a directory.
//
// Writes go through a temp file + rename so a crash mid-write never leaves a
// truncated record behind.
type fileStore struct {
	dir string
	log logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) SaveTask(ctx context.Context, rec TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.taskPath(rec.ID)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", rec.ID, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write task %s: %w", rec.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit task %s: %w", rec.ID, err)
	}
	return nil
}

func (s *fileStore) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.taskPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *fileStore) LoadTasks(ctx context.Context) ([]TaskRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	recs := make([]TaskRecord, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("task file unreadable; skipping", logx.String("path", path), logx.Err(err))
			continue
		}
		var rec TaskRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			// A corrupt record should not block recovery of the rest.
			s.log.Warn("task file corrupt; skipping", logx.String("path", path), logx.Err(err))
			continue
		}
		if rec.ID == "" {
			s.log.Warn("task file missing id; skipping", logx.String("path", path))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *fileStore) taskPath(id string) (string, error) {
	if !validTaskFileID(id) {
		return "", fmt.Errorf("task id %q not usable as filename", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// validTaskFileID restricts ids to characters safe for filenames on all
// supported platforms. The scheduler enforces the same alphabet at
// registration time; this is the storage-side backstop.
func validTaskFileID(id string) bool {
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
	// no sneaky relative paths
	return id != "." && id != ".." && !strings.HasPrefix(id, ".")
}
