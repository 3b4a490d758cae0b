package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logx "taskd/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
}

func (f *fakeSender) sendText(_ context.Context, chatID int64, _ int, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, chatID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeSender) {
	t.Helper()
	cfg.Enabled = true
	if cfg.RatePerMin == 0 {
		cfg.RatePerMin = 60000 // effectively unlimited for tests
	}
	fs := &fakeSender{}
	s := &Service{log: logx.Nop(), dedup: map[uint64]time.Time{}, send: fs}
	s.applyLocked(cfg)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, fs
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestReportDelivery(t *testing.T) {
	t.Parallel()
	s, fs := newTestService(t, Config{ChatID: 42})

	s.ReportTaskError(errors.New("boom"), "task-1", "cleanup")
	waitFor(t, 2*time.Second, "delivery", func() bool { return fs.count() == 1 })

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.chats[0] != 42 {
		t.Fatalf("chat = %d", fs.chats[0])
	}
	got := fs.sent[0]
	for _, want := range []string{"task failed", "cleanup", "task-1", "boom"} {
		if !strings.Contains(got, want) {
			t.Fatalf("report %q missing %q", got, want)
		}
	}
}

func TestNilErrorIgnored(t *testing.T) {
	t.Parallel()
	s, fs := newTestService(t, Config{ChatID: 1})

	s.ReportTaskError(nil, "task-1", "x")
	time.Sleep(30 * time.Millisecond)
	if fs.count() != 0 {
		t.Fatalf("sent %d reports for nil error", fs.count())
	}
}

func TestDedupWindowSuppressesRepeats(t *testing.T) {
	t.Parallel()
	s, fs := newTestService(t, Config{ChatID: 1, DedupWindow: time.Hour})

	for i := 0; i < 5; i++ {
		s.ReportTaskError(errors.New("same failure"), "task-1", "x")
	}
	s.ReportTaskError(errors.New("different failure"), "task-1", "x")

	waitFor(t, 2*time.Second, "two deliveries", func() bool { return fs.count() == 2 })
	time.Sleep(30 * time.Millisecond)
	if fs.count() != 2 {
		t.Fatalf("sent = %d, want 2", fs.count())
	}
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()
	cfg := Config{Enabled: true, ChatID: 1, QueueSize: 1, RatePerMin: 1}
	fs := &fakeSender{}
	s := &Service{log: logx.Nop(), dedup: map[uint64]time.Time{}, send: fs}
	s.applyLocked(cfg)
	// rate 1/min with burst 5: the first few pass, then the queue backs up
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		s.Stop(ctx)
	})

	for i := 0; i < 50; i++ {
		s.ReportTaskError(errors.New("flood"), "task", "x")
	}
	if s.Dropped() == 0 {
		t.Fatal("expected drops with a saturated queue")
	}
}

func TestDisabledRejects(t *testing.T) {
	t.Parallel()
	s := &Service{log: logx.Nop(), dedup: map[uint64]time.Time{}}
	s.applyLocked(Config{})

	if err := s.enqueue("x", 1); !errors.Is(err, ErrDisabled) {
		t.Fatalf("enqueue = %v, want ErrDisabled", err)
	}
}

func TestStoppedRejects(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{ChatID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if err := s.enqueue("x", 1); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue = %v, want ErrStopped", err)
	}
}
