// Package notify delivers task failure reports to a Telegram chat.
//
// Reports are queued and sent by a single worker behind a token-bucket rate
// limit, so a misbehaving task that fails every tick cannot flood the chat.
// Enqueueing never blocks the scheduler: when the queue is full the report is
// dropped and counted.
package notify

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "taskd/pkg/logx"
)

// sender abstracts the Telegram transport for tests.
type sender interface {
	sendText(ctx context.Context, chatID int64, threadID int, text string) error
}

type job struct {
	text     string
	dedupKey uint64
}

// Service is an async report pipeline: bounded queue, one worker, rate limit,
// dedup window. Safe for concurrent use. It satisfies the scheduler's
// Reporter interface.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	send sender

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	dropped uint64

	// dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[uint64]time.Time
}

// New builds the service. When cfg.Enabled is set, the Telegram bot client is
// created eagerly so a bad token fails at startup instead of at the first
// report.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		dedup: map[uint64]time.Time{},
	}
	s.applyLocked(cfg)

	if cfg.Enabled {
		snd, err := newTelegramSender(cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		s.send = snd
	}
	return s, nil
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled && s.send != nil
	s.mu.Unlock()
	return en
}

// Apply swaps runtime-tunable settings. Token changes require a restart; the
// bot client is not rebuilt.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	cfg.Token = s.cfg.Token
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	// Burst of 5 so a small cluster of distinct failures goes out immediately.
	s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), 5)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled || s.send == nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	q := s.queue
	chatID := s.cfg.ChatID
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in notify worker",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
		}()
		s.workerLoop(runCtx, q)
	}()

	s.log.Info("notifier started", logx.Int64("chat", chatID))
}

// Stop blocks intake and drains the queue best-effort until ctx's deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.stopDone = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	// In-flight enqueues hold references to q; wait for them before closing.
	s.sendWG.Wait()
	close(q)
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
}

// ReportTaskError enqueues a failure report. Never blocks; drops when the
// notifier is disabled, stopped, saturated, or the report is a duplicate
// within the dedup window.
func (s *Service) ReportTaskError(err error, taskID, taskName string) {
	if err == nil {
		return
	}
	text := formatReport(err, taskID, taskName)
	if qerr := s.enqueue(text, dedupKey(taskID, err.Error())); qerr != nil {
		s.log.Debug("task error report dropped", logx.String("task", taskID), logx.Err(qerr))
	}
}

func (s *Service) enqueue(text string, key uint64) error {
	s.mu.Lock()
	if !s.cfg.Enabled || s.send == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if window > 0 && !s.dedupAllow(key, window) {
		return nil
	}

	select {
	case q <- job{text: text, dedupKey: key}:
		return nil
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for j := range q {
		s.mu.Lock()
		lim := s.limiter
		chatID := s.cfg.ChatID
		threadID := s.cfg.ThreadID
		snd := s.send
		s.mu.Unlock()

		if err := lim.Wait(ctx); err != nil {
			return
		}
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := snd.sendText(sendCtx, chatID, threadID, j.text)
		cancel()
		if err != nil {
			s.log.Warn("report delivery failed", logx.Err(err))
		}
	}
}

func (s *Service) dedupAllow(key uint64, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	// Opportunistic cleanup keeps the map bounded without a sweeper.
	if len(s.dedup) > 512 {
		for k, until := range s.dedup {
			if now.After(until) {
				delete(s.dedup, k)
			}
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

// Dropped returns how many reports were discarded because the queue was full.
func (s *Service) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func dedupKey(taskID, errText string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(taskID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(errText))
	return h.Sum64()
}

func formatReport(err error, taskID, taskName string) string {
	var b strings.Builder
	b.WriteString("task failed\n")
	if taskName != "" {
		fmt.Fprintf(&b, "name: %s\n", taskName)
	}
	fmt.Fprintf(&b, "id: %s\n", taskID)
	msg := err.Error()
	if len(msg) > 1500 {
		msg = msg[:1500] + "…"
	}
	fmt.Fprintf(&b, "err: %s", msg)
	return b.String()
}
