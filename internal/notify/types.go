package notify

import (
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls the Telegram error reporter.
type Config struct {
	Enabled bool

	// Token is the Telegram bot token.
	Token string

	// ChatID is the destination chat; ThreadID targets a forum topic (0 = main).
	ChatID   int64
	ThreadID int

	// RatePerMin caps outgoing messages. Default 20 (Telegram allows ~20/min
	// per group).
	RatePerMin int

	// QueueSize bounds pending messages; reports beyond it are dropped.
	QueueSize int

	// DedupWindow suppresses identical reports within the window.
	// Zero disables deduplication.
	DedupWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerMin <= 0 {
		c.RatePerMin = 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	return c
}
