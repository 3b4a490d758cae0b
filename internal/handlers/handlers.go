// Package handlers provides the builtin named task handlers.
//
// Builtins are registered under stable module/function names so persisted
// tasks referencing them survive restarts. Custom handlers can be registered
// alongside them before the scheduler starts.
package handlers

import (
	"context"
	"runtime"
	"time"

	"taskd/internal/scheduler"
	logx "taskd/pkg/logx"
)

var startedAt = time.Now()

// Register installs all builtin handlers into the registry.
func Register(reg *scheduler.Registry, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	reg.MustRegister("system", "heartbeat", heartbeat(log))
	reg.MustRegister("system", "gc", forceGC(log))
	reg.MustRegister("net", "latency", latencyProbe(log))
}

// heartbeat logs process liveness and basic runtime stats. Useful as a
// persisted canary task: if the heartbeat stops, the scheduler (or the whole
// process) is wedged.
func heartbeat(log logx.Logger) scheduler.HandlerFunc {
	return func(_ context.Context, inv scheduler.Invocation) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		log.Info("heartbeat",
			logx.String("task", inv.TaskID),
			logx.Uint64("run", inv.Run),
			logx.Duration("uptime", time.Since(startedAt).Round(time.Second)),
			logx.Int("goroutines", runtime.NumGoroutine()),
			logx.Uint64("heap_mb", ms.HeapAlloc/1024/1024),
		)
		return nil
	}
}

func forceGC(log logx.Logger) scheduler.HandlerFunc {
	return func(_ context.Context, inv scheduler.Invocation) error {
		start := time.Now()
		runtime.GC()
		log.Debug("forced gc",
			logx.String("task", inv.TaskID),
			logx.Duration("took", time.Since(start)),
		)
		return nil
	}
}
