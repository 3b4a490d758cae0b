package handlers

import (
	"context"
	"testing"

	"taskd/internal/scheduler"
	logx "taskd/pkg/logx"
)

func TestRegisterInstallsBuiltins(t *testing.T) {
	t.Parallel()
	reg := scheduler.NewRegistry()
	Register(reg, logx.Nop())

	for _, name := range []struct{ module, function string }{
		{"system", "heartbeat"},
		{"system", "gc"},
		{"net", "latency"},
	} {
		ref := scheduler.HandlerRef{Module: name.module, Function: name.function}
		if _, ok := reg.Resolve(ref); !ok {
			t.Fatalf("builtin %s not registered", ref)
		}
	}
}

func TestHeartbeatRuns(t *testing.T) {
	t.Parallel()
	fn := heartbeat(logx.Nop())
	if err := fn(context.Background(), scheduler.Invocation{TaskID: "hb", Run: 3}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func TestForceGCRuns(t *testing.T) {
	t.Parallel()
	fn := forceGC(logx.Nop())
	if err := fn(context.Background(), scheduler.Invocation{TaskID: "gc"}); err != nil {
		t.Fatalf("gc: %v", err)
	}
}

func TestAsInt(t *testing.T) {
	t.Parallel()
	if n, ok := asInt(float64(7)); !ok || n != 7 {
		t.Fatalf("asInt(float64) = %d, %v", n, ok)
	}
	if n, ok := asInt(int64(4)); !ok || n != 4 {
		t.Fatalf("asInt(int64) = %d, %v", n, ok)
	}
	if _, ok := asInt("x"); ok {
		t.Fatal("asInt accepted a string")
	}
}
