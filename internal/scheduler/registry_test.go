package scheduler

import (
	"context"
	"testing"
)

func nopHandler(context.Context, Invocation) error { return nil }

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register("probe", "latency", nopHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("probe", "latency", nopHandler); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := r.Register("", "latency", nopHandler); err == nil {
		t.Fatal("expected error for empty module")
	}
	if err := r.Register("probe", "nil", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}

	if _, ok := r.Resolve(HandlerRef{Module: "probe", Function: "latency"}); !ok {
		t.Fatal("Resolve failed for registered handler")
	}
	if _, ok := r.Resolve(HandlerRef{Module: "probe", Function: "missing"}); ok {
		t.Fatal("Resolve succeeded for unknown handler")
	}
	if _, ok := r.Resolve(HandlerRef{}); ok {
		t.Fatal("Resolve succeeded for zero ref")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister("z", "last", nopHandler)
	r.MustRegister("a", "first", nopHandler)
	r.MustRegister("m", "mid", nopHandler)

	names := r.Names()
	want := []string{"a.first", "m.mid", "z.last"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister("a", "b", nopHandler)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.MustRegister("a", "b", nopHandler)
}
