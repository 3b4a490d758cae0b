package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps (module, function) names to handler functions.
//
// Persisted tasks store the name pair instead of the live function; the pair
// is resolved against the registry when records are loaded at startup.
// Populate it before Service.Start so recovery can find every handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// Register adds a named handler. Names must be non-empty and unique.
func (r *Registry) Register(module, function string, fn HandlerFunc) error {
	module = strings.TrimSpace(module)
	function = strings.TrimSpace(function)
	if module == "" || function == "" {
		return fmt.Errorf("handler name required (got %q, %q)", module, function)
	}
	if fn == nil {
		return fmt.Errorf("handler %s.%s is nil", module, function)
	}
	key := module + "." + function

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[key]; dup {
		return fmt.Errorf("handler %s already registered", key)
	}
	r.handlers[key] = fn
	return nil
}

// MustRegister is Register for startup wiring where a duplicate is a bug.
func (r *Registry) MustRegister(module, function string, fn HandlerFunc) {
	if err := r.Register(module, function, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up the handler named by ref.
func (r *Registry) Resolve(ref HandlerRef) (HandlerFunc, bool) {
	if ref.IsZero() {
		return nil, false
	}
	r.mu.RLock()
	fn, ok := r.handlers[ref.String()]
	r.mu.RUnlock()
	return fn, ok
}

// Names returns all registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		names = append(names, k)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
