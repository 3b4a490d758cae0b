package scheduler

import "sync"

// engineStats aggregates outcome counters, overall and by kind/tag.
// It has its own mutex so stat bumps never contend with the task store.
type engineStats struct {
	mu     sync.Mutex
	total  Counters
	byKind map[string]*Counters
	byTag  map[string]*Counters
}

func newEngineStats() *engineStats {
	return &engineStats{
		byKind: map[string]*Counters{},
		byTag:  map[string]*Counters{},
	}
}

func (st *engineStats) bump(kind Kind, tags []string, f func(*Counters)) {
	st.mu.Lock()
	defer st.mu.Unlock()

	f(&st.total)

	k := kind.String()
	c := st.byKind[k]
	if c == nil {
		c = &Counters{}
		st.byKind[k] = c
	}
	f(c)

	for _, tag := range tags {
		if tag == "" {
			continue
		}
		c := st.byTag[tag]
		if c == nil {
			c = &Counters{}
			st.byTag[tag] = c
		}
		f(c)
	}
}

func (st *engineStats) snapshot() Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := Statistics{
		Counters: st.total,
		ByKind:   make(map[string]Counters, len(st.byKind)),
		ByTag:    make(map[string]Counters, len(st.byTag)),
	}
	for k, c := range st.byKind {
		out.ByKind[k] = *c
	}
	for k, c := range st.byTag {
		out.ByTag[k] = *c
	}
	return out
}
