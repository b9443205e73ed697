package stats

import "sync"

// Collector is the counter sink shared by middlewares and the engine.
// Implementations must be safe for concurrent use from many in-flight
// request/response pairs.
type Collector interface {
	Inc(key string)
	Get(key string) int64
	Snapshot() map[string]int64
}

// Memory is the in-process Collector: a mutex-guarded counter map.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory creates an empty in-memory collector.
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

// Inc increments the counter for key by one, creating it at zero first.
func (m *Memory) Inc(key string) {
	m.mu.Lock()
	m.counters[key]++
	m.mu.Unlock()
}

// Get returns the current value of key (zero if never incremented).
func (m *Memory) Get(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

// Snapshot returns a copy of all counters.
func (m *Memory) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
