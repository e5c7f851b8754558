package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepEvery is the Run interval when none is given.
const DefaultSweepEvery = time.Minute

type memEntry struct {
	val []byte
	exp time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on
// read and by Sweep; Run sweeps periodically so keys that are never read
// again are still freed.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry), now: time.Now}
}

// WithClock replaces the clock; used by tests to step past a TTL.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(e.exp) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.exp.Equal(e.exp) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.mu.Lock()
	m.entries[key] = memEntry{val: cp, exp: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and reports how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.exp) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Run calls Sweep every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultSweepEvery
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
