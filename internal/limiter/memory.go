package limiter

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local blacklist guarded by a mutex.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemory constructs an empty blacklist. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, entries: map[string]time.Time{}}
}

var _ Blacklist = (*Memory)(nil)

// Allow reports whether ip is currently unbanned. Expired entries are dropped.
func (m *Memory) Allow(_ context.Context, ip string) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[ip]
	if !ok {
		return true, time.Time{}, nil
	}
	if !m.now().Before(until) {
		delete(m.entries, ip)
		return true, time.Time{}, nil
	}
	return false, until, nil
}

// Ban blocks ip for d from now.
func (m *Memory) Ban(_ context.Context, ip string, d time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := m.now().Add(d)
	if cur, ok := m.entries[ip]; ok && cur.After(until) {
		return cur, nil
	}
	m.entries[ip] = until
	return until, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
