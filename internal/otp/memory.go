package otp

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often expired entries are purged.
const sweepInterval = time.Minute

type pending struct {
	code    string
	expires time.Time
}

type counter struct {
	count int64
	reset time.Time
}

// MemoryStore keeps codes in process. Suitable for a single gateway replica.
type MemoryStore struct {
	mu        sync.Mutex
	codes     map[string]pending
	counters  map[string]counter
	nextSweep time.Time
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:    make(map[string]pending),
		counters: make(map[string]counter),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, mobile, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	m.codes[mobile] = pending{code: code, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, mobile string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codes[mobile]
	if !ok {
		return "", ErrExpired
	}
	if !m.now().Before(p.expires) {
		delete(m.codes, mobile)
		return "", ErrExpired
	}
	return p.code, nil
}

func (m *MemoryStore) Delete(_ context.Context, mobile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, mobile)
	return nil
}

func (m *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	c := m.counters[key]
	if !now.Before(c.reset) {
		c = counter{reset: now.Add(window)}
	}
	c.count++
	m.counters[key] = c
	return c.count, nil
}

func (m *MemoryStore) size() (codes, counters int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes), len(m.counters)
}

// sweep drops expired codes and finished windows. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	m.nextSweep = now.Add(sweepInterval)
	for k, p := range m.codes {
		if !now.Before(p.expires) {
			delete(m.codes, k)
		}
	}
	for k, c := range m.counters {
		if !now.Before(c.reset) {
			delete(m.counters, k)
		}
	}
}
