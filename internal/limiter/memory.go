package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Memory is an in-process rolling-window limiter. Each client keeps the
// admission times of its requests from the last window, so at most limit
// requests are admitted in any window-long interval. Entries idle for longer
// than the idle TTL are dropped by Sweep.
type Memory struct {
	window  time.Duration
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	mu       sync.Mutex
	stamps   []int64 // admission times in unix nanos, oldest first, from head on
	head     int
	lastSeen int64
	evicted  bool
}

func (e *entry) live() int { return len(e.stamps) - e.head }

// expire drops admissions older than the window. An admission at t counts
// in [t, t+window).
func (e *entry) expire(now, window int64) {
	for e.head < len(e.stamps) && e.stamps[e.head]+window <= now {
		e.head++
	}
	if e.head == len(e.stamps) {
		e.stamps, e.head = e.stamps[:0], 0
		return
	}
	if e.head > 0 && e.head >= len(e.stamps)/2 {
		n := copy(e.stamps, e.stamps[e.head:])
		e.stamps, e.head = e.stamps[:n], 0
	}
}

// Option configures Memory.
type Option func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory constructs a limiter with the given window. idleTTL is raised to
// window when smaller, so an evicted entry never held a live admission.
func NewMemory(window, idleTTL time.Duration, opts ...Option) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	if idleTTL < window {
		idleTTL = window
	}
	m := &Memory{
		window:  window,
		idleTTL: idleTTL,
		now:     time.Now,
		entries: make(map[uuid.UUID]*entry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Allow implements RateLimiter. A changed limit applies to the admissions
// already in the window.
func (m *Memory) Allow(clientID uuid.UUID, limit int) Decision {
	if limit < 1 {
		limit = 1
	}
	now := m.now().UnixNano()
	window := m.window.Nanoseconds()

	e := m.get(clientID)
	e.mu.Lock()
	for e.evicted {
		e.mu.Unlock()
		e = m.get(clientID)
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	e.lastSeen = now
	e.expire(now, window)

	n := e.live()
	if n < limit {
		e.stamps = append(e.stamps, now)
		return Decision{Allowed: true, Limit: limit, Remaining: limit - n - 1}
	}

	// n-limit+1 admissions must age out before one more fits.
	wait := time.Duration(e.stamps[e.head+n-limit] + window - now)
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return Decision{Allowed: false, Limit: limit, RetryAfter: wait}
}

func (m *Memory) get(clientID uuid.UUID) *entry {
	m.mu.RLock()
	e, ok := m.entries[clientID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[clientID]; ok {
		return e
	}
	e = &entry{}
	m.entries[clientID] = e
	return e
}

// Sweep drops entries idle longer than the idle TTL and returns how many were removed.
func (m *Memory) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL).UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		e.mu.Lock()
		if e.lastSeen < cutoff {
			e.evicted = true
			delete(m.entries, id)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Run sweeps idle entries until ctx is done.
func (m *Memory) Run(ctx context.Context) {
	every := m.idleTTL / 2
	if every < time.Second {
		every = time.Second
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
