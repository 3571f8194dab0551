package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// record is the per-client window state.
type record struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps window state in a bounded LRU cache. When the cache is
// full the least recently seen client is dropped; a dropped client simply
// starts a fresh window on its next request.
type MemoryLimiter struct {
	mu        sync.Mutex
	records   *simplelru.LRU[string, *record]
	max       int
	window    time.Duration
	sweep     time.Duration
	now       func() time.Time
	log       *zap.Logger
	evictions uint64
}

// MemoryOption configures a MemoryLimiter
type MemoryOption func(*MemoryLimiter)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// WithSweepInterval sets how often Start drops expired windows.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryLimiter) { m.sweep = d }
}

// WithLogger attaches a logger for sweep diagnostics.
func WithLogger(log *zap.Logger) MemoryOption {
	return func(m *MemoryLimiter) { m.log = log }
}

// NewMemoryLimiter creates a limiter allowing max requests per window for up to
// maxClients distinct clients.
func NewMemoryLimiter(max int, window time.Duration, maxClients int, opts ...MemoryOption) (*MemoryLimiter, error) {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	m := &MemoryLimiter{
		max:    max,
		window: window,
		sweep:  time.Minute,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	records, err := simplelru.NewLRU[string, *record](maxClients, func(string, *record) {
		m.evictions++
	})
	if err != nil {
		return nil, fmt.Errorf("create rate limit cache: %w", err)
	}
	m.records = records
	return m, nil
}

// Check applies the fixed-window rule for clientID. The read-check-increment
// sequence runs under one lock, so concurrent requests from the same client
// cannot undercount.
func (m *MemoryLimiter) Check(_ context.Context, clientID string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records.Get(clientID)
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(m.window)}
		m.records.Add(clientID, rec)
		return m.allow(rec), nil
	}

	if rec.count >= m.max {
		return Decision{
			Allowed:    false,
			Limit:      m.max,
			Remaining:  0,
			ResetAt:    rec.resetAt,
			RetryAfter: retryAfterSeconds(rec.resetAt, now),
		}, nil
	}

	rec.count++
	return m.allow(rec), nil
}

func (m *MemoryLimiter) allow(rec *record) Decision {
	return Decision{
		Allowed:   true,
		Limit:     m.max,
		Remaining: m.max - rec.count,
		ResetAt:   rec.resetAt,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (m *MemoryLimiter) Start(ctx context.Context) {
	if m.sweep <= 0 {
		return
	}
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debug("rate_limit_sweep",
					zap.Int("removed", n),
					zap.Int("tracked_clients", m.Len()),
				)
			}
		}
	}
}

// Sweep removes every client whose window has elapsed and returns how many were removed.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, key := range m.records.Keys() {
		rec, ok := m.records.Peek(key)
		if ok && now.After(rec.resetAt) {
			m.records.Remove(key)
			removed++
		}
	}
	// Remove counts as an eviction in simplelru; sweeps are not capacity evictions.
	m.evictions -= uint64(removed)
	return removed
}

// Len returns the number of tracked clients.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.Len()
}

// Evictions returns how many clients were dropped because the cache was full.
func (m *MemoryLimiter) Evictions() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

// Close drops all state.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records.Purge()
	m.evictions = 0
	return nil
}
