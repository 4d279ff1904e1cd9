package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// Config defines client-side throttling for one profile.
// RequestsPerSecond <= 0 disables throttling; server-driven cooldowns still apply.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter paces requests for one key and carries a cooldown set from a
// server Retry-After hint.
type Limiter struct {
	bucket *xrate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	limit := xrate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = xrate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{bucket: xrate.NewLimiter(limit, burst)}
}

// Allow reports whether a request may be sent right now without waiting.
func (l *Limiter) Allow() bool {
	if l.cooldown(time.Now()) > 0 {
		return false
	}
	return l.bucket.Allow()
}

// Block holds every caller of this limiter until the given time.
// An earlier deadline never shortens an existing cooldown.
func (l *Limiter) Block(until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.blockedUntil) {
		l.blockedUntil = until
	}
}

func (l *Limiter) cooldown(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockedUntil.Sub(now)
}

// Wait blocks until the cooldown has passed and a token is available, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if d := l.cooldown(time.Now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.bucket.Wait(ctx)
}

// Manager holds per-key limiters.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait ensures rate limit compliance for a given key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}

// Block applies a cooldown to a given key.
func (m *Manager) Block(key string, until time.Time) {
	m.GetLimiter(key).Block(until)
}
