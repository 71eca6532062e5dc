// Package queue provides per-schedule admission control for timer firings.
// A schedule registered with a rate limit drops firings that exceed its
// token bucket instead of enqueuing them, guarding the pending queue against
// unbounded growth when the period is pathologically short relative to how
// long invocations take to settle.
package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/evgenylyozin/safe-interval/id"
)

// Config defines a schedule's firing admission limits.
type Config struct {
	// Rate is the maximum sustained firings per second that may be
	// enqueued. Zero disables rate limiting.
	Rate float64

	// Burst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if Rate is set but Burst is zero.
	Burst int
}

// Manager controls per-schedule firing admission. It is safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates an empty Manager. Schedules without a configured limit
// are always admitted.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*rate.Limiter)}
}

// Configure installs the admission limits for a schedule. A zero Rate
// removes any existing limiter.
func (m *Manager) Configure(sid id.ScheduleID, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sid.String()
	if cfg.Rate <= 0 {
		delete(m.limiters, key)
		return
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	m.limiters[key] = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
}

// Allow reports whether a firing for the schedule may be enqueued now.
func (m *Manager) Allow(sid id.ScheduleID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, ok := m.limiters[sid.String()]
	if !ok {
		return true
	}
	return lim.Allow()
}

// Remove drops the schedule's limiter.
func (m *Manager) Remove(sid id.ScheduleID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.limiters, sid.String())
}
