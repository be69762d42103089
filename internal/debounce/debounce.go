package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum interval between two accepted fires.
const DefaultWindow = 2 * time.Second

// Guard rejects a fire request that arrives too soon after the last accepted
// one. Unlike a trailing-edge debouncer it accepts the first request
// immediately; duplicates inside the window are dropped with no side effect.
type Guard struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   time.Time
}

func New(window time.Duration) *Guard {
	return NewWithClock(window, time.Now)
}

// NewWithClock allows tests to control time.
func NewWithClock(window time.Duration, now func() time.Time) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{window: window, now: now}
}

// TryFire reports whether the caller may proceed. It returns true and records
// the fire time iff at least one window has elapsed since the last accepted
// fire (or none was accepted yet).
func (g *Guard) TryFire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	if !g.last.IsZero() && t.Sub(g.last) < g.window {
		return false
	}
	g.last = t
	return true
}

func (g *Guard) Window() time.Duration {
	return g.window
}

// Reset forgets the last accepted fire so the next TryFire succeeds.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.last = time.Time{}
	g.mu.Unlock()
}
