// Package ratelimit implements per-client sliding-window admission control.
//
// State lives only in process memory: restarting the service resets every
// window. The limiter is best-effort admission control, not accounting.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most maxRequests calls per client within any trailing
// window. Old timestamps are pruned lazily on each call; there is no
// background sweep.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a limiter. Non-positive arguments are clamped to one request and
// one second respectively.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		clients:     make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxRequests returns the per-window budget.
func (l *Limiter) MaxRequests() int { return l.maxRequests }

// Window returns the trailing window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records an admission for clientID and reports true if the client is
// still within budget. Denied calls are not recorded.
func (l *Limiter) Allow(clientID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.prune(clientID, now)
	if len(stamps) >= l.maxRequests {
		return false
	}
	l.clients[clientID] = append(stamps, now)
	return true
}

// Remaining reports how many more calls clientID may make right now. It does
// not modify limiter state.
func (l *Limiter) Remaining(clientID string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	active := 0
	for _, ts := range l.clients[clientID] {
		if now.Sub(ts) < l.window {
			active++
		}
	}
	if remaining := l.maxRequests - active; remaining > 0 {
		return remaining
	}
	return 0
}

// RetryAfter reports how long until clientID regains at least one slot. It is
// zero when the client is under budget.
func (l *Limiter) RetryAfter(clientID string) time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var active []time.Time
	for _, ts := range l.clients[clientID] {
		if now.Sub(ts) < l.window {
			active = append(active, ts)
		}
	}
	if len(active) < l.maxRequests {
		return 0
	}
	// timestamps are appended in order, so the oldest active one frees first
	return l.window - now.Sub(active[0])
}

// prune drops expired timestamps for clientID and returns what is left. The
// caller must hold l.mu.
func (l *Limiter) prune(clientID string, now time.Time) []time.Time {
	stamps := l.clients[clientID]
	keep := 0
	for keep < len(stamps) && now.Sub(stamps[keep]) >= l.window {
		keep++
	}
	if keep == len(stamps) {
		delete(l.clients, clientID)
		return nil
	}
	if keep > 0 {
		stamps = append(stamps[:0], stamps[keep:]...)
		l.clients[clientID] = stamps
	}
	return stamps
}
