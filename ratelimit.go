package tourguard

import (
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding log: a key may act limit times within
// any window. Per-IP request limits live in the defense chain; this one
// throttles per-account actions that must fail silently, like reset emails.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	window  time.Duration
	limit   int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter and its cleanup goroutine; Close stops it.
// A nil now uses time.Now.
func NewRateLimiter(window time.Duration, limit int, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	rl := &RateLimiter{
		entries: make(map[string][]time.Time),
		window:  window,
		limit:   limit,
		now:     now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

// Allow records an attempt for key and reports whether it is within budget.
// Rejected attempts are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.recentLocked(key, now)
	if len(recent) >= r.limit {
		r.entries[key] = recent
		return false
	}
	r.entries[key] = append(recent, now)
	return true
}

// Count returns how many attempts key has inside the current window.
func (r *RateLimiter) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recentLocked(key, r.now()))
}

// Reset forgets key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

func (r *RateLimiter) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RateLimiter) recentLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	var recent []time.Time
	for _, t := range r.entries[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (r *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup drops keys whose attempts have all left the window.
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key := range r.entries {
		if recent := r.recentLocked(key, now); len(recent) == 0 {
			delete(r.entries, key)
		} else {
			r.entries[key] = recent
		}
	}
}

// EmailRateLimiter throttles reset requests per normalized address.
type EmailRateLimiter struct {
	limiter *RateLimiter
}

// NewEmailRateLimiter allows requestsPerHour per address, 5 when unset.
func NewEmailRateLimiter(requestsPerHour int, now func() time.Time) *EmailRateLimiter {
	if requestsPerHour <= 0 {
		requestsPerHour = 5
	}
	return &EmailRateLimiter{limiter: NewRateLimiter(time.Hour, requestsPerHour, now)}
}

func (r *EmailRateLimiter) Allow(email string) bool {
	return r.limiter.Allow("email:" + NormalizeEmail(email))
}

func (r *EmailRateLimiter) Close() {
	r.limiter.Close()
}
