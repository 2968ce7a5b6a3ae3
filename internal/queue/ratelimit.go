package queue

import (
	"sync"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/conversation"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RateLimitStatus reports the admission state of a (user, scope) pair.
// ResetAt is when the oldest admission in the window expires.
type RateLimitStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type windowKey struct {
	user  string
	scope string
}

// RateLimiter admits at most max jobs per (user, scope) in a sliding window.
// Every admission is logged with its timestamp; entries older than the
// window are evicted on access.
type RateLimiter struct {
	max    int
	window time.Duration
	exempt map[string]bool
	clock  Clock

	mu      sync.Mutex
	windows map[windowKey][]time.Time // admissions, oldest first
}

// NewRateLimiter creates a limiter. Users in exempt bypass it entirely.
func NewRateLimiter(maxRequests int, window time.Duration, exempt []string, clock Clock) *RateLimiter {
	if clock == nil {
		clock = realClock{}
	}
	ex := make(map[string]bool, len(exempt))
	for _, id := range exempt {
		ex[id] = true
	}
	return &RateLimiter{
		max:     maxRequests,
		window:  window,
		exempt:  ex,
		clock:   clock,
		windows: make(map[windowKey][]time.Time),
	}
}

// ScopeKey reduces a conversation scope to the rate-limit scope: the guild,
// or the channel for direct messages.
func ScopeKey(s conversation.Scope) string {
	if s.GuildID != "" {
		return s.GuildID
	}
	if s.ChannelID != "" {
		return "channel:" + s.ChannelID
	}
	return ""
}

// Check reports the status without admitting anything.
func (l *RateLimiter) Check(userID, scope string) RateLimitStatus {
	now := l.clock.Now()
	if l.exempt[userID] {
		return RateLimitStatus{Allowed: true, Remaining: l.max, ResetAt: now}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status(windowKey{userID, scope}, now)
}

// Admit records one admission if the window has room. The check and the
// increment happen under one lock.
func (l *RateLimiter) Admit(userID, scope string) (RateLimitStatus, bool) {
	now := l.clock.Now()
	if l.exempt[userID] {
		return RateLimitStatus{Allowed: true, Remaining: l.max, ResetAt: now}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := windowKey{userID, scope}
	st := l.status(key, now)
	if !st.Allowed {
		return st, false
	}
	l.windows[key] = append(l.windows[key], now)
	return l.status(key, now), true
}

// Sweep drops every expired window.
func (l *RateLimiter) Sweep() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.windows {
		l.evict(key, now)
	}
}

// Len returns the number of live windows.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// status must be called with l.mu held.
func (l *RateLimiter) status(key windowKey, now time.Time) RateLimitStatus {
	entries := l.evict(key, now)
	remaining := l.max - len(entries)
	if remaining < 0 {
		remaining = 0
	}
	reset := now
	if len(entries) > 0 {
		reset = entries[0].Add(l.window)
	}
	return RateLimitStatus{Allowed: remaining > 0, Remaining: remaining, ResetAt: reset}
}

// evict must be called with l.mu held.
func (l *RateLimiter) evict(key windowKey, now time.Time) []time.Time {
	entries := l.windows[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	entries = entries[i:]
	if len(entries) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = entries
	return entries
}
