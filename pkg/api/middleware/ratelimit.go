// Package middleware holds HTTP middleware specific to the propagation
// surface. Generic concerns (request IDs, real IP, recovery) come from chi.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
)

// KeyedLimiter applies a token-bucket limit per string key.
//
// Each key gets its own limiter allowing `requests` events per `window`,
// with a burst of the full allowance. Idle entries are swept after not
// being touched for two windows.
type KeyedLimiter struct {
	mu       sync.Mutex
	entries  map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleFor  time.Duration
	lastScan time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing requests per window for each
// key. A non-positive request count disables limiting (Allow always true).
func NewKeyedLimiter(requests int, window time.Duration) *KeyedLimiter {
	if requests <= 0 || window <= 0 {
		return &KeyedLimiter{burst: -1}
	}
	return &KeyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idleFor: 2 * window,
	}
}

// Allow reports whether an event for key may proceed now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l.burst < 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweepLocked(now)

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweepLocked drops entries idle for longer than idleFor. Scanning is
// bounded to once per window to keep Allow cheap.
func (l *KeyedLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastScan) < l.idleFor/2 {
		return
	}
	l.lastScan = now
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleFor {
			delete(l.entries, k)
		}
	}
}

// RateLimit wraps a handler with a keyed limiter. keyFn derives the limiter
// key from the request; exceeding the limit yields 429 with a JSON error
// body.
func RateLimit(l *KeyedLimiter, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if !l.Allow(key) {
				logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
