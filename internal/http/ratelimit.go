package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voice-order-service/internal/auth"
)

const (
	limiterIdle  = 30 * time.Minute
	limiterSweep = 5 * time.Minute
)

type userLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// userLimiters hands out one token bucket per authenticated user. Idle
// buckets are dropped on a later call.
type userLimiters struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

func newUserLimiters(rps float64, burst int) *userLimiters {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiters{
		rps:       rate.Limit(rps),
		burst:     burst,
		limiters:  make(map[string]*userLimiter),
		lastSweep: time.Now(),
	}
}

func (l *userLimiters) allow(userID string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterSweep {
		for id, ul := range l.limiters {
			if now.Sub(ul.last) > limiterIdle {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[userID] = ul
	}
	ul.last = now
	return ul.limiter.AllowN(now, 1)
}

// limit rejects requests over the caller's budget with 429. It runs after
// the auth middleware. A nil limiter lets everything through.
func (l *userLimiters) limit(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(auth.UserIDFromContext(r.Context())) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many test call requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
