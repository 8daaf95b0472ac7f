package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket. Clients are keyed by
// RemoteAddr, so TrustedRealIP must run first behind a proxy.
type RateLimiter struct {
	perMinute int
	now       func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client with a burst of the
// same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		now:       time.Now,
		visitors:  make(map[string]*visitor),
		lastPrune: time.Now(),
	}
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > 2*time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 2*time.Minute {
				delete(rl.visitors, k)
			}
		}
		rl.lastPrune = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects clients over their budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute/time.Duration(rl.perMinute)/time.Second)+1))
			deny(w, http.StatusTooManyRequests, "RATE001", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
