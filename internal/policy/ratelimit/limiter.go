// Package ratelimit implements per-client token buckets for inbound requests.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/shotapi/internal/metrics"
)

// Config holds rate limiter configuration. MaxRequests tokens refill evenly over Window.
type Config struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages per-client rate limits.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// New creates a new Limiter. A non-positive window or request budget disables limiting.
func New(cfg Config) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Inf,
		burst:   1,
		now:     time.Now,
	}
	if cfg.Window > 0 && cfg.MaxRequests > 0 {
		l.limit = rate.Limit(float64(cfg.MaxRequests) / cfg.Window.Seconds())
		l.burst = cfg.MaxRequests
	}
	return l
}

// Allow consumes a token for client and reports whether the request may proceed.
func (l *Limiter) Allow(client string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// RetryAfter is how long a client that was just refused should wait for one token.
func (l *Limiter) RetryAfter() time.Duration {
	if l.limit == rate.Inf || l.limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Sweep forgets clients idle for longer than idle and returns how many were dropped.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware refuses requests over budget by calling onLimited instead of next.
func (l *Limiter) Middleware(onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(ClientKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.ObserveRateLimited()
			if d := l.RetryAfter(); d > 0 {
				secs := int(d.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			onLimited(w, r)
		})
	}
}

// ClientKey identifies the caller by remote IP. chi's RealIP middleware, when installed upstream,
// has already rewritten RemoteAddr from forwarding headers.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
