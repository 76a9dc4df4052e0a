package chi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// unmatchedRoute labels rejections of requests no route would serve.
const unmatchedRoute = "unmatched"

// exemptPaths bypass rate limiting (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket.
type RateLimiter struct {
	limit          rate.Limit
	burst          int
	trustForwarded bool
	now            func() time.Time
	rejected       *prometheus.CounterVec

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst
// per client IP. trustForwarded takes the client IP from X-Forwarded-For / X-Real-IP.
func NewRateLimiter(rps float64, burst int, trustForwarded bool) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:          rate.Limit(rps),
		burst:          burst,
		trustForwarded: trustForwarded,
		now:            time.Now,
		visitors:       make(map[string]*visitor),
	}
}

// WithRejectedCounter counts rejections by route pattern. The vec takes one label.
func (l *RateLimiter) WithRejectedCounter(c *prometheus.CounterVec) *RateLimiter {
	l.rejected = c
	return l
}

// Allow reports whether a request from ip may proceed now.
func (l *RateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Prune drops visitors idle for longer than idle and returns how many were removed.
func (l *RateLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run prunes idle visitors every interval until ctx is done.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(interval)
		}
	}
}

// Middleware rejects requests over the limit with 429 rate_limited.
// A nil limiter or a non-positive rate disables limiting.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || l.limit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if !l.Allow(l.clientIP(r)) {
				if l.rejected != nil {
					l.rejected.WithLabelValues(routeLabel(r)).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too Many Requests, slow down.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// routeLabel resolves the chi pattern the request would be routed to. The limiter runs
// before routing, so the pattern is looked up on the mux rather than read from the context.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	if rctx.Routes == nil {
		return unmatchedRoute
	}
	if p := rctx.Routes.Find(chi.NewRouteContext(), r.Method, r.URL.Path); p != "" {
		return p
	}
	return unmatchedRoute
}

func (l *RateLimiter) retryAfterSeconds() int {
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		return 1
	}
	return secs
}

func (l *RateLimiter) clientIP(r *http.Request) string {
	if l.trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
