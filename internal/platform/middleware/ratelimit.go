package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientIP returns the first X-Forwarded-For hop, falling back to RemoteAddr.
// The caller controls that header, so use it for logs only.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of the connection's peer address.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// proxiedIP returns the last X-Forwarded-For hop, the one appended by the
// proxy in front of us, falling back to RemoteAddr.
func proxiedIP(r *http.Request) string {
	fwd := r.Header.Values("X-Forwarded-For")
	if len(fwd) == 0 {
		return RemoteIP(r)
	}
	last := fwd[len(fwd)-1]
	if i := strings.LastIndex(last, ","); i >= 0 {
		last = last[i+1:]
	}
	if ip := strings.TrimSpace(last); ip != "" {
		return ip
	}
	return RemoteIP(r)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	// trustProxy keys on the last X-Forwarded-For hop instead of the peer.
	trustProxy bool
}

// NewRateLimiter allows perSecond sustained requests with the given burst.
// A non-positive perSecond disables limiting. Set trustProxy only when a
// reverse proxy that appends X-Forwarded-For fronts the service.
func NewRateLimiter(perSecond float64, burst int, trustProxy bool) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		visitors:   make(map[string]*visitor),
		rate:       limit,
		burst:      burst,
		idleTTL:    3 * time.Minute,
		trustProxy: trustProxy,
	}
}

// Run evicts idle visitors until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, ip)
		}
	}
}

// Allow reports whether ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// Middleware rejects over-limit callers with 429 and an empty body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := RemoteIP(r)
		if rl.trustProxy {
			key = proxiedIP(r)
		}
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
