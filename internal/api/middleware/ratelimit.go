package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit describes a per-IP request budget over a window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Default limits for the API surface.
var (
	// LimitChallenge applies to challenge issuance.
	LimitChallenge = RateLimit{Requests: 10, Window: time.Minute}

	// LimitVerify applies to challenge verification.
	LimitVerify = RateLimit{Requests: 5, Window: time.Minute}

	// LimitLogout applies to logout.
	LimitLogout = RateLimit{Requests: 10, Window: time.Minute}

	// LimitAPI applies to the authenticated API.
	LimitAPI = RateLimit{Requests: 300, Window: 15 * time.Minute}

	// LimitFiles applies to the file endpoints.
	LimitFiles = RateLimit{Requests: 100, Window: 15 * time.Minute}
)

// ipLimiter tracks a token bucket per client IP. Buckets refill at
// Requests/Window and allow a full window's worth of burst, which bounds
// any IP to the configured budget over the window. Idle entries are evicted
// by a background sweep so the map cannot grow without bound.
type ipLimiter struct {
	limit RateLimit

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit RateLimit) *ipLimiter {
	l := &ipLimiter{
		limit:   limit,
		buckets: make(map[string]*ipBucket),
	}
	go l.sweep()
	return l
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[ip]
	if !ok {
		perSecond := rate.Limit(float64(l.limit.Requests) / l.limit.Window.Seconds())
		bucket = &ipBucket{limiter: rate.NewLimiter(perSecond, l.limit.Requests)}
		l.buckets[ip] = bucket
	}
	bucket.lastSeen = time.Now()
	return bucket.limiter.Allow()
}

func (l *ipLimiter) sweep() {
	ticker := time.NewTicker(l.limit.Window)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.limit.Window)
		l.mu.Lock()
		for ip, bucket := range l.buckets {
			if bucket.lastSeen.Before(cutoff) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

// clientIP returns the request's client address without the port. Use
// behind chi's RealIP middleware so proxied requests carry the right
// address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter returns a middleware enforcing the given per-IP limit.
// Exceeding the budget yields 429 with the standard error envelope.
func RateLimiter(limit RateLimit) func(http.Handler) http.Handler {
	limiter := newIPLimiter(limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"error":"Too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
