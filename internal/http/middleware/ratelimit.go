package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	limiterPruneEvery = 5 * time.Minute
	limiterIdleTTL    = 10 * time.Minute
)

// visitor tracks one caller's token bucket. Tokens refill continuously
// at the configured rate up to the burst ceiling.
type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// limiter applies a per-IP token bucket. The portal is a browser app,
// so the budget is generous; the limiter exists to blunt scripted
// booking floods, not to meter normal clicking.
type limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    int
}

func newLimiter(rate float64, burst int) *limiter {
	l := &limiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    burst,
	}
	go l.pruneLoop()
	return l
}

// allow spends one token for ip at instant now, refilling first.
func (l *limiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: float64(l.burst), lastSeen: now}
		l.visitors[ip] = v
	}

	v.tokens += now.Sub(v.lastSeen).Seconds() * l.rate
	if v.tokens > float64(l.burst) {
		v.tokens = float64(l.burst)
	}
	v.lastSeen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// pruneLoop evicts buckets idle past the TTL so one-off callers do not
// accumulate forever.
func (l *limiter) pruneLoop() {
	ticker := time.NewTicker(limiterPruneEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)
		l.mu.Lock()
		for ip, v := range l.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

// clientIP identifies the caller, preferring the X-Real-Ip header set
// by chi's RealIP middleware over the raw remote address.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects callers exceeding rate requests/sec (with the given
// burst) per IP, answering 429 with a Retry-After hint.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	l := newLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
