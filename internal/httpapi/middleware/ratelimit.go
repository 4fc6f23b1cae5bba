package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// limiter is a per-client token bucket. Buckets idle for longer than ttl are
// dropped on the next sweep.
type limiter struct {
	rate  float64 // tokens per second
	burst float64
	ttl   time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func newLimiter(rps float64, burst int, ttl time.Duration) *limiter {
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		rate:    rps,
		burst:   float64(burst),
		ttl:     ttl,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// take consumes one token for key. When none is left it returns how long
// until the next token.
func (l *limiter) take(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.last) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit limits each client (API key if sent, else remote IP) to
// reqPerMin requests per minute with the given burst. reqPerMin <= 0 disables it.
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(float64(reqPerMin)/60.0, burst, 10*time.Minute)
	return func(next http.Handler) http.Handler {
		return limitWith(l, next)
	}
}

func limitWith(l *limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.take(clientKey(r))
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			deny(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if k := readKey(r); k != "" {
		return "key:" + k
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return "ip:" + strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
