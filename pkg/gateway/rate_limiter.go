package gateway

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/logging"
)

// publishLimiter is a token bucket per client IP for publish requests.
type publishLimiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	rate      float64 // tokens per second
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// newPublishLimiter returns nil when ratePerMinute is not positive, which
// disables limiting.
func newPublishLimiter(ratePerMinute, burst int) *publishLimiter {
	if ratePerMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &publishLimiter{
		clients: make(map[string]*bucket),
		rate:    float64(ratePerMinute) / 60.0,
		burst:   burst,
		now:     time.Now,
	}
}

// allow takes one token from ip's bucket. When the bucket is empty it
// reports how long until the next token.
func (l *publishLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	b, ok := l.clients[ip]
	if !ok {
		l.clients[ip] = &bucket{tokens: float64(l.burst) - 1, lastCheck: now}
		return true, 0
	}

	b.tokens += now.Sub(b.lastCheck).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// sweepLocked drops buckets that have refilled completely; they behave the
// same as a missing entry.
func (l *publishLimiter) sweepLocked(now time.Time) {
	full := time.Duration(float64(l.burst) / l.rate * float64(time.Second))
	if now.Sub(l.lastSweep) < full {
		return
	}
	l.lastSweep = now
	for ip, b := range l.clients {
		if now.Sub(b.lastCheck) >= full {
			delete(l.clients, ip)
		}
	}
}

func (l *publishLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// rateLimitMiddleware answers 429 when a client publishes faster than the
// configured rate.
func (g *Gateway) rateLimitMiddleware(next http.Handler) http.Handler {
	if g.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := g.limiter.allow(ip)
		if !ok {
			retry := int(wait/time.Second) + 1
			g.logger.ComponentDebug(logging.ComponentPublisher, "publish rate limited",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded", "retry_after": retry})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's remote address without the port.
// middleware.RealIP has already applied X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
