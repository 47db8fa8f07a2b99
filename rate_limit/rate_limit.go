package rateLimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"slipguard/metrics"
)

// Limiter is a per-key sliding window counter. Each key keeps the timestamps
// of its accepted calls inside the window.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string][]time.Time
	clockNow func() time.Time
	metrics  *metrics.CoreMetrics
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.clockNow = now }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{windows: make(map[string][]time.Time), clockNow: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// IsRateLimited reports whether key already made limit calls within the
// trailing window. A call that is not limited is recorded.
func (l *Limiter) IsRateLimited(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	recent := trim(l.windows[key], now, window)
	if len(recent) >= limit {
		l.windows[key] = recent
		return true
	}
	l.windows[key] = append(recent, now)
	return false
}

// Prune drops keys with no calls inside window.
func (l *Limiter) Prune(window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	for key, stamps := range l.windows {
		if recent := trim(stamps, now, window); len(recent) == 0 {
			delete(l.windows, key)
		} else {
			l.windows[key] = recent
		}
	}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// trim keeps the timestamps newer than now-window. Stamps are in call order.
func trim(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= window {
		i++
	}
	return stamps[i:]
}

// Middleware rejects requests from a client once it exceeds limit requests
// per window on the scope.
func (l *Limiter) Middleware(scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if l.IsRateLimited(scope+"|"+ClientID(req), limit, window) {
				l.metrics.ObserveRateLimited(scope)
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// ClientID identifies the caller by proxy headers, then by remote address.
func ClientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
