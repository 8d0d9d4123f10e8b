package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter is a per-client sliding-window rate limiter for write endpoints.
// State lives in memory; each (bucket, client ip) pair keeps the timestamps
// of its recent requests and prunes them as the window slides.
type Limiter struct {
	mu     sync.Mutex
	state  map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a limiter allowing limit requests per window per client and
// bucket. A limit of zero or less disables limiting.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		state:  make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one request from ip in bucket and reports whether it fits in
// the window.
func (l *Limiter) Allow(bucket, ip string) bool {
	if l.limit <= 0 {
		return true
	}
	key := bucket + "|" + ip
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.state[key][:0]
	for _, ts := range l.state[key] {
		if now.Sub(ts) < l.window {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= l.limit {
		l.state[key] = recent
		return false
	}
	l.state[key] = append(recent, now)
	return true
}

// ClientIP extracts the caller's address, preferring the first entry of
// X-Forwarded-For. Only trust that header behind a proxy you control.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
