// Package middleware holds the HTTP middleware shared by the server
// routes. Currently a per-client token bucket guarding the analyze
// endpoint, since each accepted request fans out into a chain of
// external text-generation calls.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. Buckets refill continuously
// at the configured per-minute rate and idle clients are evicted.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	perMin  int
	ticker  *time.Ticker
	done    chan struct{}
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing perMin requests per client
// per minute. perMin <= 0 disables limiting.
func NewRateLimiter(perMin int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*bucket),
		perMin:  perMin,
		ticker:  time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go rl.evictIdle()
	return rl
}

// Middleware wraps a handler with the rate check. Rejected requests get
// 429 with a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next(w, r)
	}
}

// clientKey identifies a client by remote host, ignoring the ephemeral
// port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(key string) bool {
	if rl.perMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.clients[key]
	if !ok {
		rl.clients[key] = &bucket{tokens: float64(rl.perMin) - 1, lastRefill: now}
		return true
	}

	refill := now.Sub(b.lastRefill).Minutes() * float64(rl.perMin)
	if refill > 0 {
		b.tokens += refill
		if b.tokens > float64(rl.perMin) {
			b.tokens = float64(rl.perMin)
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// evictIdle drops buckets untouched for ten minutes.
func (rl *RateLimiter) evictIdle() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for key, b := range rl.clients {
				if b.lastRefill.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the eviction loop.
func (rl *RateLimiter) Stop() {
	rl.ticker.Stop()
	close(rl.done)
}
