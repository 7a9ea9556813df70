// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

const (
	visitorStaleAfter  = 10 * time.Minute
	visitorCleanupTick = 5 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting of the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxVisitors caps the number of tracked IPs; the least recently seen
	// are evicted on cleanup. Zero means 10000.
	MaxVisitors int
}

// Validate checks that the RateLimitConfig is valid and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return ledgererr.Errorf(ledgererr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return ledgererr.Errorf(ledgererr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)", c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return ledgererr.Errorf(ledgererr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

// ipLimiter is a token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	visitors map[string]*bucket
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	return &ipLimiter{cfg: cfg, visitors: make(map[string]*bucket)}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.visitors[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.visitors[ip] = b
	}
	b.lastSeen = now

	b.tokens = min(float64(l.cfg.Burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.cfg.RequestsPerSecond)
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// cleanup drops stale visitors and enforces MaxVisitors. It returns how
// many visitors were evicted by the cap.
func (l *ipLimiter) cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	type entry struct {
		ip       string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.visitors))
	for ip, b := range l.visitors {
		if now.Sub(b.lastSeen) > visitorStaleAfter {
			delete(l.visitors, ip)
			continue
		}
		entries = append(entries, entry{ip: ip, lastSeen: b.lastSeen})
	}

	if l.cfg.MaxVisitors <= 0 || len(entries) <= l.cfg.MaxVisitors {
		return 0
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.lastSeen.Compare(b.lastSeen) })
	evict := len(entries) - l.cfg.MaxVisitors
	for _, e := range entries[:evict] {
		delete(l.visitors, e.ip)
	}
	return evict
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// rateLimitMiddleware enforces per-IP limits. It is a pass-through when
// cfg.RequestsPerSecond is zero. done stops the cleanup goroutine.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := newIPLimiter(cfg)
	go func() {
		ticker := time.NewTicker(visitorCleanupTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.cleanup(time.Now()); n > 0 {
					slog.Warn("rate limiter visitor cap enforced", "evicted", n, "max_visitors", cfg.MaxVisitors)
				}
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !l.allow(ip, time.Now()) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
					slog.Warn("failed to write rate limit response", "error", err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
