package server

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 3 * time.Minute
	limiterIdleTimeout     = 5 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per client IP token bucket.
type RateLimiter struct {
	mu             sync.Mutex
	visitors       map[string]*visitor
	rate           rate.Limit
	burst          int
	trustedProxies int
}

// NewRateLimiter creates a limiter allowing perSecond requests per IP with
// the given burst. trustedProxies is the number of proxies in front of the
// service that append to X-Forwarded-For; zero keys on the socket address.
func NewRateLimiter(perSecond float64, burst, trustedProxies int) *RateLimiter {
	return &RateLimiter{
		visitors:       make(map[string]*visitor),
		rate:           rate.Limit(perSecond),
		burst:          burst,
		trustedProxies: max(trustedProxies, 0),
	}
}

// Allow reports whether ip may make another request now.
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

// Visitors returns the number of tracked IPs.
func (rl *RateLimiter) Visitors() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Run drops idle visitors until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.cleanup(time.Now().Add(-limiterIdleTimeout)); n > 0 {
				log.LogDebugWithFields("ratelimit", "Removed idle visitors", map[string]any{
					"removed": n,
				})
			}
		}
	}
}

func (rl *RateLimiter) cleanup(idleBefore time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(idleBefore) {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) retryAfter() int {
	if rl.rate <= 0 {
		return 1
	}
	return max(int(math.Ceil(1/float64(rl.rate))), 1)
}

// Middleware answers 429 with a Retry-After header once a client exceeds its
// budget.
func (rl *RateLimiter) Middleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, rl.trustedProxies)
			if !rl.Allow(ip) {
				log.LogWarnWithFields("ratelimit", "Rate limit exceeded", map[string]any{
					"ip":   ip,
					"path": r.URL.Path,
				})
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
				jsonwriter.WriteTooManyRequests(w, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address seen by the outermost trusted proxy. Each
// trusted proxy appends one X-Forwarded-For entry, so that address sits
// trustedProxies entries from the end; anything left of it came from the
// client. A header shorter than expected falls back to the socket address.
func clientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		hops := forwardedHops(r.Header.Values("X-Forwarded-For"))
		if len(hops) >= trustedProxies {
			return hops[len(hops)-trustedProxies]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}
