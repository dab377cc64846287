// File: internal/server/limits.go
package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleLimiterAge is how long an idle client entry survives before the next
// access sweeps it out.
const staleLimiterAge = 10 * time.Minute

// clientLimiters hands out one token bucket per client IP. A login
// automator is an abuse magnet, so the front door throttles before any
// browser resources are committed.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(limit float64, burst int) *clientLimiters {
	return &clientLimiters{
		limit:     rate.Limit(limit),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client may proceed, consuming one token.
func (c *clientLimiters) Allow(clientIP string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastSweep) > staleLimiterAge {
		for ip, cl := range c.clients {
			if now.Sub(cl.lastSeen) > staleLimiterAge {
				delete(c.clients, ip)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.clients[clientIP]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[clientIP] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// clientIP extracts the caller's address, trusting X-Forwarded-For when the
// service runs behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
