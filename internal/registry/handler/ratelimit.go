package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleEviction  = 10 * time.Minute
)

// clientLimiter hands out one token bucket per client address and evicts
// buckets idle past the eviction window.
type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps, burst int) *clientLimiter {
	cl := &clientLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go cl.sweep()
	return cl
}

func (cl *clientLimiter) allow(addr string) bool {
	cl.mu.Lock()
	b, ok := cl.buckets[addr]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(cl.rps, cl.burst)}
		cl.buckets[addr] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()

	return b.tokens.Allow()
}

func (cl *clientLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		for addr, b := range cl.buckets {
			if time.Since(b.lastSeen) > limiterIdleEviction {
				delete(cl.buckets, addr)
			}
		}
		cl.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware enforcing a per-client token bucket.
// rps is the steady-state requests per second and burst the bucket size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	cl := newClientLimiter(rps, burst)
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
