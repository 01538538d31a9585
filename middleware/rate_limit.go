package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// triggerRecord tracks manual pipeline triggers from one client IP.
type triggerRecord struct {
	count   int
	firstAt time.Time
}

// RateLimiter caps how often a client may trigger expensive operations.
// A monitoring run hits the provider for the whole universe, so manual
// triggers are limited per IP within a sliding window.
type RateLimiter struct {
	mu           sync.Mutex
	records      map[string]*triggerRecord
	maxTriggers  int
	windowPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxTriggers int, windowPeriod time.Duration) *RateLimiter {
	rl := &RateLimiter{
		records:      make(map[string]*triggerRecord),
		maxTriggers:  maxTriggers,
		windowPeriod: windowPeriod,
	}
	go rl.startCleanup()
	return rl
}

// startCleanup periodically drops expired entries.
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, rec := range rl.records {
		if now.Sub(rec.firstAt) > rl.windowPeriod {
			delete(rl.records, ip)
		}
	}
}

// Allow records a trigger for the IP and reports whether it is within the
// budget. The second return is the time until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rec, exists := rl.records[ip]

	if !exists || now.Sub(rec.firstAt) > rl.windowPeriod {
		rl.records[ip] = &triggerRecord{count: 1, firstAt: now}
		return true, 0
	}

	if rec.count >= rl.maxTriggers {
		return false, rl.windowPeriod - now.Sub(rec.firstAt)
	}

	rec.count++
	return true, 0
}

// TriggerRateLimit limits POST triggers per client IP.
func TriggerRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, retryAfter := rl.Allow(ip)
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many runs triggered, try again later",
				"retry_after": int(retryAfter.Seconds()),
			})
			return
		}

		c.Next()
	}
}
