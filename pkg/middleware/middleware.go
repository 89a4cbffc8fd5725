package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/daigou-api/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limits holds the request rates per endpoint group, in requests per second
type Limits struct {
	Orders rate.Limit
	Export rate.Limit
	Burst  int
}

// DefaultLimits allows a fast typist on the order form and an occasional export
var DefaultLimits = Limits{
	Orders: rate.Limit(120.0 / 60.0), // 120 requests per minute
	Export: rate.Limit(10.0 / 60.0),  // 10 requests per minute
	Burst:  5,
}

// RateLimiter throttles requests per client IP and route
type RateLimiter struct {
	limits   Limits
	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter(limits Limits) *RateLimiter {
	return &RateLimiter{
		limits:   limits,
		visitors: make(map[string]*visitor),
	}
}

func (rl *RateLimiter) getLimiter(path, clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := clientIP + ":" + path
	v, exists := rl.visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/export"):
			limit = rl.limits.Export
		case strings.HasPrefix(path, "/api/v1/orders"):
			limit = rl.limits.Orders
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, rl.limits.Burst),
			lastSeen: time.Now(),
		}
		rl.visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops visitors that have not been seen for maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(rl.visitors, key)
		}
	}
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.FullPath(), c.ClientIP())
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger logs every request with its status and latency
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("size", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("handled request")
	}
}
