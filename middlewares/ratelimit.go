package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the configuration for the rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterData holds one token bucket per client IP.
type rateLimiterData struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	config    RateLimiterConfig
	lastSweep time.Time
}

func (d *rateLimiterData) allow(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastSweep) > d.config.IdleTTL {
		for k, c := range d.clients {
			if now.Sub(c.lastSeen) > d.config.IdleTTL {
				delete(d.clients, k)
			}
		}
		d.lastSweep = now
	}

	c, ok := d.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(d.config.RequestsPerSecond), d.config.Burst)}
		d.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// NewRateLimiterMiddleware limits each client IP to the configured rate.
func NewRateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	data := &rateLimiterData{clients: map[string]*clientLimiter{}, config: config, lastSweep: time.Now()}

	return func(c *gin.Context) {
		if !data.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
