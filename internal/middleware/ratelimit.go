package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pgx-risk-engine/internal/domain"
)

// clientLimiter tracks the token bucket for one client IP.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit enforces a per-client token bucket. Disabled config yields
// a pass-through handler. Idle client entries are reaped in the
// background so the map does not grow with every address ever seen.
func RateLimit(cfg domain.RateLimitConfig, logger *logrus.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)

	go func() {
		for {
			time.Sleep(10 * time.Minute)
			mu.Lock()
			for ip, cl := range clients {
				if time.Since(cl.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			logger.WithFields(logrus.Fields{
				"client_ip":      ip,
				"correlation_id": c.GetString("correlation_id"),
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrCodeRateLimit,
				"rate limit exceeded",
				"slow down and retry",
				c.GetString("correlation_id"),
			))
			return
		}

		c.Next()
	}
}
