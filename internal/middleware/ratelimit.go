package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ringring-backend/internal/database"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/response"
)

// RateLimiter is a fixed-window limiter counted in Redis. While Redis is
// degraded it counts in process memory instead.
type RateLimiter struct {
	redis    *database.RedisClient
	requests int
	window   time.Duration
	prefix   string
	now      func() time.Time

	mu       sync.Mutex
	fallback map[string]*windowCount
}

type windowCount struct {
	count int
	start time.Time
}

// NewRateLimiter allows requests per window for each client. prefix
// separates the counters of different routes.
func NewRateLimiter(redisClient *database.RedisClient, prefix string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		requests: requests,
		window:   window,
		prefix:   prefix,
		now:      time.Now,
		fallback: make(map[string]*windowCount),
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := CurrentUserID(c); ok {
			identifier = "user:" + userID.String()
		}

		count, err := rl.countRedis(c.Request.Context(), identifier)
		if err != nil {
			count = rl.countMemory(identifier)
		}

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > rl.requests {
			logger.Warn("Rate limit exceeded",
				zap.String("limiter", rl.prefix),
				zap.String("client", identifier))
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) countRedis(ctx context.Context, identifier string) (int, error) {
	if rl.redis == nil {
		return 0, fmt.Errorf("no redis client")
	}

	window := rl.now().Unix() / int64(rl.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", rl.prefix, identifier, window)

	count, err := rl.redis.SafeIncr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		rl.redis.SafeExpire(ctx, key, rl.window)
	}
	return int(count), nil
}

func (rl *RateLimiter) countMemory(identifier string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.fallback[identifier]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &windowCount{start: now}
		rl.fallback[identifier] = w
	}
	w.count++

	if len(rl.fallback) > 10000 {
		for id, other := range rl.fallback {
			if now.Sub(other.start) >= rl.window {
				delete(rl.fallback, id)
			}
		}
	}
	return w.count
}
