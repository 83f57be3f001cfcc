package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateWindow = time.Minute

// Limiter counts requests per key in fixed one-minute windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter shares counters across instances through INCR/EXPIRE.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: perMinute, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	window := now.Truncate(rateWindow)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window.Unix()/60)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rateWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	if incr.Val() > int64(l.limit) {
		return false, window.Add(rateWindow).Sub(now), nil
	}
	return true, 0, nil
}

// MemoryLimiter keeps counters in process.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Time
	counts map[string]int
	now    func() time.Time
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{limit: perMinute, counts: make(map[string]int), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	window := now.Truncate(rateWindow)
	if !window.Equal(l.window) {
		l.window = window
		l.counts = make(map[string]int)
	}

	l.counts[key]++
	if l.counts[key] > l.limit {
		return false, window.Add(rateWindow).Sub(now), nil
	}
	return true, 0, nil
}

// fallbackLimiter uses the primary limiter and drops to the secondary one
// while the primary errors.
type fallbackLimiter struct {
	primary   Limiter
	secondary Limiter
	logger    *zap.Logger
}

func (f *fallbackLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	allowed, retry, err := f.primary.Allow(ctx, key)
	if err == nil {
		return allowed, retry, nil
	}
	f.logger.Warn("rate limiter backend failed, using in-memory counters", zap.Error(err))
	return f.secondary.Allow(ctx, key)
}

// NewLimiter prefers Redis when a client is available.
func NewLimiter(client *redis.Client, perMinute int, logger *zap.Logger) Limiter {
	memory := NewMemoryLimiter(perMinute)
	if client == nil {
		return memory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackLimiter{primary: NewRedisLimiter(client, perMinute), secondary: memory, logger: logger}
}

// RateLimit rejects clients over the limit with 429. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"details": fmt.Sprintf("retry in %d seconds", seconds),
			})
			return
		}
		c.Next()
	}
}
