// Package ratelimit implements fixed-window request limits backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// Rule is a named limit of Max hits per Window.
type Rule struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of a single hit.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter counts hits per rule and key.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// New returns a Limiter. A nil logger is replaced by a no-op logger.
func New(client redis.UniversalClient, prefix string, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "ids"
	}
	return &Limiter{redis: client, prefix: prefix, logger: logger}
}

func (l *Limiter) key(rule Rule, subject string) string {
	return l.prefix + ":rl:" + rule.Name + ":" + subject
}

// Hit records one request for subject under rule.
func (l *Limiter) Hit(ctx context.Context, rule Rule, subject string) (Decision, error) {
	key := l.key(rule, subject)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	d := Decision{Allowed: count <= int64(rule.Max), Count: count}
	if !d.Allowed {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rule.Window
		}
		d.RetryAfter = ttl
	}
	return d, nil
}

// Middleware enforces rule per client IP. Redis failures let the request
// through and are logged.
func (l *Limiter) Middleware(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := l.Hit(c.UserContext(), rule, c.IP())
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.String("rule", rule.Name), zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		remaining := int64(rule.Max) - d.Count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Seconds())))
			return apperrors.NewTooManyRequests("Too many requests, please try again later")
		}
		return c.Next()
	}
}
