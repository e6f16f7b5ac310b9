package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test", nil), mr
}

func TestHitFixedWindow(t *testing.T) {
	limiter, mr := newLimiter(t)
	rule := Rule{Name: "auth", Max: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Hit(ctx, rule, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := limiter.Hit(ctx, rule, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	d, err = limiter.Hit(ctx, rule, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "limits are per subject")

	mr.FastForward(2 * time.Minute)
	d, err = limiter.Hit(ctx, rule, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter, _ := newLimiter(t)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusTooManyRequests).SendString(err.Error())
		},
	})
	app.Post("/login", limiter.Middleware(Rule{Name: "auth", Max: 1, Window: time.Hour}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter, mr := newLimiter(t)
	mr.Close()

	app := fiber.New()
	app.Get("/", limiter.Middleware(Rule{Name: "api", Max: 1, Window: time.Minute}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
