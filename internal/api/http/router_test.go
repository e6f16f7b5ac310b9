package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/otp"
	"github.com/spec-kit/identity-service/internal/persistence"
	"github.com/spec-kit/identity-service/internal/ratelimit"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
	"github.com/spec-kit/identity-service/internal/service"
)

func newTestApp(t *testing.T, limits config.RateLimitConfig) *fiber.App {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	authCfg := config.AuthConfig{
		JWTSecret:           "test-secret",
		JWTIssuer:           "identity-service-test",
		AccessTokenTTL:      time.Hour,
		RecoveryHandoffTTL:  15 * time.Minute,
		PasswordResetTTL:    time.Hour,
		AccountRecoveryTTL:  24 * time.Hour,
		BcryptCost:          4,
		BackupCodeCount:     8,
		MinRecoveryQuestion: 2,
		TOTPIssuer:          "Test",
		TOTPSkew:            1,
	}

	store := memory.New()
	sessions := repository.NewSessionStore(client, "test")
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(authCfg.JWTSecret, authCfg.JWTIssuer, authCfg.AccessTokenTTL)
	deps := service.Dependencies{
		Users:      store.Users(),
		TwoFactor:  store.TwoFactor(),
		Resets:     store.PasswordResets(),
		Recoveries: store.AccountRecoveries(),
		Devices:    store.LoginDevices(),
		Sessions:   sessions,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    metrics,
	}
	twoFA := service.NewTwoFactorService(authCfg, otp.NewTOTP(authCfg.TOTPIssuer, authCfg.TOTPSkew), deps)
	authService := service.NewAuthService(authCfg, tokens, twoFA, deps)
	recovery := service.NewRecoveryService(authCfg, tokens, deps)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, config.AppConfig{CORSOrigins: "*", RequestTimeout: 5 * time.Second})
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("identity-service", "test", metrics,
			handlers.Probe{Name: "postgres", Ping: (&persistence.Postgres{}).Ping},
			handlers.Probe{Name: "redis", Ping: (&persistence.Redis{Client: client}).Ping},
		),
		Auth:           handlers.NewAuthHandler(authService),
		TwoFactor:      handlers.NewTwoFactorHandler(twoFA),
		Password:       handlers.NewPasswordHandler(authService, recovery),
		Recovery:       handlers.NewRecoveryHandler(recovery),
		Profile:        handlers.NewProfileHandler(authService),
		Admin:          handlers.NewAdminHandler(service.NewAdminService(authCfg, deps)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users(), sessions),
		Limiter:        ratelimit.New(client, "test", nil),
		RateLimit:      limits,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func registerAndLogin(t *testing.T, app *fiber.App, path, email string) string {
	t.Helper()
	status, body := do(t, app, http.MethodPost, path, "", map[string]any{
		"name": "Test", "email": email, "password": "secret password",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["token"].(string)
}

func TestRegisterLoginProfile(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	registerAndLogin(t, app, "/api/auth/register", "ada@example.com")

	status, body := do(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "secret password",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Login successful", body["message"])
	token := body["token"].(string)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash")

	status, body = do(t, app, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Test", body["user"].(map[string]any)["name"])

	status, body = do(t, app, http.MethodGet, "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestLogoutRevokesBearer(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	token := registerAndLogin(t, app, "/api/auth/register", "ada@example.com")

	status, _ := do(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodGet, "/api/users/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])
}

func TestAdminRoutesAreRoleGated(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	ownerToken := registerAndLogin(t, app, "/api/auth/setup-owner", "owner@example.com")
	userToken := registerAndLogin(t, app, "/api/auth/register", "ada@example.com")

	status, body := do(t, app, http.MethodGet, "/api/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"])

	status, body = do(t, app, http.MethodGet, "/api/admin/users", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = do(t, app, http.MethodPost, "/api/auth/setup-owner", "", map[string]any{
		"name": "Other", "email": "other@example.com", "password": "secret password",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["error"])
}

func TestSuspendedLoginEnvelope(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	ownerToken := registerAndLogin(t, app, "/api/auth/setup-owner", "owner@example.com")
	registerAndLogin(t, app, "/api/auth/register", "ada@example.com")

	_, list := do(t, app, http.MethodGet, "/api/admin/users", ownerToken, nil)
	var userID string
	for _, u := range list["users"].([]any) {
		if m := u.(map[string]any); m["email"] == "ada@example.com" {
			userID = m["id"].(string)
		}
	}
	require.NotEmpty(t, userID)

	status, _ := do(t, app, http.MethodPost, "/api/admin/users/"+userID+"/suspend", ownerToken, map[string]any{
		"reason": "Spamming", "category": "spam", "duration": 3,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "secret password",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ACCOUNT_SUSPENDED", body["error"])
	details := body["suspensionDetails"].(map[string]any)
	assert.Equal(t, "Spamming", details["reason"])
	assert.Equal(t, "spam", details["category"])
	assert.Contains(t, details, "suspensionEnd")
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	registerAndLogin(t, app, "/api/auth/register", "ada@example.com")

	_, known := do(t, app, http.MethodPost, "/api/password/forgot-password", "", map[string]any{"email": "ada@example.com"})
	_, unknown := do(t, app, http.MethodPost, "/api/password/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	assert.Equal(t, known, unknown)
}

func TestAuthBucketRateLimited(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{
		Enabled:    true,
		AuthMax:    2,
		AuthWindow: time.Minute,
		APIMax:     100,
		APIWindow:  time.Minute,
	})
	login := map[string]any{"email": "nobody@example.com", "password": "x"}

	for i := 0; i < 2; i++ {
		status, _ := do(t, app, http.MethodPost, "/api/auth/login", "", login)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := do(t, app, http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["error"])
}

func TestUnknownRouteAndHealth(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})

	status, body := do(t, app, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"])

	status, body = do(t, app, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "ok", deps["redis"])

	status, body = do(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "requests")
}

func TestPanicRendersInfrastructureEnvelope(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	app.Get("/boom", func(c *fiber.Ctx) error { panic("kaboom") })

	status, body := do(t, app, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INFRASTRUCTURE_FAILURE", body["error"])
	assert.NotContains(t, body["message"], "kaboom")
}
