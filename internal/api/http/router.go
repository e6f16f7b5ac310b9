package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	TwoFactor      *handlers.TwoFactorHandler
	Password       *handlers.PasswordHandler
	Recovery       *handlers.RecoveryHandler
	Profile        *handlers.ProfileHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	// Limiter may be nil, which disables rate limiting.
	Limiter   *ratelimit.Limiter
	RateLimit config.RateLimitConfig
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authLimit := cfg.limit(ratelimit.Rule{Name: "auth", Max: cfg.RateLimit.AuthMax, Window: cfg.RateLimit.AuthWindow})
	twoFactorLimit := cfg.limit(ratelimit.Rule{Name: "2fa", Max: cfg.RateLimit.TwoFactorMax, Window: cfg.RateLimit.TwoFactorWindow})
	apiLimit := cfg.limit(ratelimit.Rule{Name: "api", Max: cfg.RateLimit.APIMax, Window: cfg.RateLimit.APIWindow})
	authenticated := cfg.AuthMiddleware.Handle

	api := app.Group("/api", apiLimit)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authLimit, cfg.Auth.Register)
	authGroup.Post("/register/admin", authLimit, cfg.Auth.RegisterAdmin)
	authGroup.Post("/setup-owner", authLimit, cfg.Auth.SetupOwner)
	authGroup.Post("/login", authLimit, cfg.Auth.Login)
	authGroup.Post("/logout", authenticated, cfg.Auth.Logout)

	twoFactor := api.Group("/2fa")
	twoFactor.Post("/setup", authenticated, cfg.TwoFactor.Setup)
	twoFactor.Post("/verify", authenticated, twoFactorLimit, cfg.TwoFactor.Verify)
	twoFactor.Post("/disable", authenticated, twoFactorLimit, cfg.TwoFactor.Disable)
	twoFactor.Post("/validate", twoFactorLimit, cfg.TwoFactor.Validate)

	password := api.Group("/password")
	password.Post("/forgot-password", authLimit, cfg.Password.Forgot)
	password.Post("/reset-password", authLimit, cfg.Password.Reset)
	password.Post("/change", authenticated, cfg.Password.Change)

	recovery := api.Group("/recovery")
	recovery.Post("/setup", authenticated, cfg.Recovery.Setup)
	recovery.Post("/initiate", authLimit, cfg.Recovery.Initiate)
	recovery.Post("/verify", authLimit, cfg.Recovery.Verify)
	recovery.Post("/complete", authLimit, cfg.Recovery.Complete)

	users := api.Group("/users", authenticated)
	users.Get("/profile", cfg.Profile.Get)
	users.Put("/profile", cfg.Profile.Update)
	users.Get("/devices", cfg.Profile.Devices)

	admin := api.Group("/admin", authenticated, auth.RequireAdmin())
	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Get("/users/:id", cfg.Admin.GetUser)
	admin.Patch("/users/:id/role", auth.RequireOwner(), cfg.Admin.ChangeRole)
	admin.Post("/create-admin", auth.RequireOwner(), cfg.Admin.CreateAdmin)
	admin.Delete("/users/:id", auth.RequireOwner(), cfg.Admin.DeleteUser)
	admin.Post("/users/:id/reset-password", cfg.Admin.ResetPassword)
	admin.Post("/users/:id/suspend", cfg.Admin.Suspend)
	admin.Post("/users/:id/reactivate", cfg.Admin.Reactivate)
}

func (cfg RouteConfig) limit(rule ratelimit.Rule) fiber.Handler {
	if cfg.Limiter == nil || !cfg.RateLimit.Enabled || rule.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return cfg.Limiter.Middleware(rule)
}
