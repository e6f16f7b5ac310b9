package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/identity-service/internal/api/http"
	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/jobs"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/otp"
	"github.com/spec-kit/identity-service/internal/persistence"
	"github.com/spec-kit/identity-service/internal/ratelimit"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewAsyncDispatcher(cfg.Notification.QueueSize, logger)
	sessions := repository.NewSessionStore(redis.Client, cfg.Redis.KeyPrefix)

	deps := buildStores(pg, cfg.Store.Timeout)
	deps.Sessions = sessions
	deps.Dispatcher = dispatcher
	deps.Metrics = metrics
	deps.Logger = logger

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL,
		auth.WithHandoffTTL(cfg.Auth.RecoveryHandoffTTL))
	twoFactorService := service.NewTwoFactorService(cfg.Auth, otp.NewTOTP(cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkew), deps)
	authService := service.NewAuthService(cfg.Auth, tokens, twoFactorService, deps)
	recoveryService := service.NewRecoveryService(cfg.Auth, tokens, deps)
	adminService := service.NewAdminService(cfg.Auth, deps)

	notificationService := service.NewNotificationService(dispatcher, service.NewLogMailer(logger), metrics, logger, cfg.Notification)
	// Workers drain on their own context so queued mail survives the root cancel.
	notifier := worker.StartNotificationWorker(context.Background(), dispatcher, notificationService, cfg.Notification.Workers, logger)

	scheduler := jobs.NewScheduler(deps.Resets, deps.Recoveries, metrics, logger)
	if err := scheduler.Start(cfg.Jobs.PurgeSchedule); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics,
			handlers.Probe{Name: "postgres", Ping: pg.Ping},
			handlers.Probe{Name: "redis", Ping: redis.Ping},
		),
		Auth:           handlers.NewAuthHandler(authService),
		TwoFactor:      handlers.NewTwoFactorHandler(twoFactorService),
		Password:       handlers.NewPasswordHandler(authService, recoveryService),
		Recovery:       handlers.NewRecoveryHandler(recoveryService),
		Profile:        handlers.NewProfileHandler(authService),
		Admin:          handlers.NewAdminHandler(adminService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, deps.Users, sessions),
		Limiter:        ratelimit.New(redis.Client, cfg.Redis.KeyPrefix, logger),
		RateLimit:      cfg.RateLimit,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
}

// buildStores selects Postgres repositories when a pool is configured and
// the in-process store otherwise.
func buildStores(pg *persistence.Postgres, timeout time.Duration) service.Dependencies {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return service.Dependencies{
			Users:      repository.NewUserRepository(pool, timeout),
			TwoFactor:  repository.NewTwoFactorRepository(pool, timeout),
			Resets:     repository.NewPasswordResetRepository(pool, timeout),
			Recoveries: repository.NewAccountRecoveryRepository(pool, timeout),
			Devices:    repository.NewLoginDeviceRepository(pool, timeout),
		}
	}

	store := memory.New()
	return service.Dependencies{
		Users:      store.Users(),
		TwoFactor:  store.TwoFactor(),
		Resets:     store.PasswordResets(),
		Recoveries: store.AccountRecoveries(),
		Devices:    store.LoginDevices(),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
