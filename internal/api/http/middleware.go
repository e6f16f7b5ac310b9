package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/observability"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg config.AppConfig) {
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))
	if cfg.RequestTimeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.RequestTimeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, r interface{}) {
			logger.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Path()), zap.ByteString("stack", debug.Stack()))
		},
	}))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		domainErr := toDomainError(err)
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		metrics.RecordError(route, c.Method(), domainErr.Code)
		if domainErr.HTTPStatus >= 500 {
			fields := []zap.Field{zap.String("path", c.Path()), zap.Error(domainErr)}
			if rid, ok := c.Locals("requestid").(string); ok {
				fields = append(fields, zap.String("request_id", rid))
			}
			logger.Error("request failed", fields...)
		}
		return c.Status(domainErr.HTTPStatus).JSON(ErrorBody(domainErr))
	}
}

// ErrorBody renders the failure envelope: message, error code and any
// detail fields at the top level.
func ErrorBody(de *apperrors.DomainError) fiber.Map {
	body := fiber.Map{}
	for k, v := range de.Details {
		body[k] = v
	}
	body["message"] = de.Message
	body["error"] = de.Code
	return body
}

// toDomainError also maps fiber's own errors such as unmatched routes.
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperrors.CodeInfrastructure
		switch fe.Code {
		case http.StatusNotFound:
			code = apperrors.CodeNotFound
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
			code = apperrors.CodeValidation
		case http.StatusUnauthorized:
			code = apperrors.CodeUnauthenticated
		case http.StatusForbidden, http.StatusMethodNotAllowed:
			code = apperrors.CodeForbidden
		case http.StatusTooManyRequests:
			code = apperrors.CodeTooManyRequests
		}
		return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
	}
	return apperrors.ToDomainError(err)
}
