package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/persistence"
)

const readyTimeout = 2 * time.Second

// Probe checks one backing dependency for readiness.
type Probe struct {
	Name string
	Ping func(context.Context) error
}

// HealthHandler serves liveness, readiness and the metrics snapshot.
type HealthHandler struct {
	serviceName string
	version     string
	metrics     *observability.Metrics
	probes      []Probe
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, metrics *observability.Metrics, probes ...Probe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, metrics: metrics, probes: probes}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every probe. A backend that is not configured is reported as
// disabled and does not fail readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	deps := fiber.Map{}
	ready := true
	for _, p := range h.probes {
		err := p.Ping(ctx)
		switch {
		case err == nil:
			deps[p.Name] = "ok"
		case errors.Is(err, persistence.ErrDisabled):
			deps[p.Name] = "disabled"
		default:
			deps[p.Name] = err.Error()
			ready = false
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message":      "one or more dependencies unavailable",
			"error":        "DEPENDENCY_UNAVAILABLE",
			"dependencies": deps,
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}

// Metrics returns the in-process counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
