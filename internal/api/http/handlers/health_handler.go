package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	configErr   error
}

// NewHealthHandler returns a new handler instance. A non-nil configErr marks the service not ready.
func NewHealthHandler(serviceName, version string, configErr error) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, configErr: configErr}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports whether the broker has a usable configuration.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.configErr == nil {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "NOT_READY",
			"message": "broker configuration incomplete",
		},
	})
}
