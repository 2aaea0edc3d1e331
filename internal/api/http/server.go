package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NewApp builds the fiber application with middlewares and routes registered.
func NewApp(appName string, logger *zap.Logger, timeout time.Duration, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, routes.Metrics, timeout)
	RegisterRoutes(app, routes)
	return app
}

