package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexdb/cortex/pkg/errx"
	"github.com/cortexdb/cortex/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// main boots a deliberately thin process around the memstore domain: a
// health endpoint that proves the engine composed correctly against a
// live backend. Full HTTP routing over MemoryStore/RelationshipEngine/
// etc. is an explicit external collaborator and is not built here.
func main() {
	logLevel := getEnv("LOG_LEVEL", "info")
	switch logLevel {
	case "debug":
		logx.SetLevel(logx.LevelDebug)
	case "warn":
		logx.SetLevel(logx.LevelWarn)
	case "error":
		logx.SetLevel(logx.LevelError)
	default:
		logx.SetLevel(logx.LevelInfo)
	}

	logx.Info("🚀 Starting memstore engine host...")

	container := NewContainer(context.Background())
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "memstore-engine",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New(requestid.Config{Header: "X-Request-ID"}))

	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler)
	app.Use(notFoundHandler)

	startServer(app)
}

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "memstore-engine",
		}

		if err := container.Memstore.Redis.Ping(c.Context()).Err(); err != nil {
			health["status"] = "degraded"
			health["backend"] = "unhealthy"
			health["backend_error"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(health)
		}
		health["backend"] = "healthy"
		return c.Status(fiber.StatusOK).JSON(health)
	}
}

func infoHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     "memstore-engine",
		"description": "Multi-tenant memory store for conversational agents",
		"endpoints": fiber.Map{
			"health": "/health",
		},
	})
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":  "route not found",
		"path":   c.Path(),
		"method": c.Method(),
	})
}

// globalErrorHandler converts errx.Error and fiber.Error into a stable
// JSON envelope.
func globalErrorHandler(c *fiber.Ctx, err error) error {
	logx.WithFields(logx.Fields{
		"path":   c.Path(),
		"method": c.Method(),
	}).Errorf("request error: %v", err)

	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error":  e.Message,
			"code":   "FIBER_ERROR",
			"status": e.Code,
		})
	}

	if e, ok := err.(*errx.Error); ok {
		response := fiber.Map{
			"error":  e.Message,
			"code":   e.Code,
			"type":   string(e.Type),
			"status": e.HTTPStatus,
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
		"code":  "INTERNAL_ERROR",
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

func startServer(app *fiber.App) {
	port := getPort()

	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(app)
}

func gracefulShutdown(app *fiber.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
	logx.Info("✅ Server exited successfully")
}
