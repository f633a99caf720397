// Package app assembles the HTTP application from already constructed
// services.
package app

import (
	"catalog/internal/config"
	"catalog/internal/handlers"
	"catalog/internal/middleware"
	"catalog/internal/services"
	"catalog/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth     *services.AuthService
	Products *services.ProductService
	Images   *storage.FileStore
	Registry *prometheus.Registry
	Checks   map[string]handlers.HealthCheck
	Log      *zap.Logger
}

// New builds the Fiber application with middleware and routes.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.ServiceName,
		BodyLimit:             cfg.BodyLimit(),
		ErrorHandler:          handlers.ErrorHandler(deps.Log),
		DisableStartupMessage: true,
	})

	metrics := middleware.NewMetrics(deps.Registry, cfg.ServiceName)

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Server.Env != "production"}))
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger(deps.Log))
	app.Use(metrics.Handler())

	app.Get("/health", handlers.NewHealthHandler(deps.Checks, deps.Log).HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	app.Use("/uploads", filesystem.New(filesystem.Config{
		Root:   deps.Images.HTTPFileSystem(),
		MaxAge: 3600,
	}))

	api := app.Group("/api")

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Log)
	authHandler.RegisterRoutes(api)

	productHandler := handlers.NewProductHandler(deps.Products, deps.Log)
	productHandler.RegisterRoutes(api, middleware.AuthRequired(deps.Auth, deps.Log))

	return app
}
