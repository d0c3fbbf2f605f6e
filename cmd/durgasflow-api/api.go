// Package main provides the Durgasflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/durgasflow/durgasflow/pkg/registry"
	"github.com/durgasflow/durgasflow/pkg/services"
	"github.com/durgasflow/durgasflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      services.Executor
	schedules   services.ScheduleManager
	validate    *validator.Validate
}

// NewAPI creates the API. schedules may be nil, in which case activation
// does not register cron schedules.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	engine services.Executor,
	schedules services.ScheduleManager,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		engine:      engine,
		schedules:   schedules,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.schedules, a.logger)
	executionService := services.NewExecution(a.persistence, a.engine, a.logger)
	nodeService := services.NewNode(a.registry)

	handlers := web.NewAPIHandlers(workflowService, executionService, nodeService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Durgasflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
