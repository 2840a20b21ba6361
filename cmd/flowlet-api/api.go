// Package main provides the Flowlet API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowlet-io/flowlet/pkg/dispatcher"
	"github.com/flowlet-io/flowlet/pkg/engine"
	"github.com/flowlet-io/flowlet/pkg/eventbus"
	"github.com/flowlet-io/flowlet/pkg/hooks"
	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/registry"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
	"github.com/flowlet-io/flowlet/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	hook := hooks.NewLearningHook(a.eventBus, a.logger)

	eng := engine.NewEngine(a.logger, a.persistence, a.registry,
		engine.WithPublisher(a.eventBus),
		engine.WithLearningHook(hook),
	)

	sched := scheduler.NewScheduler(a.logger, a.persistence, eng)
	disp := dispatcher.NewDispatcher(a.logger, a.persistence, eng)

	handlers := web.NewAPIHandlers(a.persistence, eng, sched, disp, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowlet API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)

	app.Get("/runs/:id", handlers.GetRun)
	app.All("/webhooks/*", handlers.HandleWebhook)
	app.Post("/scheduler/tick", handlers.TickScheduler)
	app.Get("/node-types", handlers.GetNodeTypes)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
