// Package main provides the costdesk API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/web"
	"github.com/costdesk/costdesk/pkg/workflow"
)

type API struct {
	logger  *slog.Logger
	manager *workflow.Manager
	store   checkpoint.Store
	tenant  models.TenantContext
}

func NewAPI(logger *slog.Logger, manager *workflow.Manager, store checkpoint.Store, tenant models.TenantContext) *API {
	return &API{
		logger:  logger,
		manager: manager,
		store:   store,
		tenant:  tenant,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.manager, a.tenant, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("costdesk API")
	})

	runs := app.Group("/runs")
	runs.Post("/", handlers.StartRun)
	runs.Get("/:id", handlers.GetRun)
	runs.Post("/:id/approval", handlers.DecideApproval)

	app.Get("/approvals", handlers.ListApprovals)

	app.Get("/health", func(c fiber.Ctx) error {
		if err := a.store.HealthCheck(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}

		return c.JSON(fiber.Map{"status": "healthy"})
	})

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
