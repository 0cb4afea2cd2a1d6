package routes

import (
	"time"

	"libraryhub/internal/adapters/http/handlers"
	"libraryhub/internal/adapters/http/middleware"
	"libraryhub/internal/config"
	"libraryhub/internal/core/services"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FiberConfig returns the fiber settings shared by the server and tests
func FiberConfig(cfg *config.Config) fiber.Config {
	return fiber.Config{
		AppName:               "libraryhub API v1.0",
		ErrorHandler:          middleware.CustomErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: cfg.IsProd(),
	}
}

// Setup configures all routes for the application
func Setup(app *fiber.App, cfg *config.Config, svc *services.Services, clock services.Clock, ping func() error) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppMode, ping)
	workHandler := handlers.NewWorkHandler(svc.Catalog, svc.Copies, svc.Reservations)
	copyHandler := handlers.NewCopyHandler(svc.Copies, svc.Transactions)
	circulationHandler := handlers.NewCirculationHandler(svc.Transactions)
	reservationHandler := handlers.NewReservationHandler(svc.Reservations, clock)
	memberHandler := handlers.NewMemberHandler(svc)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)
	apiV1.Get("/health", healthHandler.HealthCheck)

	// Everything below requires a token; circulation state is never cached
	protected := apiV1.Group("", middleware.AuthMiddleware(cfg), middleware.NoCacheHeaders())

	setupWorkRoutes(protected.Group("/works"), workHandler)
	setupCopyRoutes(protected.Group("/copies"), copyHandler)
	setupCirculationRoutes(protected, circulationHandler)
	setupReservationRoutes(protected.Group("/reservations"), reservationHandler)
	setupMemberRoutes(protected.Group("/members"), memberHandler)

	// Tier catalogue changes rarely
	tiers := protected.Group("/tiers")
	tiers.Get("/", middleware.CacheControl(time.Minute), memberHandler.ListTiers)
	tiers.Put("/", middleware.AdminOnly(), memberHandler.SaveTier)
}

// setupWorkRoutes configures catalog routes (reads for everyone, writes for staff)
func setupWorkRoutes(router fiber.Router, handler *handlers.WorkHandler) {
	router.Get("/", handler.List)
	router.Get("/code/:code", handler.GetByCode)
	router.Get("/:id", handler.Get)
	router.Get("/:id/copies", handler.ListCopies)

	staff := router.Group("", middleware.StaffOrAdmin())
	staff.Post("/", handler.Create)
	staff.Delete("/:id", handler.Delete)
	staff.Patch("/:id/status", handler.SetStatus)
	staff.Post("/:id/copies", handler.AddCopies)
	staff.Put("/:id/copies", handler.ReconcileCopies)
	staff.Post("/:id/rollups", handler.RecomputeRollups)
	staff.Get("/:id/queue", handler.Queue)
	staff.Post("/:id/queue/notify", handler.NotifyHead)
}

// setupCopyRoutes configures copy routes (Staff/Admin only)
func setupCopyRoutes(router fiber.Router, handler *handlers.CopyHandler) {
	router.Use(middleware.StaffOrAdmin())
	router.Get("/:id", handler.Get)
	router.Get("/:id/history", handler.History)
	router.Post("/:id/maintenance", handler.MarkForMaintenance)
	router.Post("/:id/available", handler.MarkAvailable)
}

// setupCirculationRoutes configures issue, return, renewal and fine routes
func setupCirculationRoutes(router fiber.Router, handler *handlers.CirculationHandler) {
	desk := router.Group("/circulation", middleware.StaffOrAdmin())
	desk.Post("/issue", handler.Issue)
	desk.Post("/return", handler.Return)

	// Members may read and renew their own loans
	txns := router.Group("/transactions")
	txns.Get("/:id", handler.Get)
	txns.Post("/:id/renew", handler.Renew)
	txns.Patch("/:id/fine", middleware.StaffOrAdmin(), handler.CorrectFine)
}

// setupReservationRoutes configures reservation routes
func setupReservationRoutes(router fiber.Router, handler *handlers.ReservationHandler) {
	router.Post("/", handler.Reserve)
	router.Post("/sweep", middleware.StaffOrAdmin(), middleware.StrictRateLimiter(), handler.Sweep)
	router.Get("/:id", handler.Get)
	router.Get("/:id/position", handler.Position)
	router.Post("/:id/cancel", handler.Cancel)
	router.Post("/:id/fulfill", middleware.StaffOrAdmin(), handler.Fulfill)
}

// setupMemberRoutes configures member routes (self or staff)
func setupMemberRoutes(router fiber.Router, handler *handlers.MemberHandler) {
	router.Post("/", middleware.StaffOrAdmin(), handler.Create)
	router.Get("/:id", handler.Get)
	router.Patch("/:id/disabled", middleware.StaffOrAdmin(), handler.SetDisabled)
	router.Get("/:id/history", handler.History)
	router.Get("/:id/eligibility", handler.Eligibility)
	router.Get("/:id/fines", handler.Fines)
	router.Get("/:id/loans", handler.Loans)
	router.Get("/:id/reservations", handler.Reservations)
}
