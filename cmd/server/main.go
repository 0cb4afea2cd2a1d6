package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"libraryhub/internal/adapters/http/middleware"
	"libraryhub/internal/adapters/http/routes"
	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/config"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/logging"

	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	slog.SetDefault(logger)

	policyFile, err := config.LoadPolicy(cfg.Circulation.PolicyFile)
	if err != nil {
		log.Fatalf("❌ Failed to load circulation policy: %v", err)
	}
	policy, err := policyFile.Domain(cfg.Circulation.LockTimeout)
	if err != nil {
		log.Fatalf("❌ Invalid circulation policy: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	// Seed member tiers; demo members only in dev
	if err := config.NewSeeder(db, policyFile).Run(context.Background(), cfg.IsDev()); err != nil {
		log.Printf("⚠️ Warning: Failed to seed database: %v", err)
	}

	// Notifications go to the log and, when configured, a webhook
	notifier := services.MultiNotifier{services.NewLogNotifier(logger)}
	webhook := services.NewWebhookNotifier(cfg.Circulation.NotifyWebhookURL, logger)
	if webhook.IsEnabled() {
		notifier = append(notifier, webhook)
	}

	svc := services.New(services.Deps{
		Store:    repositories.NewStore(db),
		Notifier: notifier,
		Policy:   policy,
		Clock:    services.SystemClock,
		Logger:   logger,
	})

	// Reservation expiry sweep
	sweeper, err := services.NewSweepScheduler(cfg.Circulation.SweepSchedule, svc.Reservations, services.SystemClock, logger)
	if err != nil {
		log.Fatalf("❌ Failed to schedule reservation sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Create Fiber app
	app := fiber.New(routes.FiberConfig(cfg))

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes
	routes.Setup(app, cfg, svc, services.SystemClock, config.HealthCheck)

	// Graceful shutdown
	go gracefulShutdown(app)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
