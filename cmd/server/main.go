package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"servio-crm/internal/adapters/http/middleware"
	"servio-crm/internal/adapters/http/routes"
	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"
	"servio-crm/internal/config"
	"servio-crm/internal/core/services"

	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
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

	// Seed reference data in dev mode
	if cfg.IsDev() {
		if err := config.NewSeeder(db).Run(); err != nil {
			log.Printf("⚠️ Warning: Failed to seed data: %v", err)
		}
	}

	// Receipt blob store
	receipts, err := storage.NewFileStore(cfg.ReceiptDir)
	if err != nil {
		log.Fatalf("❌ Failed to open receipt store: %v", err)
	}

	// Webhook sink shared by the request lifecycle and the cron reminders
	notify := services.NewNotificationService()

	// Start cleanup cron (orphaned receipts, stale reporting reminders)
	cleanup := services.NewCleanupService(
		repositories.NewCashRepository(db),
		receipts,
		notify,
		cfg.CleanupSchedule,
	)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Servio CRM Cash API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes (pass db and cfg for dependency injection)
	routes.Setup(app, db, receipts, notify, cfg)

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
