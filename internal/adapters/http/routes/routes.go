package routes

import (
	"servio-crm/internal/adapters/http/handlers"
	"servio-crm/internal/adapters/http/middleware"
	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"
	"servio-crm/internal/config"
	"servio-crm/internal/core/authz"
	"servio-crm/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, receipts storage.ReceiptStore, notify *services.NotificationService, cfg *config.Config) {
	// Initialize repositories
	cashRepo := repositories.NewCashRepository(db)
	workRepo := repositories.NewWorkRepository(db)

	// Capability policy: elevated roles come from config
	policy := authz.NewPolicy(cfg.DirectorRoles...)

	// Initialize services
	cashService := services.NewCashService(cashRepo, workRepo, policy, notify)
	expenseService := services.NewExpenseService(cashRepo, receipts, policy, notify)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	cashHandler := handlers.NewCashHandler(cashService)
	expenseHandler := handlers.NewExpenseHandler(expenseService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group, everything behind auth
	apiV1 := app.Group("/api/v1")
	setupCashRoutes(apiV1, cashHandler, expenseHandler, cfg)
}

// setupCashRoutes configures the cash advance routes
func setupCashRoutes(
	router fiber.Router,
	cashHandler *handlers.CashHandler,
	expenseHandler *handlers.ExpenseHandler,
	cfg *config.Config,
) {
	cash := router.Group("/cash", middleware.AuthMiddleware(cfg))

	// Collections first so they don't collide with /:id
	cash.Get("/my", cashHandler.My)
	cash.Get("/all", cashHandler.All)
	cash.Get("/summary", cashHandler.Summary)
	cash.Get("/my-balance", cashHandler.MyBalance)
	cash.Post("/", cashHandler.Create)

	// Lifecycle
	cash.Get("/:id", cashHandler.Detail)
	cash.Put("/:id/approve", cashHandler.Approve)
	cash.Put("/:id/reject", cashHandler.Reject)
	cash.Put("/:id/question", cashHandler.Question)
	cash.Post("/:id/reply", cashHandler.Reply)
	cash.Put("/:id/receive", cashHandler.Receive)
	cash.Put("/:id/close", cashHandler.Close)

	// Expenses and receipts
	cash.Post("/:id/expense", middleware.UploadRateLimiter(), expenseHandler.Add)
	cash.Delete("/:id/expense/:expenseId", expenseHandler.Delete)
	cash.Get("/:id/receipt/:handle", expenseHandler.Receipt)

	// Returns
	cash.Post("/:id/return", cashHandler.SubmitReturn)
	cash.Put("/:id/return/:returnId/confirm", cashHandler.ConfirmReturn)
}
