package handlers

import (
	"fmt"
	"time"

	"servio-crm/internal/adapters/http/middleware"
	"servio-crm/internal/core/services"
	"servio-crm/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Receipt uploads above this size are rejected before touching the store
const maxReceiptSize = 10 << 20 // 10 MB

// ExpenseHandler handles the expense sub-flow endpoints
type ExpenseHandler struct {
	expenseService *services.ExpenseService
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(expenseService *services.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
	}
}

// Add files an expense with its receipt (multipart form)
func (h *ExpenseHandler) Add(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	amount, err := decimal.NewFromString(c.FormValue("amount"))
	if err != nil {
		return response.BadRequest(c, "Invalid amount")
	}

	input := &services.AddExpenseInput{
		Amount:      amount,
		Description: c.FormValue("description"),
	}

	if raw := c.FormValue("expense_date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return response.BadRequest(c, "Invalid expense_date (expected YYYY-MM-DD)")
		}
		input.ExpenseDate = &date
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return response.BadRequest(c, "A receipt file is required")
	}
	if fileHeader.Size > maxReceiptSize {
		return response.BadRequest(c, "Receipt file exceeds the 10 MB limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read receipt file")
	}
	defer file.Close()

	input.Filename = fileHeader.Filename
	input.Receipt = file

	actor := middleware.ActorFromCtx(c)
	exp, err := h.expenseService.Add(c.Context(), actor, id, input)
	if err != nil {
		return respondError(c, err, "Failed to add expense")
	}

	return response.Created(c, "Expense added successfully", fiber.Map{
		"expense": exp,
	})
}

// Delete removes an expense and its receipt
func (h *ExpenseHandler) Delete(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}
	expenseID, ok := pathID(c, "expenseId")
	if !ok {
		return response.BadRequest(c, "Invalid expense id")
	}

	actor := middleware.ActorFromCtx(c)
	if err := h.expenseService.Delete(c.Context(), actor, id, expenseID); err != nil {
		return respondError(c, err, "Failed to delete expense")
	}

	return response.Success(c, "Expense deleted successfully", nil)
}

// Receipt streams the attachment bound to the given request
func (h *ExpenseHandler) Receipt(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}
	handle := c.Params("handle")

	actor := middleware.ActorFromCtx(c)
	receipt, err := h.expenseService.Receipt(c.Context(), actor, id, handle)
	if err != nil {
		return respondError(c, err, "Failed to fetch receipt")
	}

	c.Set(fiber.HeaderContentType, receipt.ContentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`inline; filename=%q`, receipt.Filename))
	return c.SendStream(receipt.Body, int(receipt.Size))
}
