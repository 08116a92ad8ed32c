package handlers

import (
	"strconv"
	"strings"

	"servio-crm/internal/adapters/http/middleware"
	"servio-crm/internal/core/domain"
	"servio-crm/internal/core/services"
	"servio-crm/internal/pkg/pagination"
	"servio-crm/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// CashHandler handles cash request lifecycle endpoints
type CashHandler struct {
	cashService *services.CashService
}

// NewCashHandler creates a new cash handler
func NewCashHandler(cashService *services.CashService) *CashHandler {
	return &CashHandler{
		cashService: cashService,
	}
}

// pathID parses the {id} path parameter
func pathID(c *fiber.Ctx, name string) (uint, bool) {
	raw, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || raw == 0 {
		return 0, false
	}
	return uint(raw), true
}

// CreateCashRequest represents create cash request body
type CreateCashRequest struct {
	Type        string          `json:"type"`
	WorkID      *uint           `json:"work_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Purpose     string          `json:"purpose"`
	CoverLetter string          `json:"cover_letter,omitempty"`
}

// Create creates a new cash request owned by the caller
func (h *CashHandler) Create(c *fiber.Ctx) error {
	var req CreateCashRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	input := &services.CreateInput{
		Type:           domain.RequestType(strings.ToUpper(req.Type)),
		WorkID:         req.WorkID,
		Amount:         req.Amount,
		Purpose:        req.Purpose,
		CoverLetter:    req.CoverLetter,
		IdempotencyKey: c.Get("Idempotency-Key"),
	}

	created, err := h.cashService.Create(c.Context(), actor, input)
	if err != nil {
		return respondError(c, err, "Failed to create cash request")
	}

	return response.Created(c, "Cash request created successfully", fiber.Map{
		"request": created,
	})
}

// My lists the caller's own requests with derived balances
func (h *CashHandler) My(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	requests, err := h.cashService.MyRequests(c.Context(), actor)
	if err != nil {
		return respondError(c, err, "Failed to list cash requests")
	}

	return response.Success(c, "Cash requests retrieved successfully", fiber.Map{
		"requests": requests,
	})
}

// All lists all requests with optional filters (director only)
func (h *CashHandler) All(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)
	params := pagination.GetParams(c)

	input := &services.ListInput{
		Offset: params.Offset,
		Limit:  params.Limit,
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.Status(strings.ToUpper(raw))
		if !status.Valid() {
			return response.BadRequest(c, "Invalid status filter")
		}
		input.Status = &status
	}
	if raw := c.Query("requester"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid requester filter")
		}
		uid := uint(id)
		input.Requester = &uid
	}

	requests, total, err := h.cashService.List(c.Context(), actor, input)
	if err != nil {
		return respondError(c, err, "Failed to list cash requests")
	}

	return response.Success(c, "Cash requests retrieved successfully",
		pagination.NewResponse(requests, params, total))
}

// Summary aggregates issued/spent/returned/balance per requester (director only)
func (h *CashHandler) Summary(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	summary, err := h.cashService.Summary(c.Context(), actor)
	if err != nil {
		return respondError(c, err, "Failed to build summary")
	}

	return response.Success(c, "Summary retrieved successfully", fiber.Map{
		"summary": summary,
	})
}

// MyBalance aggregates the caller's active requests
func (h *CashHandler) MyBalance(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	balance, err := h.cashService.MyBalance(c.Context(), actor)
	if err != nil {
		return respondError(c, err, "Failed to compute balance")
	}

	return response.Success(c, "Balance retrieved successfully", fiber.Map{
		"balance": balance,
	})
}

// Detail returns the full view: request, expenses, returns, messages, balance
func (h *CashHandler) Detail(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	actor := middleware.ActorFromCtx(c)
	detail, err := h.cashService.Detail(c.Context(), actor, id)
	if err != nil {
		return respondError(c, err, "Failed to load cash request")
	}

	return response.Success(c, "Cash request retrieved successfully", detail)
}

// Approve moves a requested cash request to APPROVED (director only)
func (h *CashHandler) Approve(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.Approve(c.Context(), actor, id)
	if err != nil {
		return respondError(c, err, "Failed to approve cash request")
	}

	return response.Success(c, "Cash request approved", fiber.Map{
		"request": req,
	})
}

// CommentRequest represents a body carrying a single comment/message
type CommentRequest struct {
	Comment string `json:"comment"`
	Message string `json:"message"`
}

// Reject terminates a request before money moves (director only)
func (h *CashHandler) Reject(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	var body CommentRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.Reject(c.Context(), actor, id, body.Comment)
	if err != nil {
		return respondError(c, err, "Failed to reject cash request")
	}

	return response.Success(c, "Cash request rejected", fiber.Map{
		"request": req,
	})
}

// Question puts the request into the QUESTION side-state (director only)
func (h *CashHandler) Question(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	var body CommentRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.AskQuestion(c.Context(), actor, id, body.Message)
	if err != nil {
		return respondError(c, err, "Failed to record question")
	}

	return response.Success(c, "Question recorded", fiber.Map{
		"request": req,
	})
}

// Reply records the owner's answer and restores the interrupted status
func (h *CashHandler) Reply(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	var body CommentRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.Reply(c.Context(), actor, id, body.Message)
	if err != nil {
		return respondError(c, err, "Failed to record reply")
	}

	return response.Success(c, "Reply recorded", fiber.Map{
		"request": req,
	})
}

// Receive is the owner's confirmation that the money was handed over
func (h *CashHandler) Receive(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.Receive(c.Context(), actor, id)
	if err != nil {
		return respondError(c, err, "Failed to confirm receipt of money")
	}

	return response.Success(c, "Receipt of money confirmed", fiber.Map{
		"request": req,
	})
}

// SubmitReturnRequest represents submit return body
type SubmitReturnRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// SubmitReturn records unspent money handed back by the owner
func (h *CashHandler) SubmitReturn(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	var body SubmitReturnRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	input := &services.SubmitReturnInput{
		Amount:         body.Amount,
		Note:           body.Note,
		IdempotencyKey: c.Get("Idempotency-Key"),
	}

	ret, err := h.cashService.SubmitReturn(c.Context(), actor, id, input)
	if err != nil {
		return respondError(c, err, "Failed to submit return")
	}

	return response.Created(c, "Return submitted successfully", fiber.Map{
		"return": ret,
	})
}

// ConfirmReturn is the director's acknowledgement that the money came back
func (h *CashHandler) ConfirmReturn(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}
	returnID, ok := pathID(c, "returnId")
	if !ok {
		return response.BadRequest(c, "Invalid return id")
	}

	actor := middleware.ActorFromCtx(c)
	ret, err := h.cashService.ConfirmReturn(c.Context(), actor, id, returnID)
	if err != nil {
		return respondError(c, err, "Failed to confirm return")
	}

	return response.Success(c, "Return confirmed", fiber.Map{
		"return": ret,
	})
}

// CloseRequest represents close body
type CloseRequest struct {
	Comment string `json:"comment,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// Close finishes the lifecycle (director only)
func (h *CashHandler) Close(c *fiber.Ctx) error {
	id, ok := pathID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request id")
	}

	var body CloseRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFromCtx(c)
	req, err := h.cashService.Close(c.Context(), actor, id, &services.CloseInput{
		Comment: body.Comment,
		Force:   body.Force,
	})
	if err != nil {
		return respondError(c, err, "Failed to close cash request")
	}

	return response.Success(c, "Cash request closed", fiber.Map{
		"request": req,
	})
}
