package services

import (
	"context"
	"strings"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/core/authz"
	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
)

// CashService drives the cash request lifecycle. Every entry point checks
// the authorization gate first, then the status guard; the guard and the
// write run in one repository transaction.
type CashService struct {
	cashRepo repositories.CashRepository
	workRepo repositories.WorkRepository
	policy   *authz.Policy
	notify   *NotificationService
}

// NewCashService creates a new cash service
func NewCashService(
	cashRepo repositories.CashRepository,
	workRepo repositories.WorkRepository,
	policy *authz.Policy,
	notify *NotificationService,
) *CashService {
	return &CashService{
		cashRepo: cashRepo,
		workRepo: workRepo,
		policy:   policy,
		notify:   notify,
	}
}

// CreateInput represents create request input
type CreateInput struct {
	Type           domain.RequestType `json:"type"`
	WorkID         *uint              `json:"work_id,omitempty"`
	Amount         decimal.Decimal    `json:"amount"`
	Purpose        string             `json:"purpose"`
	CoverLetter    string             `json:"cover_letter,omitempty"`
	IdempotencyKey string             `json:"-"`
}

// Create files a new cash request owned by the caller
func (s *CashService) Create(ctx context.Context, actor authz.Identity, input *CreateInput) (*models.CashRequest, error) {
	if err := s.policy.Allow(actor, authz.OpCreateRequest, 0); err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, domain.Invalid("type must be ADVANCE or LOAN")
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return nil, domain.Invalid("purpose is required")
	}
	if input.Type == domain.TypeAdvance {
		if input.WorkID == nil {
			return nil, domain.Invalid("work reference is required for an advance")
		}
		if _, err := s.workRepo.GetByID(ctx, *input.WorkID); err != nil {
			return nil, err
		}
	}

	if input.IdempotencyKey != "" {
		if existing, err := s.cashRepo.RequestByIdemKey(ctx, actor.UserID, input.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	req := &models.CashRequest{
		RequesterID: actor.UserID,
		Type:        input.Type,
		Amount:      input.Amount,
		Purpose:     strings.TrimSpace(input.Purpose),
		CoverLetter: input.CoverLetter,
		Status:      domain.StatusRequested,
	}
	if input.Type == domain.TypeAdvance {
		req.WorkID = input.WorkID
	}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		req.IdempotencyKey = &key
	}

	if err := s.cashRepo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.notify.NotifyCreated(req)
	return req, nil
}

// Approve moves a requested cash request to APPROVED (director only)
func (s *CashService) Approve(ctx context.Context, actor authz.Identity, id uint) (*models.CashRequest, error) {
	if err := s.policy.Allow(actor, authz.OpApprove, 0); err != nil {
		return nil, err
	}

	req, err := s.cashRepo.Transition(ctx, id, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("approve", req.Status, domain.ApproveFrom...); err != nil {
			return err
		}
		approver := actor.UserID
		req.Status = domain.StatusApproved
		req.ApproverID = &approver
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, domain.StatusRequested)
	return req, nil
}

// Reject terminates a request before money moves (director only)
func (s *CashService) Reject(ctx context.Context, actor authz.Identity, id uint, comment string) (*models.CashRequest, error) {
	if err := s.policy.Allow(actor, authz.OpReject, 0); err != nil {
		return nil, err
	}
	if strings.TrimSpace(comment) == "" {
		return nil, domain.Invalid("a comment is required when rejecting")
	}

	var from domain.Status
	req, err := s.cashRepo.Transition(ctx, id, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("reject", req.Status, domain.RejectFrom...); err != nil {
			return err
		}
		from = req.Status
		approver := actor.UserID
		req.Status = domain.StatusRejected
		req.ApproverID = &approver
		req.ApproverComment = comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, from)
	return req, nil
}

// AskQuestion puts the request into the QUESTION side-state and records the
// director's message. The origin status is remembered so the reply can
// restore it.
func (s *CashService) AskQuestion(ctx context.Context, actor authz.Identity, id uint, message string) (*models.CashRequest, error) {
	if err := s.policy.Allow(actor, authz.OpAskQuestion, 0); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, domain.Invalid("a message is required when asking a question")
	}

	msg := &models.CashMessage{AuthorID: actor.UserID, Body: message}
	var from domain.Status
	req, err := s.cashRepo.AppendMessage(ctx, id, msg, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("ask question", req.Status, domain.QuestionFrom...); err != nil {
			return err
		}
		from = req.Status
		origin := req.Status
		approver := actor.UserID
		req.Status = domain.StatusQuestion
		req.QuestionOrigin = &origin
		req.ApproverID = &approver
		req.ApproverComment = message
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, from)
	return req, nil
}

// Reply records the owner's answer and restores the status the question
// interrupted
func (s *CashService) Reply(ctx context.Context, actor authz.Identity, id uint, message string) (*models.CashRequest, error) {
	owner, err := s.cashRepo.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpReply, owner.RequesterID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, domain.Invalid("a message is required when replying")
	}

	msg := &models.CashMessage{AuthorID: actor.UserID, Body: message}
	req, err := s.cashRepo.AppendMessage(ctx, id, msg, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("reply", req.Status, domain.ReplyFrom...); err != nil {
			return err
		}
		restored := domain.StatusRequested
		if req.QuestionOrigin != nil {
			restored = *req.QuestionOrigin
		}
		req.Status = restored
		req.QuestionOrigin = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, domain.StatusQuestion)
	return req, nil
}

// Receive is the owner's confirmation that the money was handed over
func (s *CashService) Receive(ctx context.Context, actor authz.Identity, id uint) (*models.CashRequest, error) {
	owner, err := s.cashRepo.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpConfirmReceipt, owner.RequesterID); err != nil {
		return nil, err
	}

	req, err := s.cashRepo.Transition(ctx, id, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("confirm receipt", req.Status, domain.ReceiveFrom...); err != nil {
			return err
		}
		now := time.Now()
		req.Status = domain.StatusReceived
		req.ReceivedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, domain.StatusApproved)
	return req, nil
}

// SubmitReturnInput represents submit return input
type SubmitReturnInput struct {
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// SubmitReturn records unspent money handed back by the owner. The amount
// is checked against the remainder inside the repository transaction, so
// two concurrent submissions cannot both pass the guard.
func (s *CashService) SubmitReturn(ctx context.Context, actor authz.Identity, id uint, input *SubmitReturnInput) (*models.CashReturn, error) {
	owner, err := s.cashRepo.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpSubmitReturn, owner.RequesterID); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		if existing, err := s.cashRepo.ReturnByIdemKey(ctx, id, input.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	ret := &models.CashReturn{Amount: input.Amount, Note: input.Note}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		ret.IdempotencyKey = &key
	}

	err = s.cashRepo.AddReturn(ctx, id, ret, func(req *models.CashRequest, led domain.Ledger) error {
		if err := domain.EnsureStatus("submit return", req.Status, domain.ReturnFrom...); err != nil {
			return err
		}
		if !led.CanReturn(input.Amount) {
			return domain.Invalid("return amount %s exceeds remainder %s",
				input.Amount.String(), led.Remainder().String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyReturn(owner, ret)
	return ret, nil
}

// ConfirmReturn is the director's acknowledgement that the money came back.
// Confirming twice conflicts.
func (s *CashService) ConfirmReturn(ctx context.Context, actor authz.Identity, id, returnID uint) (*models.CashReturn, error) {
	if err := s.policy.Allow(actor, authz.OpConfirmReturn, 0); err != nil {
		return nil, err
	}

	var request *models.CashRequest
	ret, err := s.cashRepo.ConfirmReturn(ctx, id, returnID, func(req *models.CashRequest, ret *models.CashReturn) error {
		if ret.Confirmed() {
			return domain.ErrAlreadyConfirmed
		}
		now := time.Now()
		confirmer := actor.UserID
		ret.ConfirmedBy = &confirmer
		ret.ConfirmedAt = &now
		request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyReturn(request, ret)
	return ret, nil
}

// CloseInput represents close input
type CloseInput struct {
	Comment string `json:"comment,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// Close finishes the lifecycle. Without force the remainder must be fully
// reconciled; the error carries the outstanding figure so the director can
// decide to force or to reconcile first.
func (s *CashService) Close(ctx context.Context, actor authz.Identity, id uint, input *CloseInput) (*models.CashRequest, error) {
	if err := s.policy.Allow(actor, authz.OpCloseRequest, 0); err != nil {
		return nil, err
	}

	var from domain.Status
	req, err := s.cashRepo.Transition(ctx, id, func(req *models.CashRequest, led domain.Ledger) error {
		if err := domain.EnsureStatus("close", req.Status, domain.CloseFrom...); err != nil {
			return err
		}
		if !input.Force && !led.Reconciled() {
			return &domain.UnreconciledError{Remainder: led.Remainder()}
		}
		from = req.Status
		now := time.Now()
		approver := actor.UserID
		req.Status = domain.StatusClosed
		req.ClosedAt = &now
		req.ApproverID = &approver
		if input.Comment != "" {
			req.ApproverComment = input.Comment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyStatusChange(req, from)
	return req, nil
}

// ============================================================
// Queries
// ============================================================

// MyRequests lists the caller's own requests, each with its derived balance
func (s *CashService) MyRequests(ctx context.Context, actor authz.Identity) ([]*models.CashRequestResponse, error) {
	reqs, err := s.cashRepo.RequestsByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, reqs)
}

// ListInput represents elevated list input
type ListInput struct {
	Status    *domain.Status
	Requester *uint
	Offset    int
	Limit     int
}

// List lists all requests with optional filters (director only)
func (s *CashService) List(ctx context.Context, actor authz.Identity, input *ListInput) ([]*models.CashRequestResponse, int64, error) {
	if err := s.policy.Allow(actor, authz.OpListAll, 0); err != nil {
		return nil, 0, err
	}
	reqs, total, err := s.cashRepo.Requests(ctx, repositories.RequestFilter{
		Status:    input.Status,
		Requester: input.Requester,
		Offset:    input.Offset,
		Limit:     input.Limit,
	})
	if err != nil {
		return nil, 0, err
	}
	out, err := s.annotate(ctx, reqs)
	return out, total, err
}

// Summary aggregates issued/spent/returned/balance per requester (director only)
func (s *CashService) Summary(ctx context.Context, actor authz.Identity) ([]*models.RequesterSummary, error) {
	if err := s.policy.Allow(actor, authz.OpSummary, 0); err != nil {
		return nil, err
	}
	return s.cashRepo.Summary(ctx)
}

// MyBalance aggregates the caller's active requests
func (s *CashService) MyBalance(ctx context.Context, actor authz.Identity) (*models.OwnerBalance, error) {
	return s.cashRepo.OwnerBalance(ctx, actor.UserID)
}

// Detail returns the full view: request, expenses, returns, messages,
// derived balance. Owner or director only.
func (s *CashService) Detail(ctx context.Context, actor authz.Identity, id uint) (*models.CashRequestDetail, error) {
	req, err := s.cashRepo.RequestDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpViewRequest, req.RequesterID); err != nil {
		return nil, err
	}
	led, err := s.cashRepo.LedgerFor(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.CashRequestDetail{
		Request:  req.ToResponse(&led),
		Expenses: req.Expenses,
		Returns:  req.Returns,
		Messages: req.Messages,
	}, nil
}

func (s *CashService) annotate(ctx context.Context, reqs []*models.CashRequest) ([]*models.CashRequestResponse, error) {
	out := make([]*models.CashRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		led, err := s.cashRepo.LedgerFor(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, req.ToResponse(&led))
	}
	return out, nil
}
