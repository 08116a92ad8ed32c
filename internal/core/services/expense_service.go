package services

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"
	"servio-crm/internal/core/authz"
	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
)

// ExpenseService handles the receipted-spend sub-flow: filing an expense
// with its attachment, deleting one, and serving the receipt bytes back.
type ExpenseService struct {
	cashRepo repositories.CashRepository
	receipts storage.ReceiptStore
	policy   *authz.Policy
	notify   *NotificationService
}

// NewExpenseService creates a new expense service
func NewExpenseService(
	cashRepo repositories.CashRepository,
	receipts storage.ReceiptStore,
	policy *authz.Policy,
	notify *NotificationService,
) *ExpenseService {
	return &ExpenseService{
		cashRepo: cashRepo,
		receipts: receipts,
		policy:   policy,
		notify:   notify,
	}
}

// AddExpenseInput represents add expense input
type AddExpenseInput struct {
	Amount      decimal.Decimal
	Description string
	ExpenseDate *time.Time
	Filename    string
	Receipt     io.Reader
}

// Add files an expense against a received/reporting request. The receipt
// blob is written first; if the expense row then fails to commit, the blob
// is removed so no half-created expense survives.
func (s *ExpenseService) Add(ctx context.Context, actor authz.Identity, requestID uint, input *AddExpenseInput) (*models.CashExpense, error) {
	owner, err := s.cashRepo.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpAddExpense, owner.RequesterID); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, domain.Invalid("description is required")
	}
	if input.Receipt == nil {
		return nil, domain.Invalid("a receipt attachment is required")
	}

	handle, err := s.receipts.Save(ctx, input.Receipt)
	if err != nil {
		return nil, err
	}

	exp := &models.CashExpense{
		Amount:           input.Amount,
		Description:      strings.TrimSpace(input.Description),
		ReceiptHandle:    handle,
		OriginalFilename: filepath.Base(input.Filename),
		ExpenseDate:      input.ExpenseDate,
		CreatedBy:        actor.UserID,
	}

	err = s.cashRepo.AddExpense(ctx, requestID, exp, func(req *models.CashRequest, _ domain.Ledger) error {
		if err := domain.EnsureStatus("add expense", req.Status, domain.ExpenseFrom...); err != nil {
			return err
		}
		if req.Status == domain.StatusReceived {
			req.Status = domain.StatusReporting
		}
		return nil
	})
	if err != nil {
		if delErr := s.receipts.Delete(ctx, handle); delErr != nil {
			log.Printf("⚠️ failed to remove receipt %s after aborted expense: %v", handle, delErr)
		}
		return nil, err
	}

	s.notify.NotifyExpense(owner, exp)
	return exp, nil
}

// Delete removes an expense (owner or director). The status does not
// revert even when the last expense goes. The blob delete is best effort:
// a failure is logged and left to the nightly sweep.
func (s *ExpenseService) Delete(ctx context.Context, actor authz.Identity, requestID, expenseID uint) error {
	owner, err := s.cashRepo.RequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.policy.Allow(actor, authz.OpDeleteExpense, owner.RequesterID); err != nil {
		return err
	}

	exp, err := s.cashRepo.DeleteExpense(ctx, requestID, expenseID, func(req *models.CashRequest, _ *models.CashExpense) error {
		return domain.EnsureStatus("delete expense", req.Status, domain.ExpenseFrom...)
	})
	if err != nil {
		return err
	}

	if err := s.receipts.Delete(ctx, exp.ReceiptHandle); err != nil {
		log.Printf("⚠️ failed to delete receipt %s: %v", exp.ReceiptHandle, err)
	}
	return nil
}

// Receipt resolves a handle through its owning expense row, so a handle
// belonging to one request can never be fetched through another request's
// id, and streams the blob back with its content type.
type Receipt struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

// Receipt fetches the attachment bound to the given request
func (s *ExpenseService) Receipt(ctx context.Context, actor authz.Identity, requestID uint, handle string) (*Receipt, error) {
	owner, err := s.cashRepo.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(actor, authz.OpViewRequest, owner.RequesterID); err != nil {
		return nil, err
	}

	exp, err := s.cashRepo.ExpenseByHandle(ctx, requestID, handle)
	if err != nil {
		return nil, err
	}

	body, size, err := s.receipts.Open(ctx, exp.ReceiptHandle)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Body:        body,
		Size:        size,
		ContentType: storage.ContentTypeFor(exp.OriginalFilename),
		Filename:    exp.OriginalFilename,
	}, nil
}
