package repositories

import (
	"context"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/core/domain"
)

// RequestFilter narrows the elevated list endpoint
type RequestFilter struct {
	Status    *domain.Status
	Requester *uint
	Offset    int
	Limit     int
}

// TransitionFunc runs inside the repository transaction, after the request
// row has been locked and its ledger recomputed. Mutations it applies to
// req are persisted when it returns nil; any error aborts the transaction.
type TransitionFunc func(req *models.CashRequest, led domain.Ledger) error

// CashRepository is the persistence boundary of the cash advance workflow.
// Every mutating method that takes a TransitionFunc executes the guard and
// the write in a single row-locked transaction, so a stale status or
// remainder can never pass a guard.
type CashRepository interface {
	CreateRequest(ctx context.Context, req *models.CashRequest) error
	RequestByID(ctx context.Context, id uint) (*models.CashRequest, error)
	RequestDetail(ctx context.Context, id uint) (*models.CashRequest, error)
	RequestsByOwner(ctx context.Context, ownerID uint) ([]*models.CashRequest, error)
	Requests(ctx context.Context, f RequestFilter) ([]*models.CashRequest, int64, error)
	RequestByIdemKey(ctx context.Context, ownerID uint, key string) (*models.CashRequest, error)
	LedgerFor(ctx context.Context, req *models.CashRequest) (domain.Ledger, error)

	Transition(ctx context.Context, id uint, fn TransitionFunc) (*models.CashRequest, error)
	AppendMessage(ctx context.Context, id uint, msg *models.CashMessage, fn TransitionFunc) (*models.CashRequest, error)

	AddExpense(ctx context.Context, id uint, exp *models.CashExpense, fn TransitionFunc) error
	DeleteExpense(ctx context.Context, id, expenseID uint, fn func(req *models.CashRequest, exp *models.CashExpense) error) (*models.CashExpense, error)
	ExpenseByHandle(ctx context.Context, requestID uint, handle string) (*models.CashExpense, error)
	ReceiptHandles(ctx context.Context) ([]string, error)

	AddReturn(ctx context.Context, id uint, ret *models.CashReturn, fn TransitionFunc) error
	ReturnByIdemKey(ctx context.Context, requestID uint, key string) (*models.CashReturn, error)
	ConfirmReturn(ctx context.Context, id, returnID uint, fn func(req *models.CashRequest, ret *models.CashReturn) error) (*models.CashReturn, error)

	Summary(ctx context.Context) ([]*models.RequesterSummary, error)
	OwnerBalance(ctx context.Context, ownerID uint) (*models.OwnerBalance, error)
	StaleReporting(ctx context.Context, olderThan time.Time) ([]*models.CashRequest, error)
}

// UserRepository reads the users reference table
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// WorkRepository reads the works reference table
type WorkRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Work, error)
}
