package repositories

import (
	"context"
	"errors"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCashRepository is the MySQL-backed CashRepository
type GormCashRepository struct {
	db *gorm.DB
}

// NewCashRepository creates a new cash repository
func NewCashRepository(db *gorm.DB) *GormCashRepository {
	return &GormCashRepository{db: db}
}

// CreateRequest creates a new cash request
func (r *GormCashRepository) CreateRequest(ctx context.Context, req *models.CashRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// RequestByID gets a request with its display relations
func (r *GormCashRepository) RequestByID(ctx context.Context, id uint) (*models.CashRequest, error) {
	var req models.CashRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Preload("Approver").
		Preload("Work").
		First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// RequestDetail gets a request with all child rows preloaded
func (r *GormCashRepository) RequestDetail(ctx context.Context, id uint) (*models.CashRequest, error) {
	var req models.CashRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Preload("Approver").
		Preload("Work").
		Preload("Expenses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Returns", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Returns.Confirmer").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Messages.Author").
		First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// RequestsByOwner lists a requester's own requests, newest first
func (r *GormCashRepository) RequestsByOwner(ctx context.Context, ownerID uint) ([]*models.CashRequest, error) {
	var reqs []*models.CashRequest
	err := r.db.WithContext(ctx).
		Preload("Work").
		Where("requester_id = ?", ownerID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// Requests lists all requests with optional status/requester filters
func (r *GormCashRepository) Requests(ctx context.Context, f RequestFilter) ([]*models.CashRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.CashRequest{})
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Requester != nil {
		q = q.Where("requester_id = ?", *f.Requester)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reqs []*models.CashRequest
	err := q.
		Preload("Requester").
		Preload("Work").
		Order("created_at DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&reqs).Error
	return reqs, total, err
}

// RequestByIdemKey finds an owner's request created with the given key
func (r *GormCashRepository) RequestByIdemKey(ctx context.Context, ownerID uint, key string) (*models.CashRequest, error) {
	var req models.CashRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND idempotency_key = ?", ownerID, key).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// LedgerFor derives the ledger outside any transaction (read paths)
func (r *GormCashRepository) LedgerFor(ctx context.Context, req *models.CashRequest) (domain.Ledger, error) {
	return ledgerSums(r.db.WithContext(ctx), req)
}

// Transition locks the request row, recomputes its ledger, runs fn and
// persists the mutated row, all in one transaction
func (r *GormCashRepository) Transition(ctx context.Context, id uint, fn TransitionFunc) (*models.CashRequest, error) {
	var out *models.CashRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		led, err := ledgerSums(tx, req)
		if err != nil {
			return err
		}
		if err := fn(req, led); err != nil {
			return err
		}
		if err := tx.Save(req).Error; err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

// AppendMessage is Transition plus an appended message row
func (r *GormCashRepository) AppendMessage(ctx context.Context, id uint, msg *models.CashMessage, fn TransitionFunc) (*models.CashRequest, error) {
	var out *models.CashRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		led, err := ledgerSums(tx, req)
		if err != nil {
			return err
		}
		if err := fn(req, led); err != nil {
			return err
		}
		msg.RequestID = req.ID
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if err := tx.Save(req).Error; err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

// AddExpense inserts the expense row and persists any status flip fn
// applied, under the request row lock
func (r *GormCashRepository) AddExpense(ctx context.Context, id uint, exp *models.CashExpense, fn TransitionFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		led, err := ledgerSums(tx, req)
		if err != nil {
			return err
		}
		if err := fn(req, led); err != nil {
			return err
		}
		exp.RequestID = req.ID
		if err := tx.Create(exp).Error; err != nil {
			return err
		}
		return tx.Save(req).Error
	})
}

// DeleteExpense hard-deletes the expense after fn approves; the caller is
// responsible for the receipt blob
func (r *GormCashRepository) DeleteExpense(ctx context.Context, id, expenseID uint, fn func(req *models.CashRequest, exp *models.CashExpense) error) (*models.CashExpense, error) {
	var out *models.CashExpense
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		var exp models.CashExpense
		err = tx.Where("id = ? AND request_id = ?", expenseID, id).First(&exp).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrExpenseNotFound
			}
			return err
		}
		if err := fn(req, &exp); err != nil {
			return err
		}
		if err := tx.Delete(&exp).Error; err != nil {
			return err
		}
		out = &exp
		return nil
	})
	return out, err
}

// ExpenseByHandle resolves a receipt handle only through its owning
// expense row bound to the given request id
func (r *GormCashRepository) ExpenseByHandle(ctx context.Context, requestID uint, handle string) (*models.CashExpense, error) {
	var exp models.CashExpense
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND receipt_handle = ?", requestID, handle).
		First(&exp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return &exp, nil
}

// ReceiptHandles lists every handle referenced by an expense row
func (r *GormCashRepository) ReceiptHandles(ctx context.Context) ([]string, error) {
	var handles []string
	err := r.db.WithContext(ctx).
		Model(&models.CashExpense{}).
		Pluck("receipt_handle", &handles).Error
	return handles, err
}

// AddReturn inserts the return row after fn validates it against the
// ledger computed under the request row lock
func (r *GormCashRepository) AddReturn(ctx context.Context, id uint, ret *models.CashReturn, fn TransitionFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		led, err := ledgerSums(tx, req)
		if err != nil {
			return err
		}
		if err := fn(req, led); err != nil {
			return err
		}
		ret.RequestID = req.ID
		return tx.Create(ret).Error
	})
}

// ReturnByIdemKey finds a return submitted with the given key
func (r *GormCashRepository) ReturnByIdemKey(ctx context.Context, requestID uint, key string) (*models.CashReturn, error) {
	var ret models.CashReturn
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND idempotency_key = ?", requestID, key).
		First(&ret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReturnNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// ConfirmReturn persists the confirmation fn applies to the return row
func (r *GormCashRepository) ConfirmReturn(ctx context.Context, id, returnID uint, fn func(req *models.CashRequest, ret *models.CashReturn) error) (*models.CashReturn, error) {
	var out *models.CashReturn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		var ret models.CashReturn
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND request_id = ?", returnID, id).
			First(&ret).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReturnNotFound
			}
			return err
		}
		if err := fn(req, &ret); err != nil {
			return err
		}
		if err := tx.Save(&ret).Error; err != nil {
			return err
		}
		out = &ret
		return nil
	})
	return out, err
}

// Summary aggregates issued / spent / returned(confirmed) / balance per
// requester over requests whose money was actually issued
func (r *GormCashRepository) Summary(ctx context.Context) ([]*models.RequesterSummary, error) {
	db := r.db.WithContext(ctx)
	issuedStatuses := []domain.Status{domain.StatusReceived, domain.StatusReporting, domain.StatusClosed}

	type totalRow struct {
		RequesterID uint
		Total       decimal.Decimal
	}

	var issued []totalRow
	err := db.Model(&models.CashRequest{}).
		Select("requester_id, COALESCE(SUM(amount), 0) AS total").
		Where("status IN ?", issuedStatuses).
		Group("requester_id").
		Scan(&issued).Error
	if err != nil {
		return nil, err
	}

	byOwner := make(map[uint]*models.RequesterSummary, len(issued))
	order := make([]uint, 0, len(issued))
	zero := decimal.Zero
	for _, row := range issued {
		byOwner[row.RequesterID] = &models.RequesterSummary{
			RequesterID: row.RequesterID,
			Issued:      row.Total,
			Spent:       zero,
			Returned:    zero,
			Balance:     row.Total,
		}
		order = append(order, row.RequesterID)
	}
	if len(order) == 0 {
		return []*models.RequesterSummary{}, nil
	}

	var spent []totalRow
	err = db.Table("cash_expenses e").
		Select("r.requester_id AS requester_id, COALESCE(SUM(e.amount), 0) AS total").
		Joins("JOIN cash_requests r ON r.id = e.request_id").
		Where("r.status IN ?", issuedStatuses).
		Group("r.requester_id").
		Scan(&spent).Error
	if err != nil {
		return nil, err
	}
	for _, row := range spent {
		if s, ok := byOwner[row.RequesterID]; ok {
			s.Spent = row.Total
			s.Balance = s.Balance.Sub(row.Total)
		}
	}

	var returned []totalRow
	err = db.Table("cash_returns ret").
		Select("r.requester_id AS requester_id, COALESCE(SUM(ret.amount), 0) AS total").
		Joins("JOIN cash_requests r ON r.id = ret.request_id").
		Where("r.status IN ? AND ret.confirmed_at IS NOT NULL", issuedStatuses).
		Group("r.requester_id").
		Scan(&returned).Error
	if err != nil {
		return nil, err
	}
	for _, row := range returned {
		if s, ok := byOwner[row.RequesterID]; ok {
			s.Returned = row.Total
			s.Balance = s.Balance.Sub(row.Total)
		}
	}

	// Pending (unconfirmed) returns reduce the balance but are not
	// reported in the returned column
	var pending []totalRow
	err = db.Table("cash_returns ret").
		Select("r.requester_id AS requester_id, COALESCE(SUM(ret.amount), 0) AS total").
		Joins("JOIN cash_requests r ON r.id = ret.request_id").
		Where("r.status IN ? AND ret.confirmed_at IS NULL", issuedStatuses).
		Group("r.requester_id").
		Scan(&pending).Error
	if err != nil {
		return nil, err
	}
	for _, row := range pending {
		if s, ok := byOwner[row.RequesterID]; ok {
			s.Balance = s.Balance.Sub(row.Total)
		}
	}

	var users []models.User
	if err := db.Where("id IN ?", order).Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
	}

	out := make([]*models.RequesterSummary, 0, len(order))
	for _, id := range order {
		s := byOwner[id]
		s.RequesterName = names[id]
		out = append(out, s)
	}
	return out, nil
}

// OwnerBalance aggregates the caller's active requests plus the count of
// their non-terminal requests
func (r *GormCashRepository) OwnerBalance(ctx context.Context, ownerID uint) (*models.OwnerBalance, error) {
	db := r.db.WithContext(ctx)
	active := []domain.Status{domain.StatusReceived, domain.StatusReporting}

	out := &models.OwnerBalance{
		Issued:   decimal.Zero,
		Spent:    decimal.Zero,
		Returned: decimal.Zero,
		Pending:  decimal.Zero,
	}

	var err error
	if out.Issued, err = scanSum(db.Model(&models.CashRequest{}).
		Where("requester_id = ? AND status IN ?", ownerID, active),
		"COALESCE(SUM(amount), 0)"); err != nil {
		return nil, err
	}
	if out.Spent, err = scanSum(db.Table("cash_expenses e").
		Joins("JOIN cash_requests r ON r.id = e.request_id").
		Where("r.requester_id = ? AND r.status IN ?", ownerID, active),
		"COALESCE(SUM(e.amount), 0)"); err != nil {
		return nil, err
	}
	if out.Returned, err = scanSum(db.Table("cash_returns ret").
		Joins("JOIN cash_requests r ON r.id = ret.request_id").
		Where("r.requester_id = ? AND r.status IN ? AND ret.confirmed_at IS NOT NULL", ownerID, active),
		"COALESCE(SUM(ret.amount), 0)"); err != nil {
		return nil, err
	}
	if out.Pending, err = scanSum(db.Table("cash_returns ret").
		Joins("JOIN cash_requests r ON r.id = ret.request_id").
		Where("r.requester_id = ? AND r.status IN ? AND ret.confirmed_at IS NULL", ownerID, active),
		"COALESCE(SUM(ret.amount), 0)"); err != nil {
		return nil, err
	}
	out.Balance = out.Issued.Sub(out.Spent).Sub(out.Returned).Sub(out.Pending)

	err = db.Model(&models.CashRequest{}).
		Where("requester_id = ? AND status IN ?", ownerID, active).
		Count(&out.ActiveCount).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.CashRequest{}).
		Where("requester_id = ? AND status NOT IN ?", ownerID,
			[]domain.Status{domain.StatusRejected, domain.StatusClosed}).
		Count(&out.OpenRequests).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StaleReporting lists requests stuck in REPORTING since before olderThan
func (r *GormCashRepository) StaleReporting(ctx context.Context, olderThan time.Time) ([]*models.CashRequest, error) {
	var reqs []*models.CashRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Where("status = ? AND updated_at < ?", domain.StatusReporting, olderThan).
		Find(&reqs).Error
	return reqs, err
}

// ============================================================
// helpers
// ============================================================

func lockRequest(tx *gorm.DB, id uint) (*models.CashRequest, error) {
	var req models.CashRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ledgerSums recomputes the ledger from the child tables. Inside a
// Transition this runs under the request row lock, so concurrent
// submissions serialize on the same figures.
func ledgerSums(tx *gorm.DB, req *models.CashRequest) (domain.Ledger, error) {
	spent, err := scanSum(tx.Model(&models.CashExpense{}).
		Where("request_id = ?", req.ID), "COALESCE(SUM(amount), 0)")
	if err != nil {
		return domain.Ledger{}, err
	}
	returned, err := scanSum(tx.Model(&models.CashReturn{}).
		Where("request_id = ? AND confirmed_at IS NOT NULL", req.ID), "COALESCE(SUM(amount), 0)")
	if err != nil {
		return domain.Ledger{}, err
	}
	pending, err := scanSum(tx.Model(&models.CashReturn{}).
		Where("request_id = ? AND confirmed_at IS NULL", req.ID), "COALESCE(SUM(amount), 0)")
	if err != nil {
		return domain.Ledger{}, err
	}
	return domain.NewLedger(req.Amount, spent, returned, pending), nil
}

func scanSum(q *gorm.DB, expr string) (decimal.Decimal, error) {
	var d decimal.Decimal
	row := q.Select(expr).Row()
	if err := row.Scan(&d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
