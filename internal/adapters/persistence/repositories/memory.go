package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory CashRepository used by tests. A single mutex
// serializes every mutating call, which matches the row-lock semantics of
// the MySQL implementation.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	works    map[uint]*models.Work
	requests map[uint]*models.CashRequest
	expenses map[uint]*models.CashExpense
	returns  map[uint]*models.CashReturn
	messages map[uint]*models.CashMessage
	seq      uint
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uint]*models.User),
		works:    make(map[uint]*models.Work),
		requests: make(map[uint]*models.CashRequest),
		expenses: make(map[uint]*models.CashExpense),
		returns:  make(map[uint]*models.CashReturn),
		messages: make(map[uint]*models.CashMessage),
	}
}

func (m *MemoryStore) nextID() uint {
	m.seq++
	return m.seq
}

// AddUser seeds a reference user
func (m *MemoryStore) AddUser(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID()
	}
	m.users[u.ID] = u
	return u
}

// AddWork seeds a reference work
func (m *MemoryStore) AddWork(w *models.Work) *models.Work {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == 0 {
		w.ID = m.nextID()
	}
	m.works[w.ID] = w
	return w
}

// Works returns the store's WorkRepository view
func (m *MemoryStore) Works() WorkRepository { return &memoryWorks{m} }

type memoryWorks struct{ m *MemoryStore }

func (r *memoryWorks) GetByID(_ context.Context, id uint) (*models.Work, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.works[id]
	if !ok {
		return nil, domain.ErrWorkNotFound
	}
	return w, nil
}

// ============================================================
// CashRepository
// ============================================================

func (m *MemoryStore) CreateRequest(_ context.Context, req *models.CashRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.IdempotencyKey != nil {
		for _, r := range m.requests {
			if r.RequesterID == req.RequesterID && r.IdempotencyKey != nil &&
				*r.IdempotencyKey == *req.IdempotencyKey {
				return fmt.Errorf("duplicate idempotency key")
			}
		}
	}
	req.ID = m.nextID()
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) RequestByID(_ context.Context, id uint) (*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRequest(id)
}

func (m *MemoryStore) getRequest(id uint) (*models.CashRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	cp.Requester = m.users[cp.RequesterID]
	if cp.ApproverID != nil {
		cp.Approver = m.users[*cp.ApproverID]
	}
	if cp.WorkID != nil {
		cp.Work = m.works[*cp.WorkID]
	}
	return &cp, nil
}

func (m *MemoryStore) RequestDetail(_ context.Context, id uint) (*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.getRequest(id)
	if err != nil {
		return nil, err
	}
	for _, e := range m.expenses {
		if e.RequestID == id {
			req.Expenses = append(req.Expenses, *e)
		}
	}
	for _, r := range m.returns {
		if r.RequestID == id {
			req.Returns = append(req.Returns, *r)
		}
	}
	for _, msg := range m.messages {
		if msg.RequestID == id {
			cp := *msg
			cp.Author = m.users[cp.AuthorID]
			req.Messages = append(req.Messages, cp)
		}
	}
	sort.Slice(req.Expenses, func(i, j int) bool { return req.Expenses[i].ID < req.Expenses[j].ID })
	sort.Slice(req.Returns, func(i, j int) bool { return req.Returns[i].ID < req.Returns[j].ID })
	sort.Slice(req.Messages, func(i, j int) bool { return req.Messages[i].ID < req.Messages[j].ID })
	return req, nil
}

func (m *MemoryStore) RequestsByOwner(_ context.Context, ownerID uint) ([]*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CashRequest
	for id, r := range m.requests {
		if r.RequesterID == ownerID {
			req, _ := m.getRequest(id)
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryStore) Requests(_ context.Context, f RequestFilter) ([]*models.CashRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.CashRequest
	for id, r := range m.requests {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Requester != nil && r.RequesterID != *f.Requester {
			continue
		}
		req, _ := m.getRequest(id)
		all = append(all, req)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if f.Offset >= len(all) {
		return []*models.CashRequest{}, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (m *MemoryStore) RequestByIdemKey(_ context.Context, ownerID uint, key string) (*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.requests {
		if r.RequesterID == ownerID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			return m.getRequest(id)
		}
	}
	return nil, domain.ErrRequestNotFound
}

func (m *MemoryStore) LedgerFor(_ context.Context, req *models.CashRequest) (domain.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger(req), nil
}

func (m *MemoryStore) ledger(req *models.CashRequest) domain.Ledger {
	spent, returned, pending := decimal.Zero, decimal.Zero, decimal.Zero
	for _, e := range m.expenses {
		if e.RequestID == req.ID {
			spent = spent.Add(e.Amount)
		}
	}
	for _, r := range m.returns {
		if r.RequestID != req.ID {
			continue
		}
		if r.Confirmed() {
			returned = returned.Add(r.Amount)
		} else {
			pending = pending.Add(r.Amount)
		}
	}
	return domain.NewLedger(req.Amount, spent, returned, pending)
}

func (m *MemoryStore) Transition(_ context.Context, id uint, fn TransitionFunc) (*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	if err := fn(&cp, m.ledger(req)); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	m.requests[id] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, id uint, msg *models.CashMessage, fn TransitionFunc) (*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	if err := fn(&cp, m.ledger(req)); err != nil {
		return nil, err
	}
	msg.ID = m.nextID()
	msg.RequestID = id
	msg.CreatedAt = time.Now()
	mcp := *msg
	m.messages[msg.ID] = &mcp
	cp.UpdatedAt = time.Now()
	m.requests[id] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) AddExpense(_ context.Context, id uint, exp *models.CashExpense, fn TransitionFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	cp := *req
	if err := fn(&cp, m.ledger(req)); err != nil {
		return err
	}
	exp.ID = m.nextID()
	exp.RequestID = id
	exp.CreatedAt = time.Now()
	ecp := *exp
	m.expenses[exp.ID] = &ecp
	cp.UpdatedAt = time.Now()
	m.requests[id] = &cp
	return nil
}

func (m *MemoryStore) DeleteExpense(_ context.Context, id, expenseID uint, fn func(req *models.CashRequest, exp *models.CashExpense) error) (*models.CashExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	exp, ok := m.expenses[expenseID]
	if !ok || exp.RequestID != id {
		return nil, domain.ErrExpenseNotFound
	}
	cp := *req
	ecp := *exp
	if err := fn(&cp, &ecp); err != nil {
		return nil, err
	}
	delete(m.expenses, expenseID)
	return &ecp, nil
}

func (m *MemoryStore) ExpenseByHandle(_ context.Context, requestID uint, handle string) (*models.CashExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.expenses {
		if e.RequestID == requestID && e.ReceiptHandle == handle {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrReceiptNotFound
}

func (m *MemoryStore) ReceiptHandles(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles := make([]string, 0, len(m.expenses))
	for _, e := range m.expenses {
		handles = append(handles, e.ReceiptHandle)
	}
	return handles, nil
}

func (m *MemoryStore) AddReturn(_ context.Context, id uint, ret *models.CashReturn, fn TransitionFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	cp := *req
	if err := fn(&cp, m.ledger(req)); err != nil {
		return err
	}
	ret.ID = m.nextID()
	ret.RequestID = id
	ret.CreatedAt = time.Now()
	rcp := *ret
	m.returns[ret.ID] = &rcp
	m.requests[id] = &cp
	return nil
}

func (m *MemoryStore) ReturnByIdemKey(_ context.Context, requestID uint, key string) (*models.CashReturn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.returns {
		if r.RequestID == requestID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrReturnNotFound
}

func (m *MemoryStore) ConfirmReturn(_ context.Context, id, returnID uint, fn func(req *models.CashRequest, ret *models.CashReturn) error) (*models.CashReturn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	ret, ok := m.returns[returnID]
	if !ok || ret.RequestID != id {
		return nil, domain.ErrReturnNotFound
	}
	rcp := *req
	cp := *ret
	if err := fn(&rcp, &cp); err != nil {
		return nil, err
	}
	m.returns[returnID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) Summary(_ context.Context) ([]*models.RequesterSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issued := map[uint]bool{}
	rows := map[uint]*models.RequesterSummary{}
	for _, r := range m.requests {
		if !r.Status.Active() && r.Status != domain.StatusClosed {
			continue
		}
		issued[r.ID] = true
		s, ok := rows[r.RequesterID]
		if !ok {
			s = &models.RequesterSummary{
				RequesterID: r.RequesterID,
				Issued:      decimal.Zero,
				Spent:       decimal.Zero,
				Returned:    decimal.Zero,
			}
			if u := m.users[r.RequesterID]; u != nil {
				s.RequesterName = u.FullName
			}
			rows[r.RequesterID] = s
		}
		s.Issued = s.Issued.Add(r.Amount)
	}
	pending := map[uint]decimal.Decimal{}
	for _, e := range m.expenses {
		if issued[e.RequestID] {
			owner := m.requests[e.RequestID].RequesterID
			rows[owner].Spent = rows[owner].Spent.Add(e.Amount)
		}
	}
	for _, ret := range m.returns {
		if !issued[ret.RequestID] {
			continue
		}
		owner := m.requests[ret.RequestID].RequesterID
		if ret.Confirmed() {
			rows[owner].Returned = rows[owner].Returned.Add(ret.Amount)
		} else {
			p, ok := pending[owner]
			if !ok {
				p = decimal.Zero
			}
			pending[owner] = p.Add(ret.Amount)
		}
	}
	out := make([]*models.RequesterSummary, 0, len(rows))
	for owner, s := range rows {
		s.Balance = s.Issued.Sub(s.Spent).Sub(s.Returned)
		if p, ok := pending[owner]; ok {
			s.Balance = s.Balance.Sub(p)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequesterID < out[j].RequesterID })
	return out, nil
}

func (m *MemoryStore) OwnerBalance(_ context.Context, ownerID uint) (*models.OwnerBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &models.OwnerBalance{
		Issued:   decimal.Zero,
		Spent:    decimal.Zero,
		Returned: decimal.Zero,
		Pending:  decimal.Zero,
	}
	active := map[uint]bool{}
	for _, r := range m.requests {
		if r.RequesterID != ownerID {
			continue
		}
		if !r.Status.Terminal() {
			out.OpenRequests++
		}
		if r.Status.Active() {
			active[r.ID] = true
			out.ActiveCount++
			out.Issued = out.Issued.Add(r.Amount)
		}
	}
	for _, e := range m.expenses {
		if active[e.RequestID] {
			out.Spent = out.Spent.Add(e.Amount)
		}
	}
	for _, r := range m.returns {
		if !active[r.RequestID] {
			continue
		}
		if r.Confirmed() {
			out.Returned = out.Returned.Add(r.Amount)
		} else {
			out.Pending = out.Pending.Add(r.Amount)
		}
	}
	out.Balance = out.Issued.Sub(out.Spent).Sub(out.Returned).Sub(out.Pending)
	return out, nil
}

func (m *MemoryStore) StaleReporting(_ context.Context, olderThan time.Time) ([]*models.CashRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CashRequest
	for id, r := range m.requests {
		if r.Status == domain.StatusReporting && r.UpdatedAt.Before(olderThan) {
			req, _ := m.getRequest(id)
			out = append(out, req)
		}
	}
	return out, nil
}
