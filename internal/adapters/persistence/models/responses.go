package models

import (
	"time"

	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
)

// BalanceResponse is the derived ledger as exposed to clients
type BalanceResponse struct {
	Approved  decimal.Decimal `json:"approved"`
	Spent     decimal.Decimal `json:"spent"`
	Returned  decimal.Decimal `json:"returned"`
	Pending   decimal.Decimal `json:"pending"`
	Remainder decimal.Decimal `json:"remainder"`
}

// NewBalanceResponse converts a ledger to its response form
func NewBalanceResponse(l domain.Ledger) *BalanceResponse {
	return &BalanceResponse{
		Approved:  l.Approved,
		Spent:     l.Spent,
		Returned:  l.Returned,
		Pending:   l.Pending,
		Remainder: l.Remainder(),
	}
}

// CashRequestResponse DTO
type CashRequestResponse struct {
	ID              uint               `json:"id"`
	RequesterID     uint               `json:"requester_id"`
	RequesterName   string             `json:"requester_name,omitempty"`
	Type            domain.RequestType `json:"type"`
	WorkID          *uint              `json:"work_id"`
	WorkName        string             `json:"work_name,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Purpose         string             `json:"purpose"`
	CoverLetter     string             `json:"cover_letter,omitempty"`
	Status          domain.Status      `json:"status"`
	ApproverID      *uint              `json:"approver_id"`
	ApproverName    string             `json:"approver_name,omitempty"`
	ApproverComment string             `json:"approver_comment,omitempty"`
	ReceivedAt      *time.Time         `json:"received_at"`
	ClosedAt        *time.Time         `json:"closed_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Balance         *BalanceResponse   `json:"balance,omitempty"`
}

// ToResponse converts a request to its DTO, attaching the derived balance
// when the caller supplies one
func (r *CashRequest) ToResponse(led *domain.Ledger) *CashRequestResponse {
	resp := &CashRequestResponse{
		ID:              r.ID,
		RequesterID:     r.RequesterID,
		Type:            r.Type,
		WorkID:          r.WorkID,
		Amount:          r.Amount,
		Purpose:         r.Purpose,
		CoverLetter:     r.CoverLetter,
		Status:          r.Status,
		ApproverID:      r.ApproverID,
		ApproverComment: r.ApproverComment,
		ReceivedAt:      r.ReceivedAt,
		ClosedAt:        r.ClosedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	if r.Requester != nil {
		resp.RequesterName = r.Requester.FullName
	}
	if r.Approver != nil {
		resp.ApproverName = r.Approver.FullName
	}
	if r.Work != nil {
		resp.WorkName = r.Work.Name
	}
	if led != nil {
		resp.Balance = NewBalanceResponse(*led)
	}

	return resp
}

// CashRequestDetail is the full detail view: request, children, balance
type CashRequestDetail struct {
	Request  *CashRequestResponse `json:"request"`
	Expenses []CashExpense        `json:"expenses"`
	Returns  []CashReturn         `json:"returns"`
	Messages []CashMessage        `json:"messages"`
}

// RequesterSummary is one row of the cross-requester aggregate.
// Returned counts confirmed returns only.
type RequesterSummary struct {
	RequesterID   uint            `json:"requester_id"`
	RequesterName string          `json:"requester_name"`
	Issued        decimal.Decimal `json:"issued"`
	Spent         decimal.Decimal `json:"spent"`
	Returned      decimal.Decimal `json:"returned"`
	Balance       decimal.Decimal `json:"balance"`
}

// OwnerBalance aggregates a requester's active (received/reporting)
// requests plus the count of their non-terminal requests
type OwnerBalance struct {
	Issued       decimal.Decimal `json:"issued"`
	Spent        decimal.Decimal `json:"spent"`
	Returned     decimal.Decimal `json:"returned"`
	Pending      decimal.Decimal `json:"pending"`
	Balance      decimal.Decimal `json:"balance"`
	ActiveCount  int64           `json:"active_count"`
	OpenRequests int64           `json:"open_requests"`
}
