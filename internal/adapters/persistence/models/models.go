package models

import (
	"time"

	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Reference tables (read-only for this subsystem)
// ============================================================

// User represents the users reference table. Identity and role storage are
// owned by the identity provider; this table is joined for display labels
// and seeded only in dev mode.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	FullName  string    `gorm:"size:100" json:"full_name"`
	Password  string    `gorm:"size:255" json:"-"`
	Role      string    `gorm:"size:30;default:'EMPLOYEE'" json:"role"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Work represents the works/projects reference table (display joins only)
type Work struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;size:30;not null" json:"code"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Customer  string    `gorm:"size:200" json:"customer"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Work) TableName() string {
	return "works"
}

// ============================================================
// Cash advance tables
// ============================================================

// CashRequest is one issuance of money to a requester
type CashRequest struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	RequesterID     uint               `gorm:"not null;index;uniqueIndex:uniq_requester_idem" json:"requester_id"`
	Type            domain.RequestType `gorm:"size:10;not null" json:"type"`
	WorkID          *uint              `json:"work_id"`
	Amount          decimal.Decimal    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Purpose         string             `gorm:"type:text;not null" json:"purpose"`
	CoverLetter     string             `gorm:"type:text" json:"cover_letter"`
	Status          domain.Status      `gorm:"size:20;not null;index;default:'REQUESTED'" json:"status"`
	QuestionOrigin  *domain.Status     `gorm:"size:20" json:"-"`
	ApproverID      *uint              `json:"approver_id"`
	ApproverComment string             `gorm:"type:text" json:"approver_comment"`
	IdempotencyKey  *string            `gorm:"size:64;uniqueIndex:uniq_requester_idem" json:"-"`
	ReceivedAt      *time.Time         `json:"received_at"`
	ClosedAt        *time.Time         `json:"closed_at"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Requester *User         `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Approver  *User         `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Work      *Work         `gorm:"foreignKey:WorkID" json:"work,omitempty"`
	Expenses  []CashExpense `gorm:"foreignKey:RequestID" json:"expenses,omitempty"`
	Returns   []CashReturn  `gorm:"foreignKey:RequestID" json:"returns,omitempty"`
	Messages  []CashMessage `gorm:"foreignKey:RequestID" json:"messages,omitempty"`
}

func (CashRequest) TableName() string {
	return "cash_requests"
}

// CashExpense is a receipted spend against a request
type CashExpense struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	RequestID        uint            `gorm:"not null;index" json:"request_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	ReceiptHandle    string          `gorm:"size:36;uniqueIndex;not null" json:"receipt_handle"`
	OriginalFilename string          `gorm:"size:255" json:"original_filename"`
	ExpenseDate      *time.Time      `gorm:"type:date" json:"expense_date"`
	CreatedBy        uint            `gorm:"not null" json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (CashExpense) TableName() string {
	return "cash_expenses"
}

// CashReturn is unspent money handed back; confirmed by a director once
type CashReturn struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RequestID      uint            `gorm:"not null;index;uniqueIndex:uniq_request_ret_idem" json:"request_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Note           string          `gorm:"type:text" json:"note"`
	IdempotencyKey *string         `gorm:"size:64;uniqueIndex:uniq_request_ret_idem" json:"-"`
	ConfirmedBy    *uint           `json:"confirmed_by"`
	ConfirmedAt    *time.Time      `json:"confirmed_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Confirmer *User `gorm:"foreignKey:ConfirmedBy" json:"confirmer,omitempty"`
}

func (CashReturn) TableName() string {
	return "cash_returns"
}

// Confirmed reports whether a director has confirmed the return
func (r *CashReturn) Confirmed() bool {
	return r.ConfirmedAt != nil
}

// CashMessage is an append-only note tied to a request
type CashMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;index" json:"request_id"`
	AuthorID  uint      `gorm:"not null" json:"author_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (CashMessage) TableName() string {
	return "cash_messages"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables owned by this service
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Work{},
		&CashRequest{},
		&CashExpense{},
		&CashReturn{},
		&CashMessage{},
	)
}
