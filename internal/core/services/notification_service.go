package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/core/domain"
)

// NotificationService posts workflow events to an external webhook. The
// sink is fire-and-forget: every transition reports, no failure ever
// propagates back into the transition itself.
type NotificationService struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewNotificationService creates a new notification service
func NewNotificationService() *NotificationService {
	url := os.Getenv("NOTIFY_WEBHOOK_URL")
	if url != "" {
		log.Println("✅ Notification webhook enabled")
	}
	return &NotificationService{
		webhookURL: url,
		enabled:    url != "",
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

type event struct {
	Event       string         `json:"event"`
	RequestID   uint           `json:"request_id"`
	RequesterID uint           `json:"requester_id"`
	Status      domain.Status  `json:"status"`
	Detail      map[string]any `json:"detail,omitempty"`
	At          time.Time      `json:"at"`
}

func (s *NotificationService) send(name string, req *models.CashRequest, detail map[string]any) {
	if !s.enabled {
		return
	}

	body, err := json.Marshal(event{
		Event:       name,
		RequestID:   req.ID,
		RequesterID: req.RequesterID,
		Status:      req.Status,
		Detail:      detail,
		At:          time.Now(),
	})
	if err != nil {
		return
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("⚠️ notify %s failed: %v", name, err)
		return
	}
	resp.Body.Close()
}

// NotifyCreated reports a newly created cash request
func (s *NotificationService) NotifyCreated(req *models.CashRequest) {
	s.send("cash.created", req, map[string]any{"amount": req.Amount})
}

// NotifyStatusChange reports a lifecycle transition
func (s *NotificationService) NotifyStatusChange(req *models.CashRequest, from domain.Status) {
	s.send("cash.status_changed", req, map[string]any{"from": from})
}

// NotifyExpense reports a filed expense
func (s *NotificationService) NotifyExpense(req *models.CashRequest, exp *models.CashExpense) {
	s.send("cash.expense_added", req, map[string]any{"expense_id": exp.ID, "amount": exp.Amount})
}

// NotifyReturn reports a submitted or confirmed return
func (s *NotificationService) NotifyReturn(req *models.CashRequest, ret *models.CashReturn) {
	name := "cash.return_submitted"
	if ret.Confirmed() {
		name = "cash.return_confirmed"
	}
	s.send(name, req, map[string]any{"return_id": ret.ID, "amount": ret.Amount})
}

// NotifyStaleReporting reminds that a request has sat in REPORTING too long
func (s *NotificationService) NotifyStaleReporting(req *models.CashRequest, since time.Time) {
	s.send("cash.reporting_stale", req, map[string]any{"since": since})
}
