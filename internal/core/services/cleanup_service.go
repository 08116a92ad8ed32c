package services

import (
	"context"
	"log"
	"time"

	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"

	"github.com/robfig/cron/v3"
)

// Receipt blobs younger than this are never swept: their expense row may
// still be mid-commit.
const sweepMinAge = 24 * time.Hour

// Requests sitting in REPORTING longer than this trigger a reminder.
const staleReportingAfter = 30 * 24 * time.Hour

// CleanupService runs the scheduled maintenance: sweeping orphaned receipt
// blobs left behind by failed commits, and reminding about requests stuck
// in REPORTING.
type CleanupService struct {
	cashRepo repositories.CashRepository
	receipts storage.ReceiptStore
	notify   *NotificationService
	schedule string
	cron     *cron.Cron
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(
	cashRepo repositories.CashRepository,
	receipts storage.ReceiptStore,
	notify *NotificationService,
	schedule string,
) *CleanupService {
	return &CleanupService{
		cashRepo: cashRepo,
		receipts: receipts,
		notify:   notify,
		schedule: schedule,
	}
}

// Start schedules the nightly run
func (s *CleanupService) Start() {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		log.Printf("❌ Invalid cleanup schedule %q: %v", s.schedule, err)
		return
	}
	s.cron.Start()
	log.Printf("✅ Cleanup service started [schedule: %s]", s.schedule)
}

// Stop stops the scheduler
func (s *CleanupService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *CleanupService) run() {
	ctx := context.Background()
	if n, err := s.SweepReceipts(ctx); err != nil {
		log.Printf("⚠️ Receipt sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("🧹 Receipt sweep removed %d orphaned blob(s)", n)
	}
	if err := s.RemindStaleReporting(ctx); err != nil {
		log.Printf("⚠️ Stale reporting reminder failed: %v", err)
	}
}

// SweepReceipts removes receipt blobs no expense row references anymore
func (s *CleanupService) SweepReceipts(ctx context.Context) (int, error) {
	handles, err := s.cashRepo.ReceiptHandles(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]bool, len(handles))
	for _, h := range handles {
		referenced[h] = true
	}
	return s.receipts.Sweep(ctx, referenced, sweepMinAge)
}

// RemindStaleReporting notifies about requests stuck in REPORTING
func (s *CleanupService) RemindStaleReporting(ctx context.Context) error {
	cutoff := time.Now().Add(-staleReportingAfter)
	stale, err := s.cashRepo.StaleReporting(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, req := range stale {
		s.notify.NotifyStaleReporting(req, req.UpdatedAt)
	}
	return nil
}
