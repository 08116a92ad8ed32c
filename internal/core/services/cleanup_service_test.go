package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"
	"servio-crm/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepReceiptsRemovesOrphansOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	receipts, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	store := repositories.NewMemoryStore()
	cleanup := NewCleanupService(store, receipts, NewNotificationService(), "30 2 * * *")

	// Referenced blob: backed by an expense row
	env := newTestEnvWithReceipts(t, store, receipts)
	req := env.receivedRequest(t, "1000")
	exp := env.addExpense(t, env.employee, req.ID, "100")

	// Orphan blob: upload whose row never committed
	orphan, err := receipts.Save(ctx, strings.NewReader("orphan"))
	require.NoError(t, err)

	// Age everything past the 24h guard
	old := time.Now().Add(-48 * time.Hour)
	for _, h := range []string{exp.ReceiptHandle, orphan} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, h), old, old))
	}

	removed, err := cleanup.SweepReceipts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, _, err = receipts.Open(ctx, exp.ReceiptHandle)
	assert.NoError(t, err)
	_, _, err = receipts.Open(ctx, orphan)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}

func TestRemindStaleReportingNoRows(t *testing.T) {
	store := repositories.NewMemoryStore()
	receipts, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cleanup := NewCleanupService(store, receipts, NewNotificationService(), "30 2 * * *")

	// Fresh store: nothing stale, nothing to notify
	assert.NoError(t, cleanup.RemindStaleReporting(context.Background()))
}
