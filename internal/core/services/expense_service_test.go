package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"servio-crm/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddExpenseMovesReceivedToReporting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")

	exp := env.addExpense(t, env.employee, req.ID, "3000")
	assert.NotEmpty(t, exp.ReceiptHandle)
	assert.Equal(t, "receipt.pdf", exp.OriginalFilename)
	assert.Equal(t, env.employee.UserID, exp.CreatedBy)

	got, err := env.store.RequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReporting, got.Status)

	// A second expense keeps REPORTING
	env.addExpense(t, env.employee, req.ID, "500")
	got, err = env.store.RequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReporting, got.Status)
}

func TestAddExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")

	var valErr *domain.ValidationError

	_, err := env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("0"), Description: "x", Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	assert.ErrorAs(t, err, &valErr)

	_, err = env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("10"), Description: "  ", Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	assert.ErrorAs(t, err, &valErr)

	_, err = env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("10"), Description: "no receipt attached",
	})
	assert.ErrorAs(t, err, &valErr)
}

func TestAddExpenseOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	req := env.receivedRequest(t, "10000")

	_, err := env.expenses.Add(context.Background(), env.other, req.ID, &AddExpenseInput{
		Amount: dec("10"), Description: "someone else's taxi",
		Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Elevated roles cannot spend for the owner either
	_, err = env.expenses.Add(context.Background(), env.director, req.ID, &AddExpenseInput{
		Amount: dec("10"), Description: "director spend",
		Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAddExpenseRemovesBlobWhenRowFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000") // still REQUESTED: guard will fail

	_, err := env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("10"), Description: "too early",
		Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	var stateErr *domain.StateError
	require.ErrorAs(t, err, &stateErr)

	// No orphaned blob survives the aborted insert
	removed, err := env.receipts.Sweep(ctx, map[string]bool{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDeleteExpense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	exp := env.addExpense(t, env.employee, req.ID, "3000")

	err := env.expenses.Delete(ctx, env.other, req.ID, exp.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, env.expenses.Delete(ctx, env.employee, req.ID, exp.ID))

	// Blob is gone along with the row
	_, _, err = env.receipts.Open(ctx, exp.ReceiptHandle)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)

	// The status does not revert to RECEIVED
	got, err := env.store.RequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReporting, got.Status)

	led, err := env.store.LedgerFor(ctx, req)
	require.NoError(t, err)
	assert.True(t, led.Remainder().Equal(dec("10000")))
}

func TestDeleteExpenseByDirector(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	exp := env.addExpense(t, env.employee, req.ID, "3000")

	assert.NoError(t, env.expenses.Delete(ctx, env.director, req.ID, exp.ID))
}

func TestDeleteExpenseAfterCloseConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "1000")
	exp := env.addExpense(t, env.employee, req.ID, "1000")
	_, err := env.cash.Close(ctx, env.director, req.ID, &CloseInput{})
	require.NoError(t, err)

	err = env.expenses.Delete(ctx, env.employee, req.ID, exp.ID)
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestReceiptFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	exp := env.addExpense(t, env.employee, req.ID, "3000")

	receipt, err := env.expenses.Receipt(ctx, env.employee, req.ID, exp.ReceiptHandle)
	require.NoError(t, err)
	defer receipt.Body.Close()

	data, err := io.ReadAll(receipt.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 receipt", string(data))
	assert.Equal(t, "application/pdf", receipt.ContentType)
	assert.Equal(t, "receipt.pdf", receipt.Filename)

	// Director may fetch too
	r2, err := env.expenses.Receipt(ctx, env.director, req.ID, exp.ReceiptHandle)
	require.NoError(t, err)
	r2.Body.Close()

	// Third parties may not
	_, err = env.expenses.Receipt(ctx, env.other, req.ID, exp.ReceiptHandle)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReceiptHandleBoundToItsRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reqA := env.receivedRequest(t, "10000")
	expA := env.addExpense(t, env.employee, reqA.ID, "100")
	reqB := env.receivedRequest(t, "5000")

	// A's handle resolved through B's id must not leak the blob
	_, err := env.expenses.Receipt(ctx, env.employee, reqB.ID, expA.ReceiptHandle)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}
