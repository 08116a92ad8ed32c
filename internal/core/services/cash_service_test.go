package services

import (
	"context"
	"strings"
	"testing"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/adapters/storage"
	"servio-crm/internal/core/authz"
	"servio-crm/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    *repositories.MemoryStore
	receipts *storage.FileStore
	cash     *CashService
	expenses *ExpenseService

	employee authz.Identity
	other    authz.Identity
	director authz.Identity
	work     *models.Work
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repositories.NewMemoryStore()
	receipts, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return newTestEnvWithReceipts(t, store, receipts)
}

func newTestEnvWithReceipts(t *testing.T, store *repositories.MemoryStore, receipts *storage.FileStore) *testEnv {
	t.Helper()

	emp := store.AddUser(&models.User{Username: "somchai", FullName: "Somchai Jaidee", Role: "EMPLOYEE"})
	oth := store.AddUser(&models.User{Username: "pranee", FullName: "Pranee Suksawat", Role: "EMPLOYEE"})
	dir := store.AddUser(&models.User{Username: "wichai", FullName: "Wichai Thongdee", Role: "DIRECTOR"})
	work := store.AddWork(&models.Work{Code: "W-2026-001", Name: "Warehouse network refresh"})

	policy := authz.NewPolicy("DIRECTOR")
	notify := NewNotificationService()

	return &testEnv{
		store:    store,
		receipts: receipts,
		cash:     NewCashService(store, store.Works(), policy, notify),
		expenses: NewExpenseService(store, receipts, policy, notify),
		employee: authz.Identity{UserID: emp.ID, Username: emp.Username, Role: emp.Role},
		other:    authz.Identity{UserID: oth.ID, Username: oth.Username, Role: oth.Role},
		director: authz.Identity{UserID: dir.ID, Username: dir.Username, Role: dir.Role},
		work:     work,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newRequest creates a LOAN request owned by the employee
func (e *testEnv) newRequest(t *testing.T, amount string) *models.CashRequest {
	t.Helper()
	req, err := e.cash.Create(context.Background(), e.employee, &CreateInput{
		Type:    domain.TypeLoan,
		Amount:  dec(amount),
		Purpose: "site visit expenses",
	})
	require.NoError(t, err)
	return req
}

// receivedRequest drives a fresh request to RECEIVED
func (e *testEnv) receivedRequest(t *testing.T, amount string) *models.CashRequest {
	t.Helper()
	ctx := context.Background()
	req := e.newRequest(t, amount)
	_, err := e.cash.Approve(ctx, e.director, req.ID)
	require.NoError(t, err)
	req, err = e.cash.Receive(ctx, e.employee, req.ID)
	require.NoError(t, err)
	return req
}

// addExpense files an expense with a dummy receipt
func (e *testEnv) addExpense(t *testing.T, actor authz.Identity, requestID uint, amount string) *models.CashExpense {
	t.Helper()
	exp, err := e.expenses.Add(context.Background(), actor, requestID, &AddExpenseInput{
		Amount:      dec(amount),
		Description: "taxi to customer site",
		Filename:    "receipt.pdf",
		Receipt:     strings.NewReader("%PDF-1.4 receipt"),
	})
	require.NoError(t, err)
	return exp
}

// ============================================================
// Create
// ============================================================

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *CreateInput
	}{
		{"unknown type", &CreateInput{Type: "GRANT", Amount: dec("100"), Purpose: "x"}},
		{"zero amount", &CreateInput{Type: domain.TypeLoan, Amount: dec("0"), Purpose: "x"}},
		{"negative amount", &CreateInput{Type: domain.TypeLoan, Amount: dec("-10"), Purpose: "x"}},
		{"sub-satang amount", &CreateInput{Type: domain.TypeLoan, Amount: dec("10.001"), Purpose: "x"}},
		{"blank purpose", &CreateInput{Type: domain.TypeLoan, Amount: dec("100"), Purpose: "   "}},
		{"advance without work", &CreateInput{Type: domain.TypeAdvance, Amount: dec("100"), Purpose: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.cash.Create(ctx, env.employee, tc.input)
			var valErr *domain.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestCreateAdvanceRequiresExistingWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	missing := uint(9999)
	_, err := env.cash.Create(ctx, env.employee, &CreateInput{
		Type: domain.TypeAdvance, WorkID: &missing, Amount: dec("100"), Purpose: "materials",
	})
	assert.ErrorIs(t, err, domain.ErrWorkNotFound)

	req, err := env.cash.Create(ctx, env.employee, &CreateInput{
		Type: domain.TypeAdvance, WorkID: &env.work.ID, Amount: dec("100"), Purpose: "materials",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, req.Status)
	assert.Equal(t, env.work.ID, *req.WorkID)
}

func TestCreateLoanIgnoresWork(t *testing.T) {
	env := newTestEnv(t)

	req, err := env.cash.Create(context.Background(), env.employee, &CreateInput{
		Type: domain.TypeLoan, WorkID: &env.work.ID, Amount: dec("500"), Purpose: "emergency",
	})
	require.NoError(t, err)
	assert.Nil(t, req.WorkID)
}

func TestCreateIdempotencyKeyReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := &CreateInput{
		Type: domain.TypeLoan, Amount: dec("700"), Purpose: "retry test",
		IdempotencyKey: "key-123",
	}
	first, err := env.cash.Create(ctx, env.employee, input)
	require.NoError(t, err)

	second, err := env.cash.Create(ctx, env.employee, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different owner with the same key gets their own request
	theirs, err := env.cash.Create(ctx, env.other, input)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, theirs.ID)
}

// ============================================================
// Approve / Reject / Receive
// ============================================================

func TestApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000")

	_, err := env.cash.Approve(ctx, env.employee, req.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	approved, err := env.cash.Approve(ctx, env.director, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, env.director.UserID, *approved.ApproverID)

	// Approving twice conflicts
	_, err = env.cash.Approve(ctx, env.director, req.ID)
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestRejectNeedsComment(t *testing.T) {
	env := newTestEnv(t)
	req := env.newRequest(t, "10000")

	_, err := env.cash.Reject(context.Background(), env.director, req.ID, "  ")
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestRejectFromRequestedAndApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.newRequest(t, "10000")
	rejected, err := env.cash.Reject(ctx, env.director, req.ID, "no budget this month")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "no budget this month", rejected.ApproverComment)

	req2 := env.newRequest(t, "5000")
	_, err = env.cash.Approve(ctx, env.director, req2.ID)
	require.NoError(t, err)
	rejected2, err := env.cash.Reject(ctx, env.director, req2.ID, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected2.Status)
}

func TestRejectAfterMoneyMovedConflicts(t *testing.T) {
	env := newTestEnv(t)
	req := env.receivedRequest(t, "10000")

	_, err := env.cash.Reject(context.Background(), env.director, req.ID, "too late")
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestReceiveOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000")
	_, err := env.cash.Approve(ctx, env.director, req.ID)
	require.NoError(t, err)

	_, err = env.cash.Receive(ctx, env.other, req.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.cash.Receive(ctx, env.director, req.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	received, err := env.cash.Receive(ctx, env.employee, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReceived, received.Status)
	assert.NotNil(t, received.ReceivedAt)
}

func TestReceiveBeforeApprovalConflicts(t *testing.T) {
	env := newTestEnv(t)
	req := env.newRequest(t, "10000")

	_, err := env.cash.Receive(context.Background(), env.employee, req.ID)
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

// ============================================================
// Question / Reply
// ============================================================

func TestQuestionRestoresOriginOnReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "3000") // RECEIVED -> REPORTING

	questioned, err := env.cash.AskQuestion(ctx, env.director, req.ID, "what was the 3000 for?")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQuestion, questioned.Status)

	// Money movement is frozen while the question stands
	_, err = env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("100"), Description: "lunch", Filename: "r.png",
		Receipt: strings.NewReader("png"),
	})
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)

	answered, err := env.cash.Reply(ctx, env.employee, req.ID, "materials for the rack install")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReporting, answered.Status)
	assert.Nil(t, answered.QuestionOrigin)
}

func TestQuestionFromRequestedRestoresRequested(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000")

	_, err := env.cash.AskQuestion(ctx, env.director, req.ID, "why so much?")
	require.NoError(t, err)

	answered, err := env.cash.Reply(ctx, env.employee, req.ID, "three-day trip")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, answered.Status)
}

func TestReplyOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000")
	_, err := env.cash.AskQuestion(ctx, env.director, req.ID, "clarify please")
	require.NoError(t, err)

	_, err = env.cash.Reply(ctx, env.other, req.ID, "not my request")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestQuestionRecordsMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "10000")

	_, err := env.cash.AskQuestion(ctx, env.director, req.ID, "clarify please")
	require.NoError(t, err)
	_, err = env.cash.Reply(ctx, env.employee, req.ID, "clarified")
	require.NoError(t, err)

	detail, err := env.cash.Detail(ctx, env.employee, req.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "clarify please", detail.Messages[0].Body)
	assert.Equal(t, env.director.UserID, detail.Messages[0].AuthorID)
	assert.Equal(t, "clarified", detail.Messages[1].Body)
}

// ============================================================
// Returns
// ============================================================

func TestSubmitReturnOverdrawRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "3000")

	// Remainder is 7000; a satang more must fail
	_, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("7000.01")})
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)

	_, err = env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("7000")})
	assert.NoError(t, err)
}

func TestPendingReturnBlocksFurtherReturns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "1000")

	_, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("1000")})
	require.NoError(t, err)

	// The unconfirmed return already consumed the remainder
	_, err = env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("0.01")})
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestSubmitReturnIdempotencyKeyReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "1000")

	input := &SubmitReturnInput{Amount: dec("400"), IdempotencyKey: "ret-1"}
	first, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, input)
	require.NoError(t, err)

	second, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	led, err := env.store.LedgerFor(ctx, req)
	require.NoError(t, err)
	assert.True(t, led.Remainder().Equal(dec("600")))
}

func TestConfirmReturn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "1000")

	ret, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("1000")})
	require.NoError(t, err)

	_, err = env.cash.ConfirmReturn(ctx, env.employee, req.ID, ret.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	confirmed, err := env.cash.ConfirmReturn(ctx, env.director, req.ID, ret.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed())
	assert.Equal(t, env.director.UserID, *confirmed.ConfirmedBy)

	// Second confirm conflicts
	_, err = env.cash.ConfirmReturn(ctx, env.director, req.ID, ret.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestConfirmReturnWrongRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reqA := env.receivedRequest(t, "1000")
	reqB := env.receivedRequest(t, "2000")

	ret, err := env.cash.SubmitReturn(ctx, env.employee, reqA.ID, &SubmitReturnInput{Amount: dec("500")})
	require.NoError(t, err)

	_, err = env.cash.ConfirmReturn(ctx, env.director, reqB.ID, ret.ID)
	assert.ErrorIs(t, err, domain.ErrReturnNotFound)
}

// ============================================================
// Close
// ============================================================

func TestCloseRequiresReconciliation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "9950")

	_, err := env.cash.Close(ctx, env.director, req.ID, &CloseInput{})
	var unrec *domain.UnreconciledError
	require.ErrorAs(t, err, &unrec)
	assert.True(t, unrec.Remainder.Equal(dec("50")))

	// Still reporting
	got, err := env.store.RequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReporting, got.Status)

	closed, err := env.cash.Close(ctx, env.director, req.ID, &CloseInput{Force: true, Comment: "written off"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "written off", closed.ApproverComment)
}

func TestCloseFullRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "3000")
	env.addExpense(t, env.employee, req.ID, "2000")

	ret, err := env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("5000")})
	require.NoError(t, err)
	_, err = env.cash.ConfirmReturn(ctx, env.director, req.ID, ret.ID)
	require.NoError(t, err)

	led, err := env.store.LedgerFor(ctx, req)
	require.NoError(t, err)
	assert.True(t, led.Remainder().IsZero())

	closed, err := env.cash.Close(ctx, env.director, req.ID, &CloseInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
}

func TestCloseGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "1000")

	_, err := env.cash.Close(ctx, env.employee, req.ID, &CloseInput{Force: true})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.cash.Close(ctx, env.director, req.ID, &CloseInput{Force: true})
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestTerminalStatusFreezesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "1000")
	env.addExpense(t, env.employee, req.ID, "1000")
	_, err := env.cash.Close(ctx, env.director, req.ID, &CloseInput{})
	require.NoError(t, err)

	var stateErr *domain.StateError

	_, err = env.cash.Approve(ctx, env.director, req.ID)
	assert.ErrorAs(t, err, &stateErr)
	_, err = env.cash.Receive(ctx, env.employee, req.ID)
	assert.ErrorAs(t, err, &stateErr)
	_, err = env.cash.AskQuestion(ctx, env.director, req.ID, "late question")
	assert.ErrorAs(t, err, &stateErr)
	_, err = env.cash.SubmitReturn(ctx, env.employee, req.ID, &SubmitReturnInput{Amount: dec("1")})
	assert.ErrorAs(t, err, &stateErr)
	_, err = env.expenses.Add(ctx, env.employee, req.ID, &AddExpenseInput{
		Amount: dec("1"), Description: "late", Filename: "r.pdf", Receipt: strings.NewReader("x"),
	})
	assert.ErrorAs(t, err, &stateErr)
}

// ============================================================
// Queries
// ============================================================

func TestDetailAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.newRequest(t, "1000")

	_, err := env.cash.Detail(ctx, env.other, req.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	detail, err := env.cash.Detail(ctx, env.employee, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, detail.Request.ID)

	_, err = env.cash.Detail(ctx, env.director, req.ID)
	assert.NoError(t, err)

	_, err = env.cash.Detail(ctx, env.director, 9999)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestMyRequestsCarriesDerivedBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "4000")

	mine, err := env.cash.MyRequests(ctx, env.employee)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Balance.Remainder.Equal(dec("6000")))
	assert.True(t, mine[0].Balance.Spent.Equal(dec("4000")))
}

func TestListElevatedOnlyWithFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newRequest(t, "100")
	env.receivedRequest(t, "200")

	_, _, err := env.cash.List(ctx, env.employee, &ListInput{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, total, err := env.cash.List(ctx, env.director, &ListInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	status := domain.StatusReceived
	filtered, total, err := env.cash.List(ctx, env.director, &ListInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, domain.StatusReceived, filtered[0].Status)
}

func TestSummaryElevatedOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, req.ID, "3000")
	env.newRequest(t, "500") // REQUESTED: not issued yet, excluded

	_, err := env.cash.Summary(ctx, env.employee)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	rows, err := env.cash.Summary(ctx, env.director)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, env.employee.UserID, rows[0].RequesterID)
	assert.True(t, rows[0].Issued.Equal(dec("10000")))
	assert.True(t, rows[0].Spent.Equal(dec("3000")))
	assert.True(t, rows[0].Balance.Equal(dec("7000")))
}

func TestMyBalanceCountsActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	active := env.receivedRequest(t, "10000")
	env.addExpense(t, env.employee, active.ID, "2500")
	env.newRequest(t, "500") // REQUESTED: open but no money issued

	bal, err := env.cash.MyBalance(ctx, env.employee)
	require.NoError(t, err)
	assert.True(t, bal.Issued.Equal(dec("10000")))
	assert.True(t, bal.Spent.Equal(dec("2500")))
	assert.True(t, bal.Balance.Equal(dec("7500")))
	assert.Equal(t, int64(1), bal.ActiveCount)
	assert.Equal(t, int64(2), bal.OpenRequests)
}
