package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type mockRequestRepo struct {
	requests  map[string]*models.BorrowRequest
	created   []*models.BorrowRequest
	decided   bool
	decideErr error
	decisions []models.BorrowRequestStatus
}

func (m *mockRequestRepo) List(ctx context.Context, filter models.BorrowRequestFilter) ([]models.BorrowRequest, int, error) {
	var out []models.BorrowRequest
	for _, r := range m.requests {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*models.BorrowRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *request
	return &copied, nil
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.BorrowRequest) error {
	m.created = append(m.created, request)
	if m.requests == nil {
		m.requests = map[string]*models.BorrowRequest{}
	}
	m.requests[request.ID] = request
	return nil
}

func (m *mockRequestRepo) Decide(ctx context.Context, id string, status models.BorrowRequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	if m.decideErr != nil {
		return false, m.decideErr
	}
	m.decisions = append(m.decisions, status)
	return m.decided, nil
}

type mockLoanWriter struct {
	loans     []*models.Loan
	createErr error
}

func (m *mockLoanWriter) Create(ctx context.Context, loan *models.Loan) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.loans = append(m.loans, loan)
	return nil
}

type mockPolicySettings struct {
	loanPeriod int
	lowStock   int
}

func (m *mockPolicySettings) LoanPeriodDays(ctx context.Context) int    { return m.loanPeriod }
func (m *mockPolicySettings) LowStockThreshold(ctx context.Context) int { return m.lowStock }

type mockAuditWriter struct {
	logs []*models.AuditLog
	err  error
}

func (m *mockAuditWriter) Create(ctx context.Context, log *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

type requestFixture struct {
	repo      *mockRequestRepo
	loans     *mockLoanWriter
	books     *mockScanBookRepo
	users     *mockScanUserRepo
	queue     *mockQueuer
	audit     *mockAuditWriter
	dashboard *mockDashboardInvalidator
	svc       *BorrowRequestService
}

func newRequestFixture() *requestFixture {
	f := &requestFixture{
		repo: &mockRequestRepo{requests: map[string]*models.BorrowRequest{}, decided: true},
		loans: &mockLoanWriter{},
		books: &mockScanBookRepo{books: map[string]*models.Book{
			"book-1": {ID: "book-1", Title: "Clean Architecture", Quantity: 3},
		}},
		users: &mockScanUserRepo{users: map[string]*models.User{
			"student-1": {ID: "student-1", Email: "student@example.com", FullName: "Sam Student", Role: models.RoleStudent},
		}},
		queue:     &mockQueuer{},
		audit:     &mockAuditWriter{},
		dashboard: &mockDashboardInvalidator{},
	}
	f.svc = NewBorrowRequestService(f.repo, f.loans, f.books, f.users, &mockPolicySettings{loanPeriod: 14, lowStock: 1}, f.queue, f.audit, f.dashboard, validator.New(), zap.NewNop())
	return f
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := newRequestFixture()

	request, err := f.svc.Submit(context.Background(), "student-1", CreateBorrowRequestRequest{BookID: "book-1", Note: "for class"})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowRequestPending, request.Status)
	assert.Equal(t, "student-1", request.UserID)
	assert.NotEmpty(t, request.ID)
	require.Len(t, f.repo.created, 1)

	// Submission notices are policy-off; nothing reaches the queue mock
	// because the queuer here records everything it is offered.
	require.Len(t, f.queue.inputs, 1)
	assert.Equal(t, models.NotificationBorrowRequestSubmitted, f.queue.inputs[0].Type)
}

func TestSubmitRejectsArchivedBook(t *testing.T) {
	f := newRequestFixture()
	f.books.books["book-1"].Archived = true

	_, err := f.svc.Submit(context.Background(), "student-1", CreateBorrowRequestRequest{BookID: "book-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrBookUnavailable.Code, appErr.Code)
}

func TestSubmitRejectsWhenNoCopiesAvailable(t *testing.T) {
	f := newRequestFixture()
	f.books.books["book-1"].Quantity = 2
	f.books.books["book-1"].ActiveLoans = 2

	_, err := f.svc.Submit(context.Background(), "student-1", CreateBorrowRequestRequest{BookID: "book-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrBookUnavailable.Code, appErr.Code)
}

func TestApproveCreatesLoanWithConfiguredPeriod(t *testing.T) {
	f := newRequestFixture()
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestPending}

	loan, err := f.svc.Approve(context.Background(), "req-1", "lib-1", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, loan)
	assert.Equal(t, models.LoanBorrowed, loan.Status)
	assert.Equal(t, "student-1", loan.UserID)
	require.NotNil(t, loan.RequestID)
	assert.Equal(t, "req-1", *loan.RequestID)

	expectedDue := time.Now().UTC().AddDate(0, 0, 14)
	assert.WithinDuration(t, expectedDue, loan.DueAt, time.Minute)

	require.Len(t, f.loans.loans, 1)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionRequestApprove, f.audit.logs[0].Action)

	approved := f.queue.byType(models.NotificationBorrowRequestApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "student@example.com", approved[0].Recipient)

	assert.Equal(t, 1, f.dashboard.invalidations, "an approval must drop cached dashboard counts")
}

func TestApproveAlreadyDecidedConflicts(t *testing.T) {
	f := newRequestFixture()
	f.repo.decided = false
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestApproved}

	_, err := f.svc.Approve(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Empty(t, f.loans.loans, "no loan when the decision guard fails")
	assert.Zero(t, f.dashboard.invalidations)
}

func TestApproveQueuesLowStockWhenLastCopyGoesOut(t *testing.T) {
	f := newRequestFixture()
	f.books.books["book-1"].Quantity = 2
	f.books.books["book-1"].ActiveLoans = 1
	f.users.librarians = []models.User{{ID: "lib-1", Email: "lib@example.com", Role: models.RoleLibrarian}}
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestPending}

	_, err := f.svc.Approve(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)

	lowStock := f.queue.byType(models.NotificationLowStock)
	require.Len(t, lowStock, 1)
	assert.Equal(t, "book", lowStock[0].EntityType)
	assert.Equal(t, "book-1", lowStock[0].EntityID)
	assert.Equal(t, "lib@example.com", lowStock[0].Recipient)
}

func TestApprovePlentyOfStockSkipsLowStockNotice(t *testing.T) {
	f := newRequestFixture()
	f.books.books["book-1"].Quantity = 10
	f.users.librarians = []models.User{{ID: "lib-1", Email: "lib@example.com"}}
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestPending}

	_, err := f.svc.Approve(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Empty(t, f.queue.byType(models.NotificationLowStock))
}

func TestRejectQueuesRejectionEmail(t *testing.T) {
	f := newRequestFixture()
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestPending}

	request, err := f.svc.Reject(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowRequestRejected, request.Status)
	require.NotNil(t, request.DecidedBy)
	assert.Equal(t, "lib-1", *request.DecidedBy)
	assert.Empty(t, f.loans.loans)

	rejected := f.queue.byType(models.NotificationBorrowRequestRejected)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Subject, "Clean Architecture")
}

func TestRejectAlreadyDecidedConflicts(t *testing.T) {
	f := newRequestFixture()
	f.repo.decided = false
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestRejected}

	_, err := f.svc.Reject(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newRequestFixture()

	_, err := f.svc.Approve(context.Background(), "missing", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSubmitAuditFailureDoesNotBlock(t *testing.T) {
	f := newRequestFixture()
	f.audit.err = errors.New("audit store down")
	f.repo.requests["req-1"] = &models.BorrowRequest{ID: "req-1", UserID: "student-1", BookID: "book-1", Status: models.BorrowRequestPending}

	_, err := f.svc.Approve(context.Background(), "req-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)
}
