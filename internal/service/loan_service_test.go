package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type mockLoanRepo struct {
	loans       map[string]*models.Loan
	returned    bool
	extended    bool
	extendedDue time.Time
}

func (m *mockLoanRepo) List(ctx context.Context, filter models.LoanFilter) ([]models.Loan, int, error) {
	var out []models.Loan
	for _, l := range m.loans {
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (m *mockLoanRepo) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *loan
	return &copied, nil
}

func (m *mockLoanRepo) MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error) {
	return m.returned, nil
}

func (m *mockLoanRepo) Extend(ctx context.Context, id string, extendedDueAt time.Time) (bool, error) {
	m.extendedDue = extendedDueAt
	return m.extended, nil
}

type mockDashboardInvalidator struct {
	invalidations int
}

func (m *mockDashboardInvalidator) Invalidate(ctx context.Context) {
	m.invalidations++
}

type loanFixture struct {
	repo      *mockLoanRepo
	users     *mockScanUserRepo
	books     *mockScanBookRepo
	queue     *mockQueuer
	audit     *mockAuditWriter
	dashboard *mockDashboardInvalidator
	svc       *LoanService
}

func newLoanFixture() *loanFixture {
	f := &loanFixture{
		repo: &mockLoanRepo{loans: map[string]*models.Loan{}, returned: true, extended: true},
		users: &mockScanUserRepo{users: map[string]*models.User{
			"student-1": {ID: "student-1", Email: "student@example.com", FullName: "Sam Student"},
		}},
		books: &mockScanBookRepo{books: map[string]*models.Book{
			"book-1": {ID: "book-1", Title: "The Pragmatic Programmer", Quantity: 1},
		}},
		queue:     &mockQueuer{},
		audit:     &mockAuditWriter{},
		dashboard: &mockDashboardInvalidator{},
	}
	f.svc = NewLoanService(f.repo, f.users, f.books, &mockPolicySettings{loanPeriod: 14}, f.queue, f.audit, f.dashboard, zap.NewNop())
	return f
}

func TestReturnMarksLoanAndQueuesEmail(t *testing.T) {
	f := newLoanFixture()
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC()}

	loan, err := f.svc.Return(context.Background(), "loan-1", "lib-1", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, loan.Status)
	require.NotNil(t, loan.ReturnedAt)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionLoanReturn, f.audit.logs[0].Action)

	returned := f.queue.byType(models.NotificationLoanReturned)
	require.Len(t, returned, 1)
	assert.Equal(t, "student@example.com", returned[0].Recipient)
	assert.Contains(t, returned[0].Subject, "The Pragmatic Programmer")

	assert.Equal(t, 1, f.dashboard.invalidations, "a completed return must drop cached dashboard counts")
}

func TestReturnTwiceConflicts(t *testing.T) {
	f := newLoanFixture()
	f.repo.returned = false
	now := time.Now().UTC()
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanReturned, ReturnedAt: &now}

	_, err := f.svc.Return(context.Background(), "loan-1", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyReturned.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Empty(t, f.queue.inputs)
	assert.Empty(t, f.audit.logs)
	assert.Zero(t, f.dashboard.invalidations)
}

func TestReturnUnknownLoan(t *testing.T) {
	f := newLoanFixture()

	_, err := f.svc.Return(context.Background(), "missing", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExtendAddsLoanPeriodToEffectiveDueDate(t *testing.T) {
	f := newLoanFixture()
	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: due}

	loan, err := f.svc.Extend(context.Background(), "loan-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)
	require.NotNil(t, loan.ExtendedDueAt)
	assert.Equal(t, due.AddDate(0, 0, 14), *loan.ExtendedDueAt)
	assert.Equal(t, due.AddDate(0, 0, 14), f.repo.extendedDue)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionLoanExtend, f.audit.logs[0].Action)
}

func TestExtendStacksOnPreviousExtension(t *testing.T) {
	f := newLoanFixture()
	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	prevExtension := due.AddDate(0, 0, 14)
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: due, ExtendedDueAt: &prevExtension}

	loan, err := f.svc.Extend(context.Background(), "loan-1", "lib-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, prevExtension.AddDate(0, 0, 14), *loan.ExtendedDueAt)
}

func TestExtendReturnedLoanConflicts(t *testing.T) {
	f := newLoanFixture()
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanReturned, DueAt: time.Now().UTC()}

	_, err := f.svc.Extend(context.Background(), "loan-1", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyReturned.Code, appErr.Code)
}

func TestExtendGuardLosesRace(t *testing.T) {
	f := newLoanFixture()
	f.repo.extended = false
	f.repo.loans["loan-1"] = &models.Loan{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC()}

	_, err := f.svc.Extend(context.Background(), "loan-1", "lib-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyReturned.Code, appErr.Code)
}
