package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
)

type mockScanLoanRepo struct {
	dueSoon    []models.Loan
	overdue    []models.Loan
	dueSoonErr error
	overdueErr error
}

func (m *mockScanLoanRepo) FindDueSoon(ctx context.Context, days int) ([]models.Loan, error) {
	if m.dueSoonErr != nil {
		return nil, m.dueSoonErr
	}
	return m.dueSoon, nil
}

func (m *mockScanLoanRepo) FindOverdue(ctx context.Context) ([]models.Loan, error) {
	if m.overdueErr != nil {
		return nil, m.overdueErr
	}
	return m.overdue, nil
}

type mockScanUserRepo struct {
	users      map[string]*models.User
	librarians []models.User
	staffErr   error
}

func (m *mockScanUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

func (m *mockScanUserRepo) FindActiveStaff(ctx context.Context, roles []models.UserRole, schoolID *string) ([]models.User, error) {
	if m.staffErr != nil {
		return nil, m.staffErr
	}
	return m.librarians, nil
}

type mockScanBookRepo struct {
	books map[string]*models.Book
}

func (m *mockScanBookRepo) GetByID(ctx context.Context, id string) (*models.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return nil, errors.New("book not found")
	}
	return book, nil
}

type mockScanSettings struct {
	days int
}

func (m *mockScanSettings) DueSoonDays(ctx context.Context) int { return m.days }

type mockQueuer struct {
	inputs []QueueEmailInput
	err    error
}

func (m *mockQueuer) QueueEmail(ctx context.Context, input QueueEmailInput) error {
	if m.err != nil {
		return m.err
	}
	m.inputs = append(m.inputs, input)
	return nil
}

func (m *mockQueuer) byType(typ models.NotificationType) []QueueEmailInput {
	var out []QueueEmailInput
	for _, in := range m.inputs {
		if in.Type == typ {
			out = append(out, in)
		}
	}
	return out
}

func scanFixture() (*mockScanLoanRepo, *mockScanUserRepo, *mockScanBookRepo, *mockQueuer) {
	loans := &mockScanLoanRepo{}
	users := &mockScanUserRepo{users: map[string]*models.User{
		"student-1": {ID: "student-1", Email: "student@example.com", FullName: "Sam Student", Role: models.RoleStudent},
	}}
	books := &mockScanBookRepo{books: map[string]*models.Book{
		"book-1": {ID: "book-1", Title: "The Go Programming Language", Quantity: 3},
	}}
	return loans, users, books, &mockQueuer{}
}

func TestDueSoonScanQueuesReminder(t *testing.T) {
	loans, users, books, queue := scanFixture()
	loans.dueSoon = []models.Loan{
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC().Add(48 * time.Hour)},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunDueSoonScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Queued: 1}, result)

	require.Len(t, queue.inputs, 1)
	in := queue.inputs[0]
	assert.Equal(t, models.NotificationDueSoon, in.Type)
	assert.Equal(t, "student-1", in.UserID)
	assert.Equal(t, "student@example.com", in.Recipient)
	assert.Equal(t, "loan", in.EntityType)
	assert.Equal(t, "loan-1", in.EntityID)
	assert.Contains(t, in.Subject, "The Go Programming Language")
}

func TestDueSoonScanSkipsBrokenReferences(t *testing.T) {
	loans, users, books, queue := scanFixture()
	loans.dueSoon = []models.Loan{
		{ID: "loan-orphan", UserID: "deleted-user", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC()},
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC()},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunDueSoonScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 2, Queued: 1}, result)
}

func TestOverdueScanQueuesBorrowerNotice(t *testing.T) {
	loans, users, books, queue := scanFixture()
	loans.overdue = []models.Loan{
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC().Add(-72 * time.Hour)},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunOverdueScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Queued: 1}, result)
	assert.Len(t, queue.byType(models.NotificationOverdue), 1)
	assert.Empty(t, queue.byType(models.NotificationOverdueCritical), "3 days overdue is below the critical threshold")
}

func TestOverdueScanEscalatesCriticalToLibrarians(t *testing.T) {
	loans, users, books, queue := scanFixture()
	users.librarians = []models.User{
		{ID: "lib-1", Email: "lib1@example.com", Role: models.RoleLibrarian},
		{ID: "lib-2", Email: "lib2@example.com", Role: models.RoleLibrarian},
	}
	loans.overdue = []models.Loan{
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC().Add(-8 * 24 * time.Hour)},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunOverdueScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Queued: 3}, result)

	assert.Len(t, queue.byType(models.NotificationOverdue), 1)
	critical := queue.byType(models.NotificationOverdueCritical)
	require.Len(t, critical, 2)
	assert.Equal(t, "lib1@example.com", critical[0].Recipient)
	assert.Equal(t, "lib2@example.com", critical[1].Recipient)
	assert.Contains(t, critical[0].Body, "Sam Student")
}

func TestOverdueScanExtensionDefersEscalation(t *testing.T) {
	loans, users, books, queue := scanFixture()
	users.librarians = []models.User{{ID: "lib-1", Email: "lib1@example.com"}}
	extended := time.Now().UTC().Add(-2 * 24 * time.Hour)
	loans.overdue = []models.Loan{
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed,
			DueAt: time.Now().UTC().Add(-20 * 24 * time.Hour), ExtendedDueAt: &extended},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunOverdueScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Queued: 1}, result)
	assert.Empty(t, queue.byType(models.NotificationOverdueCritical))
}

func TestOverdueScanSurvivesLibrarianLookupFailure(t *testing.T) {
	loans, users, books, queue := scanFixture()
	users.staffErr = errors.New("db down")
	loans.overdue = []models.Loan{
		{ID: "loan-1", UserID: "student-1", BookID: "book-1", Status: models.LoanBorrowed, DueAt: time.Now().UTC().Add(-10 * 24 * time.Hour)},
	}
	svc := NewScanService(loans, users, books, &mockScanSettings{days: 3}, queue, zap.NewNop())

	result, err := svc.RunOverdueScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Queued: 1}, result)
}
