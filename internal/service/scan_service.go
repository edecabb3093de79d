package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
)

// criticalOverdueDays is the overdue age beyond which librarians are alerted.
const criticalOverdueDays = 7

type scanLoanRepository interface {
	FindDueSoon(ctx context.Context, days int) ([]models.Loan, error)
	FindOverdue(ctx context.Context) ([]models.Loan, error)
}

type scanUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveStaff(ctx context.Context, roles []models.UserRole, schoolID *string) ([]models.User, error)
}

type scanBookRepository interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
}

type scanSettings interface {
	DueSoonDays(ctx context.Context) int
}

type notificationQueuer interface {
	QueueEmail(ctx context.Context, input QueueEmailInput) error
}

// ScanResult summarises one scheduled scan run.
type ScanResult struct {
	Scanned int
	Queued  int
}

// ScanService drives the cron-invoked due-soon and overdue scans. Queueing
// failures are logged and skipped; a scan never aborts because one loan's
// notification could not be queued.
type ScanService struct {
	loans         scanLoanRepository
	users         scanUserRepository
	books         scanBookRepository
	settings      scanSettings
	notifications notificationQueuer
	logger        *zap.Logger
}

// NewScanService constructs the service.
func NewScanService(loans scanLoanRepository, users scanUserRepository, books scanBookRepository, settings scanSettings, notifications notificationQueuer, logger *zap.Logger) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{loans: loans, users: users, books: books, settings: settings, notifications: notifications, logger: logger}
}

// RunDueSoonScan queues DUE_SOON notifications for loans approaching their
// effective due date.
func (s *ScanService) RunDueSoonScan(ctx context.Context) (ScanResult, error) {
	days := s.settings.DueSoonDays(ctx)
	loans, err := s.loans.FindDueSoon(ctx, days)
	if err != nil {
		return ScanResult{}, fmt.Errorf("find due soon loans: %w", err)
	}

	result := ScanResult{Scanned: len(loans)}
	for i := range loans {
		loan := &loans[i]
		borrower, book, ok := s.loanContext(ctx, loan)
		if !ok {
			continue
		}
		due := loan.EffectiveDueAt()
		subject := fmt.Sprintf("Reminder: %q is due on %s", book.Title, due.Format("Jan 2, 2006"))
		body := fmt.Sprintf(
			"<p>Hi %s,</p><p>Your loan of <strong>%s</strong> is due on %s. Please return or request an extension before then.</p>",
			borrower.FullName, book.Title, due.Format("January 2, 2006"))

		if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
			UserID:     borrower.ID,
			Recipient:  borrower.Email,
			Type:       models.NotificationDueSoon,
			EntityType: "loan",
			EntityID:   loan.ID,
			Subject:    subject,
			Body:       body,
		}); err == nil {
			result.Queued++
		}
	}
	return result, nil
}

// RunOverdueScan queues OVERDUE notifications to borrowers, and
// OVERDUE_CRITICAL to in-scope librarians for loans more than
// criticalOverdueDays past due. Spam control in the notification pipeline
// keeps daily runs from renotifying the same loan.
func (s *ScanService) RunOverdueScan(ctx context.Context) (ScanResult, error) {
	loans, err := s.loans.FindOverdue(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("find overdue loans: %w", err)
	}

	now := time.Now().UTC()
	result := ScanResult{Scanned: len(loans)}
	for i := range loans {
		loan := &loans[i]
		borrower, book, ok := s.loanContext(ctx, loan)
		if !ok {
			continue
		}
		overdueDays := loan.OverdueDays(now)

		subject := fmt.Sprintf("Overdue: %q was due %d day(s) ago", book.Title, overdueDays)
		body := fmt.Sprintf(
			"<p>Hi %s,</p><p>Your loan of <strong>%s</strong> was due on %s and is now %d day(s) overdue. Please return it as soon as possible.</p>",
			borrower.FullName, book.Title, loan.EffectiveDueAt().Format("January 2, 2006"), overdueDays)

		if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
			UserID:     borrower.ID,
			Recipient:  borrower.Email,
			Type:       models.NotificationOverdue,
			EntityType: "loan",
			EntityID:   loan.ID,
			Subject:    subject,
			Body:       body,
		}); err == nil {
			result.Queued++
		}

		if overdueDays > criticalOverdueDays {
			result.Queued += s.escalateCritical(ctx, loan, borrower, book, overdueDays)
		}
	}
	return result, nil
}

// escalateCritical fans out OVERDUE_CRITICAL to every active librarian in the
// book's school, or to all active librarians when the book has no school.
func (s *ScanService) escalateCritical(ctx context.Context, loan *models.Loan, borrower *models.User, book *models.Book, overdueDays int) int {
	librarians, err := s.users.FindActiveStaff(ctx, []models.UserRole{models.RoleLibrarian}, book.SchoolID)
	if err != nil {
		s.logger.Warn("failed to find librarians for critical overdue", zap.String("loan_id", loan.ID), zap.Error(err))
		return 0
	}

	subject := fmt.Sprintf("Critically overdue: %q (%d days)", book.Title, overdueDays)
	body := fmt.Sprintf(
		"<p>The loan of <strong>%s</strong> to %s (%s) is %d day(s) overdue.</p><p>Manual follow-up is required.</p>",
		book.Title, borrower.FullName, borrower.Email, overdueDays)

	queued := 0
	for i := range librarians {
		librarian := &librarians[i]
		if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
			UserID:     librarian.ID,
			Recipient:  librarian.Email,
			Type:       models.NotificationOverdueCritical,
			EntityType: "loan",
			EntityID:   loan.ID,
			Subject:    subject,
			Body:       body,
		}); err == nil {
			queued++
		}
	}
	return queued
}

// loanContext loads the borrower and book for a loan, logging and skipping
// rows whose references are broken.
func (s *ScanService) loanContext(ctx context.Context, loan *models.Loan) (*models.User, *models.Book, bool) {
	borrower, err := s.users.FindByID(ctx, loan.UserID)
	if err != nil {
		s.logger.Warn("scan skipping loan: borrower lookup failed", zap.String("loan_id", loan.ID), zap.Error(err))
		return nil, nil, false
	}
	book, err := s.books.GetByID(ctx, loan.BookID)
	if err != nil {
		s.logger.Warn("scan skipping loan: book lookup failed", zap.String("loan_id", loan.ID), zap.Error(err))
		return nil, nil, false
	}
	return borrower, book, true
}
