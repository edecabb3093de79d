package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type loanRepository interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.Loan, int, error)
	GetByID(ctx context.Context, id string) (*models.Loan, error)
	MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error)
	Extend(ctx context.Context, id string, extendedDueAt time.Time) (bool, error)
}

type loanUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type loanBookReader interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
}

type loanSettings interface {
	LoanPeriodDays(ctx context.Context) int
}

// dashboardInvalidator drops cached dashboard counters after a mutation that
// changes them. Implementations must be safe to skip (nil allowed in tests).
type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// LoanService manages active loans: returns and extensions.
type LoanService struct {
	repo          loanRepository
	users         loanUserReader
	books         loanBookReader
	settings      loanSettings
	notifications notificationQueuer
	audit         auditWriter
	dashboard     dashboardInvalidator
	logger        *zap.Logger
}

// NewLoanService constructs the service. dashboard may be nil.
func NewLoanService(repo loanRepository, users loanUserReader, books loanBookReader, settings loanSettings, notifications notificationQueuer, audit auditWriter, dashboard dashboardInvalidator, logger *zap.Logger) *LoanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		repo:          repo,
		users:         users,
		books:         books,
		settings:      settings,
		notifications: notifications,
		audit:         audit,
		dashboard:     dashboard,
		logger:        logger,
	}
}

// List returns paginated loans matching the filter.
func (s *LoanService) List(ctx context.Context, filter models.LoanFilter) ([]models.Loan, *models.Pagination, error) {
	loans, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return loans, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a loan by ID.
func (s *LoanService) Get(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	return loan, nil
}

// Return marks a BORROWED loan as returned. Returning a loan twice yields a
// conflict.
func (s *LoanService) Return(ctx context.Context, id string, actorID string, meta models.LoginRequest) (*models.Loan, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	returned, err := s.repo.MarkReturned(ctx, id, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark loan returned")
	}
	if !returned {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, "loan has already been returned")
	}

	loan.Status = models.LoanReturned
	loan.ReturnedAt = &now

	payload, _ := json.Marshal(map[string]interface{}{"status": loan.Status, "returned_at": now})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionLoanReturn,
		Resource:   "loans",
		ResourceID: &loan.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record loan return audit log", zap.Error(err))
	}

	s.queueReturnedEmail(ctx, loan)
	s.invalidateDashboard(ctx)

	return loan, nil
}

// Extend pushes out the effective due date of a BORROWED loan by one loan
// period from its current effective due date.
func (s *LoanService) Extend(ctx context.Context, id string, actorID string, meta models.LoginRequest) (*models.Loan, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if loan.Status != models.LoanBorrowed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, "loan has already been returned")
	}

	extendedDueAt := loan.EffectiveDueAt().AddDate(0, 0, s.settings.LoanPeriodDays(ctx))
	extended, err := s.repo.Extend(ctx, id, extendedDueAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to extend loan")
	}
	if !extended {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, "loan has already been returned")
	}

	loan.ExtendedDueAt = &extendedDueAt

	payload, _ := json.Marshal(map[string]interface{}{"extended_due_at": extendedDueAt})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionLoanExtend,
		Resource:   "loans",
		ResourceID: &loan.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record loan extend audit log", zap.Error(err))
	}

	s.invalidateDashboard(ctx)

	return loan, nil
}

func (s *LoanService) invalidateDashboard(ctx context.Context) {
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
}

func (s *LoanService) queueReturnedEmail(ctx context.Context, loan *models.Loan) {
	borrower, err := s.users.FindByID(ctx, loan.UserID)
	if err != nil {
		s.logger.Warn("failed to load borrower for return notification", zap.String("loan_id", loan.ID), zap.Error(err))
		return
	}

	title := "your borrowed book"
	if book, err := s.books.GetByID(ctx, loan.BookID); err == nil {
		title = fmt.Sprintf("%q", book.Title)
	}

	if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
		UserID:     borrower.ID,
		Recipient:  borrower.Email,
		Type:       models.NotificationLoanReturned,
		EntityType: "loan",
		EntityID:   loan.ID,
		Subject:    fmt.Sprintf("Return recorded for %s", title),
		Body:       fmt.Sprintf("<p>Thanks! We have recorded the return of %s.</p>", title),
	}); err != nil {
		s.logger.Warn("failed to queue loan return notification", zap.String("loan_id", loan.ID), zap.Error(err))
	}
}
