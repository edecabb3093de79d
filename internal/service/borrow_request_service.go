package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type borrowRequestRepository interface {
	List(ctx context.Context, filter models.BorrowRequestFilter) ([]models.BorrowRequest, int, error)
	GetByID(ctx context.Context, id string) (*models.BorrowRequest, error)
	Create(ctx context.Context, request *models.BorrowRequest) error
	Decide(ctx context.Context, id string, status models.BorrowRequestStatus, decidedBy string, decidedAt time.Time) (bool, error)
}

type requestLoanWriter interface {
	Create(ctx context.Context, loan *models.Loan) error
}

type requestBookReader interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
}

type requestUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveStaff(ctx context.Context, roles []models.UserRole, schoolID *string) ([]models.User, error)
}

type loanPolicySettings interface {
	LoanPeriodDays(ctx context.Context) int
	LowStockThreshold(ctx context.Context) int
}

// CreateBorrowRequestRequest is the student-facing submission payload.
type CreateBorrowRequestRequest struct {
	BookID string `json:"book_id" validate:"required"`
	Note   string `json:"note"`
}

// BorrowRequestService runs the request approval workflow. Approval creates
// the loan; notification queueing is best-effort and never blocks a decision.
type BorrowRequestService struct {
	repo          borrowRequestRepository
	loans         requestLoanWriter
	books         requestBookReader
	users         requestUserReader
	settings      loanPolicySettings
	notifications notificationQueuer
	audit         auditWriter
	dashboard     dashboardInvalidator
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewBorrowRequestService constructs the service. dashboard may be nil.
func NewBorrowRequestService(repo borrowRequestRepository, loans requestLoanWriter, books requestBookReader, users requestUserReader, settings loanPolicySettings, notifications notificationQueuer, audit auditWriter, dashboard dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *BorrowRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BorrowRequestService{
		repo:          repo,
		loans:         loans,
		books:         books,
		users:         users,
		settings:      settings,
		notifications: notifications,
		audit:         audit,
		dashboard:     dashboard,
		validator:     validate,
		logger:        logger,
	}
}

// List returns paginated borrow requests matching the filter.
func (s *BorrowRequestService) List(ctx context.Context, filter models.BorrowRequestFilter) ([]models.BorrowRequest, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrow requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return requests, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one borrow request.
func (s *BorrowRequestService) Get(ctx context.Context, id string) (*models.BorrowRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrow request")
	}
	return request, nil
}

// Submit creates a PENDING request for the authenticated student.
func (s *BorrowRequestService) Submit(ctx context.Context, userID string, req CreateBorrowRequestRequest) (*models.BorrowRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid borrow request payload")
	}

	book, err := s.books.GetByID(ctx, req.BookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	if book.Archived {
		return nil, appErrors.Clone(appErrors.ErrBookUnavailable, "book is archived")
	}
	if book.Available() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrBookUnavailable, "no copies available")
	}

	request := &models.BorrowRequest{
		ID:     uuid.NewString(),
		UserID: userID,
		BookID: req.BookID,
		Status: models.BorrowRequestPending,
		Note:   req.Note,
	}

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create borrow request")
	}

	// Policy for submission notices is off; QueueEmail drops this silently
	// unless the policy table changes.
	s.queueStudentEmail(ctx, userID, models.NotificationBorrowRequestSubmitted, request.ID,
		fmt.Sprintf("Borrow request received for %q", book.Title),
		fmt.Sprintf("<p>Your request to borrow <strong>%s</strong> was received and is awaiting review.</p>", book.Title))

	s.invalidateDashboard(ctx)

	return request, nil
}

// Approve transitions a PENDING request to APPROVED and creates the loan.
// A request already decided yields a conflict.
func (s *BorrowRequestService) Approve(ctx context.Context, id string, actorID string, meta models.LoginRequest) (*models.Loan, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	book, err := s.books.GetByID(ctx, request.BookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	if book.Archived {
		return nil, appErrors.Clone(appErrors.ErrBookUnavailable, "book is archived")
	}
	if book.Available() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrBookUnavailable, "no copies available")
	}

	now := time.Now().UTC()
	decided, err := s.repo.Decide(ctx, id, models.BorrowRequestApproved, actorID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve borrow request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "borrow request has already been decided")
	}

	loanPeriod := s.settings.LoanPeriodDays(ctx)
	loan := &models.Loan{
		ID:        uuid.NewString(),
		RequestID: &request.ID,
		UserID:    request.UserID,
		BookID:    request.BookID,
		Status:    models.LoanBorrowed,
		DueAt:     now.AddDate(0, 0, loanPeriod),
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}

	s.recordDecisionAudit(ctx, models.AuditActionRequestApprove, request, actorID, meta)

	s.queueStudentEmail(ctx, request.UserID, models.NotificationBorrowRequestApproved, request.ID,
		fmt.Sprintf("Your request for %q was approved", book.Title),
		fmt.Sprintf("<p>Your request to borrow <strong>%s</strong> was approved. The loan is due on %s.</p>",
			book.Title, loan.DueAt.Format("January 2, 2006")))

	// Availability before this loan was book.Available(); one copy is now out.
	remaining := book.Available() - 1
	if remaining <= s.settings.LowStockThreshold(ctx) {
		s.notifyLowStock(ctx, book, remaining)
	}

	s.invalidateDashboard(ctx)

	return loan, nil
}

// Reject transitions a PENDING request to REJECTED.
func (s *BorrowRequestService) Reject(ctx context.Context, id string, actorID string, meta models.LoginRequest) (*models.BorrowRequest, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	decided, err := s.repo.Decide(ctx, id, models.BorrowRequestRejected, actorID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject borrow request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "borrow request has already been decided")
	}

	request.Status = models.BorrowRequestRejected
	request.DecidedBy = &actorID
	request.DecidedAt = &now

	s.recordDecisionAudit(ctx, models.AuditActionRequestReject, request, actorID, meta)

	title := "your requested book"
	if book, err := s.books.GetByID(ctx, request.BookID); err == nil {
		title = fmt.Sprintf("%q", book.Title)
	}
	s.queueStudentEmail(ctx, request.UserID, models.NotificationBorrowRequestRejected, request.ID,
		fmt.Sprintf("Your request for %s was declined", title),
		fmt.Sprintf("<p>Your borrow request for %s was declined. Contact your librarian for details.</p>", title))

	s.invalidateDashboard(ctx)

	return request, nil
}

func (s *BorrowRequestService) invalidateDashboard(ctx context.Context) {
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
}

func (s *BorrowRequestService) queueStudentEmail(ctx context.Context, userID string, typ models.NotificationType, requestID, subject, body string) {
	student, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load student for notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
		UserID:     student.ID,
		Recipient:  student.Email,
		Type:       typ,
		EntityType: "borrow_request",
		EntityID:   requestID,
		Subject:    subject,
		Body:       body,
	}); err != nil {
		s.logger.Warn("failed to queue borrow request notification", zap.String("type", string(typ)), zap.Error(err))
	}
}

func (s *BorrowRequestService) notifyLowStock(ctx context.Context, book *models.Book, remaining int) {
	librarians, err := s.users.FindActiveStaff(ctx, []models.UserRole{models.RoleLibrarian}, book.SchoolID)
	if err != nil {
		s.logger.Warn("failed to find librarians for low stock notice", zap.String("book_id", book.ID), zap.Error(err))
		return
	}

	subject := fmt.Sprintf("Low stock: %q (%d remaining)", book.Title, remaining)
	body := fmt.Sprintf("<p><strong>%s</strong> is down to %d available copy(ies). Consider ordering more.</p>",
		book.Title, remaining)

	for i := range librarians {
		librarian := &librarians[i]
		if err := s.notifications.QueueEmail(ctx, QueueEmailInput{
			UserID:     librarian.ID,
			Recipient:  librarian.Email,
			Type:       models.NotificationLowStock,
			EntityType: "book",
			EntityID:   book.ID,
			Subject:    subject,
			Body:       body,
		}); err != nil {
			s.logger.Warn("failed to queue low stock notification", zap.String("book_id", book.ID), zap.Error(err))
		}
	}
}

func (s *BorrowRequestService) recordDecisionAudit(ctx context.Context, action string, request *models.BorrowRequest, actorID string, meta models.LoginRequest) {
	payload, _ := json.Marshal(map[string]interface{}{"status": request.Status, "user_id": request.UserID, "book_id": request.BookID})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "borrow_requests",
		ResourceID: &request.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record borrow request audit log", zap.Error(err))
	}
}
