package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/libratrack-api/internal/models"
)

// BorrowRequestRepository provides persistence for the approval workflow.
type BorrowRequestRepository struct {
	db *sqlx.DB
}

// NewBorrowRequestRepository creates the repository.
func NewBorrowRequestRepository(db *sqlx.DB) *BorrowRequestRepository {
	return &BorrowRequestRepository{db: db}
}

const borrowRequestColumns = "r.id, r.user_id, r.book_id, r.status, r.note, r.decided_by, r.decided_at, r.created_at, r.updated_at"

// List returns borrow requests based on filters with total count.
func (r *BorrowRequestRepository) List(ctx context.Context, filter models.BorrowRequestFilter) ([]models.BorrowRequest, int, error) {
	baseQuery := `FROM borrow_requests r WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)+1))
		args = append(args, *filter.UserID)
	}
	if filter.BookID != nil {
		conditions = append(conditions, fmt.Sprintf("r.book_id = $%d", len(args)+1))
		args = append(args, *filter.BookID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.SchoolID != nil {
		conditions = append(conditions, fmt.Sprintf("r.book_id IN (SELECT id FROM books WHERE school_id = $%d)", len(args)+1))
		args = append(args, *filter.SchoolID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", borrowRequestColumns, baseQuery, pageSize, offset)

	var requests []models.BorrowRequest
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list borrow requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count borrow requests: %w", err)
	}

	return requests, total, nil
}

// GetByID returns a borrow request by identifier.
func (r *BorrowRequestRepository) GetByID(ctx context.Context, id string) (*models.BorrowRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM borrow_requests r WHERE r.id = $1", borrowRequestColumns)
	var request models.BorrowRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find borrow request by id: %w", err)
	}
	return &request, nil
}

// Create inserts a new pending borrow request.
func (r *BorrowRequestRepository) Create(ctx context.Context, request *models.BorrowRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.BorrowRequestPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	const query = `INSERT INTO borrow_requests (id, user_id, book_id, status, note, decided_by, decided_at, created_at, updated_at) VALUES (:id, :user_id, :book_id, :status, :note, :decided_by, :decided_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create borrow request: %w", err)
	}
	return nil
}

// Decide transitions a pending request to APPROVED or REJECTED. The status
// guard in the WHERE clause makes the transition happen at most once even
// under concurrent decisions; the returned bool reports whether this call won.
func (r *BorrowRequestRepository) Decide(ctx context.Context, id string, status models.BorrowRequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	const query = `UPDATE borrow_requests SET status = $2, decided_by = $3, decided_at = $4, updated_at = $4 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, status, decidedBy, decidedAt)
	if err != nil {
		return false, fmt.Errorf("decide borrow request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide borrow request rows affected: %w", err)
	}
	return affected == 1, nil
}

// CountPending returns the number of pending requests.
func (r *BorrowRequestRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM borrow_requests WHERE status = 'PENDING'"); err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return total, nil
}
