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

// LoanRepository provides persistence for lending records.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository creates the repository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = "l.id, l.request_id, l.user_id, l.book_id, l.status, l.due_at, l.extended_due_at, l.returned_at, l.created_at, l.updated_at"

// effectiveDue is the SQL expression for the due date honoring extensions.
const effectiveDue = "COALESCE(l.extended_due_at, l.due_at)"

// List returns loans based on filters with total count.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.Loan, int, error) {
	baseQuery := `FROM loans l WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("l.user_id = $%d", len(args)+1))
		args = append(args, *filter.UserID)
	}
	if filter.BookID != nil {
		conditions = append(conditions, fmt.Sprintf("l.book_id = $%d", len(args)+1))
		args = append(args, *filter.BookID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.SchoolID != nil {
		conditions = append(conditions, fmt.Sprintf("l.book_id IN (SELECT id FROM books WHERE school_id = $%d)", len(args)+1))
		args = append(args, *filter.SchoolID)
	}
	if filter.Overdue != nil {
		if *filter.Overdue {
			conditions = append(conditions, fmt.Sprintf("l.status = 'BORROWED' AND %s < NOW()", effectiveDue))
		} else {
			conditions = append(conditions, fmt.Sprintf("(l.status <> 'BORROWED' OR %s >= NOW())", effectiveDue))
		}
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY l.created_at DESC LIMIT %d OFFSET %d", loanColumns, baseQuery, pageSize, offset)

	var loans []models.Loan
	if err := r.db.SelectContext(ctx, &loans, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}

	return loans, total, nil
}

// GetByID returns a loan by identifier.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	query := fmt.Sprintf("SELECT %s FROM loans l WHERE l.id = $1", loanColumns)
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find loan by id: %w", err)
	}
	return &loan, nil
}

// Create inserts a new loan.
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	if loan.Status == "" {
		loan.Status = models.LoanBorrowed
	}
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = now
	const query = `INSERT INTO loans (id, request_id, user_id, book_id, status, due_at, extended_due_at, returned_at, created_at, updated_at) VALUES (:id, :request_id, :user_id, :book_id, :status, :due_at, :extended_due_at, :returned_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, loan); err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

// MarkReturned transitions a loan to RETURNED. The status guard makes the
// transition happen at most once; the returned bool reports whether this call
// performed it.
func (r *LoanRepository) MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error) {
	const query = `UPDATE loans SET status = 'RETURNED', returned_at = $2, updated_at = $2 WHERE id = $1 AND status = 'BORROWED'`
	res, err := r.db.ExecContext(ctx, query, id, returnedAt)
	if err != nil {
		return false, fmt.Errorf("mark loan returned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark loan returned rows affected: %w", err)
	}
	return affected == 1, nil
}

// Extend sets the extension date on an active loan.
func (r *LoanRepository) Extend(ctx context.Context, id string, extendedDueAt time.Time) (bool, error) {
	const query = `UPDATE loans SET extended_due_at = $2, updated_at = $3 WHERE id = $1 AND status = 'BORROWED'`
	res, err := r.db.ExecContext(ctx, query, id, extendedDueAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("extend loan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend loan rows affected: %w", err)
	}
	return affected == 1, nil
}

// FindDueSoon returns active loans whose effective due date falls within the
// next `days` days (and is not already past).
func (r *LoanRepository) FindDueSoon(ctx context.Context, days int) ([]models.Loan, error) {
	query := fmt.Sprintf(`SELECT %s FROM loans l WHERE l.status = 'BORROWED' AND %s >= NOW() AND %s < NOW() + ($1 * INTERVAL '1 day') ORDER BY %s`, loanColumns, effectiveDue, effectiveDue, effectiveDue)
	var loans []models.Loan
	if err := r.db.SelectContext(ctx, &loans, query, days); err != nil {
		return nil, fmt.Errorf("find due soon loans: %w", err)
	}
	return loans, nil
}

// FindOverdue returns active loans whose effective due date is in the past.
func (r *LoanRepository) FindOverdue(ctx context.Context) ([]models.Loan, error) {
	query := fmt.Sprintf(`SELECT %s FROM loans l WHERE l.status = 'BORROWED' AND %s < NOW() ORDER BY %s`, loanColumns, effectiveDue, effectiveDue)
	var loans []models.Loan
	if err := r.db.SelectContext(ctx, &loans, query); err != nil {
		return nil, fmt.Errorf("find overdue loans: %w", err)
	}
	return loans, nil
}

// CountActive returns the number of loans currently out.
func (r *LoanRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM loans WHERE status = 'BORROWED'"); err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return total, nil
}

// CountOverdue returns the number of loans past their effective due date.
func (r *LoanRepository) CountOverdue(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM loans l WHERE l.status = 'BORROWED' AND %s < NOW()", effectiveDue)
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count overdue loans: %w", err)
	}
	return total, nil
}

// CountActiveByUser returns the number of open loans held by a user.
func (r *LoanRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = 'BORROWED'", userID); err != nil {
		return 0, fmt.Errorf("count active loans by user: %w", err)
	}
	return total, nil
}
