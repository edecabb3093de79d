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

// BookRepository provides persistence for catalog books.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository creates the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// bookSelect joins in the count of active loans so availability can be
// computed without a second round trip.
const bookSelect = `SELECT b.id, b.title, b.author, b.isbn, b.category_id, b.school_id, b.quantity, b.archived, b.description, b.created_at, b.updated_at,
(SELECT COUNT(*) FROM loans l WHERE l.book_id = b.id AND l.status = 'BORROWED') AS active_loans`

// List returns books based on filters with total count.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	baseQuery := `FROM books b WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("b.category_id = $%d", len(args)+1))
		args = append(args, *filter.CategoryID)
	}
	if filter.SchoolID != nil {
		conditions = append(conditions, fmt.Sprintf("b.school_id = $%d", len(args)+1))
		args = append(args, *filter.SchoolID)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("b.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(b.title) LIKE $%d OR LOWER(b.author) LIKE $%d OR b.isbn LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"author":     true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "title"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
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

	listQuery := fmt.Sprintf("%s %s ORDER BY b.%s %s LIMIT %d OFFSET %d", bookSelect, baseQuery, sortBy, sortOrder, pageSize, offset)

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	return books, total, nil
}

// GetByID returns a book with its active loan count.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	query := bookSelect + ` FROM books b WHERE b.id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find book by id: %w", err)
	}
	return &book, nil
}

// Create inserts a new book.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now
	const query = `INSERT INTO books (id, title, author, isbn, category_id, school_id, quantity, archived, description, created_at, updated_at) VALUES (:id, :title, :author, :isbn, :category_id, :school_id, :quantity, :archived, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// Update updates mutable fields of a book.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET title = :title, author = :author, isbn = :isbn, category_id = :category_id, school_id = :school_id, quantity = :quantity, archived = :archived, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// Archive soft deletes a book by marking it archived.
func (r *BookRepository) Archive(ctx context.Context, id string) error {
	const query = `UPDATE books SET archived = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive book: %w", err)
	}
	return nil
}

// CountAll returns the number of non-archived books.
func (r *BookRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM books WHERE archived = FALSE"); err != nil {
		return 0, fmt.Errorf("count all books: %w", err)
	}
	return total, nil
}
