package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/isbn"
)

type bookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	GetByID(ctx context.Context, id string) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	Archive(ctx context.Context, id string) error
}

type bookCategoryRepository interface {
	GetByID(ctx context.Context, id string) (*models.Category, error)
}

// CreateBookRequest is the payload for adding a catalog item.
type CreateBookRequest struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author" validate:"required"`
	ISBN        string  `json:"isbn" validate:"required"`
	CategoryID  *string `json:"category_id"`
	SchoolID    *string `json:"school_id"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	Description string  `json:"description"`
}

// UpdateBookRequest is the payload for editing a catalog item.
type UpdateBookRequest struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author" validate:"required"`
	ISBN        string  `json:"isbn" validate:"required"`
	CategoryID  *string `json:"category_id"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	Description string  `json:"description"`
}

// BookService manages the book catalog.
type BookService struct {
	repo       bookRepository
	categories bookCategoryRepository
	audit      auditWriter
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewBookService creates a BookService.
func NewBookService(repo bookRepository, categories bookCategoryRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *BookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BookService{repo: repo, categories: categories, audit: audit, validator: validate, logger: logger}
}

// List returns paginated books matching the filter.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return books, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a book by ID.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// Create validates the ISBN and adds a new catalog item.
func (s *BookService) Create(ctx context.Context, req CreateBookRequest, actorID string, meta models.LoginRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create book payload")
	}

	check := isbn.Validate(req.ISBN)
	if !check.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidISBN, check.Reason)
	}

	if req.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *req.CategoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
		}
	}

	book := &models.Book{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        check.Normalized,
		CategoryID:  req.CategoryID,
		SchoolID:    req.SchoolID,
		Quantity:    req.Quantity,
		Description: req.Description,
	}

	if err := s.repo.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": book.ID, "title": book.Title, "isbn": book.ISBN, "quantity": book.Quantity})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionBookCreate,
		Resource:   "books",
		ResourceID: &book.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record book create audit log", zap.Error(err))
	}

	return book, nil
}

// Update edits catalog item attributes, revalidating the ISBN.
func (s *BookService) Update(ctx context.Context, id string, req UpdateBookRequest, actorID string, meta models.LoginRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update book payload")
	}

	check := isbn.Validate(req.ISBN)
	if !check.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidISBN, check.Reason)
	}

	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"title": book.Title, "isbn": book.ISBN, "quantity": book.Quantity})

	book.Title = req.Title
	book.Author = req.Author
	book.ISBN = check.Normalized
	book.CategoryID = req.CategoryID
	book.Quantity = req.Quantity
	book.Description = req.Description

	if err := s.repo.Update(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"title": book.Title, "isbn": book.ISBN, "quantity": book.Quantity})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionBookUpdate,
		Resource:   "books",
		ResourceID: &book.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record book update audit log", zap.Error(err))
	}

	return book, nil
}

// Archive soft-hides a book from the catalog. Existing loans keep their
// reference to the archived row.
func (s *BookService) Archive(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	if err := s.repo.Archive(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive book")
	}

	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionBookArchive,
		Resource:   "books",
		ResourceID: &book.ID,
		OldValues:  []byte(`{"archived":false}`),
		NewValues:  []byte(`{"archived":true}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record book archive audit log", zap.Error(err))
	}

	return nil
}
