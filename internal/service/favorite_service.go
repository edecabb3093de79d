package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type favoriteRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.Favorite, error)
	Create(ctx context.Context, favorite *models.Favorite) error
	Delete(ctx context.Context, userID, bookID string) error
}

// FavoriteService manages a user's saved books.
type FavoriteService struct {
	repo   favoriteRepository
	books  requestBookReader
	logger *zap.Logger
}

// NewFavoriteService creates a FavoriteService.
func NewFavoriteService(repo favoriteRepository, books requestBookReader, logger *zap.Logger) *FavoriteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FavoriteService{repo: repo, books: books, logger: logger}
}

// List returns the user's favorites.
func (s *FavoriteService) List(ctx context.Context, userID string) ([]models.Favorite, error) {
	favorites, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list favorites")
	}
	return favorites, nil
}

// Add saves a book for the user. Saving twice is a no-op.
func (s *FavoriteService) Add(ctx context.Context, userID, bookID string) (*models.Favorite, error) {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	favorite := &models.Favorite{
		ID:     uuid.NewString(),
		UserID: userID,
		BookID: bookID,
	}
	if err := s.repo.Create(ctx, favorite); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save favorite")
	}
	return favorite, nil
}

// Remove deletes the user's favorite for the book.
func (s *FavoriteService) Remove(ctx context.Context, userID, bookID string) error {
	if err := s.repo.Delete(ctx, userID, bookID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove favorite")
	}
	return nil
}
