package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/libratrack-api/internal/models"
)

// FavoriteRepository provides persistence for saved books.
type FavoriteRepository struct {
	db *sqlx.DB
}

// NewFavoriteRepository creates the repository.
func NewFavoriteRepository(db *sqlx.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// ListByUser returns all favorites for one user, newest first.
func (r *FavoriteRepository) ListByUser(ctx context.Context, userID string) ([]models.Favorite, error) {
	const query = `SELECT id, user_id, book_id, created_at FROM favorites WHERE user_id = $1 ORDER BY created_at DESC`
	var favorites []models.Favorite
	if err := r.db.SelectContext(ctx, &favorites, query, userID); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return favorites, nil
}

// Create inserts a favorite. ON CONFLICT keeps the operation idempotent per
// (user, book).
func (r *FavoriteRepository) Create(ctx context.Context, favorite *models.Favorite) error {
	if favorite.ID == "" {
		favorite.ID = uuid.NewString()
	}
	if favorite.CreatedAt.IsZero() {
		favorite.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO favorites (id, user_id, book_id, created_at) VALUES (:id, :user_id, :book_id, :created_at) ON CONFLICT (user_id, book_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, favorite); err != nil {
		return fmt.Errorf("create favorite: %w", err)
	}
	return nil
}

// Delete removes a user's favorite for a book.
func (r *FavoriteRepository) Delete(ctx context.Context, userID, bookID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM favorites WHERE user_id = $1 AND book_id = $2", userID, bookID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}
