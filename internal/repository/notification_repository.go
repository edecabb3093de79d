package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/libratrack-api/internal/models"
)

// NotificationRepository persists in-app notifications and email delivery
// tracking rows.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const deliveryColumns = "id, user_id, type, entity_type, entity_id, recipient, subject, body, channel, status, attempts, last_error, queued_at, sent_at"

// CreateDelivery inserts a delivery row in QUEUED state.
func (r *NotificationRepository) CreateDelivery(ctx context.Context, delivery *models.NotificationDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.Channel == "" {
		delivery.Channel = "email"
	}
	if delivery.Status == "" {
		delivery.Status = models.DeliveryQueued
	}
	if delivery.QueuedAt.IsZero() {
		delivery.QueuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_deliveries (id, user_id, type, entity_type, entity_id, recipient, subject, body, channel, status, attempts, last_error, queued_at, sent_at) VALUES (:id, :user_id, :type, :entity_type, :entity_id, :recipient, :subject, :body, :channel, :status, :attempts, :last_error, :queued_at, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, delivery); err != nil {
		return fmt.Errorf("create notification delivery: %w", err)
	}
	return nil
}

// HasRecentDelivery reports whether a delivery for the same recipient, type
// and entity was queued within the given window. Used for spam control.
func (r *NotificationRepository) HasRecentDelivery(ctx context.Context, userID string, typ models.NotificationType, entityType, entityID string, window time.Duration) (bool, error) {
	const query = `SELECT COUNT(*) FROM notification_deliveries WHERE user_id = $1 AND type = $2 AND entity_type = $3 AND entity_id = $4 AND queued_at > $5`
	var count int
	cutoff := time.Now().UTC().Add(-window)
	if err := r.db.GetContext(ctx, &count, query, userID, typ, entityType, entityID, cutoff); err != nil {
		return false, fmt.Errorf("check recent delivery: %w", err)
	}
	return count > 0, nil
}

// ClaimQueued atomically claims up to limit queued deliveries for processing.
// Claimed rows move to SENDING inside the same statement, so a processor
// started while another is still mid-send cannot pick them up again.
func (r *NotificationRepository) ClaimQueued(ctx context.Context, limit int) ([]models.NotificationDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`UPDATE notification_deliveries SET status = 'SENDING', attempts = attempts + 1 WHERE id IN (SELECT id FROM notification_deliveries WHERE status = 'QUEUED' ORDER BY queued_at LIMIT $1 FOR UPDATE SKIP LOCKED) RETURNING %s`, deliveryColumns)
	var deliveries []models.NotificationDelivery
	if err := r.db.SelectContext(ctx, &deliveries, query, limit); err != nil {
		return nil, fmt.Errorf("claim queued deliveries: %w", err)
	}
	return deliveries, nil
}

// MarkSent transitions a delivery to its SENT terminal state.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE notification_deliveries SET status = 'SENT', sent_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

// MarkFailed transitions a delivery to its FAILED terminal state, retaining
// the (truncated) error text.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	const query = `UPDATE notification_deliveries SET status = 'FAILED', last_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// CreateNotification inserts an in-app notification row.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, type, title, body, entity_type, entity_id, read_at, created_at) VALUES (:id, :user_id, :type, :title, :body, :entity_type, :entity_id, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's in-app notifications with total count.
func (r *NotificationRepository) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	baseQuery := `FROM notifications WHERE user_id = $1`
	args := []interface{}{filter.UserID}

	if filter.Unread != nil {
		if *filter.Unread {
			baseQuery += " AND read_at IS NULL"
		} else {
			baseQuery += " AND read_at IS NOT NULL"
		}
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

	listQuery := fmt.Sprintf("SELECT id, user_id, type, title, body, entity_type, entity_id, read_at, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkRead records the read timestamp on a user's notification. The user
// guard stops one user acknowledging another's row.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, readAt time.Time) (bool, error) {
	const query = `UPDATE notifications SET read_at = $3 WHERE id = $1 AND user_id = $2 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID, readAt)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows affected: %w", err)
	}
	return affected == 1, nil
}
