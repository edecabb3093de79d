package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libratrack-api/internal/models"
)

func TestCreateDeliveryFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notification_deliveries").WillReturnResult(sqlmock.NewResult(1, 1))

	delivery := &models.NotificationDelivery{
		UserID:    "u1",
		Type:      models.NotificationOverdue,
		Recipient: "student@example.com",
		Subject:   "Overdue",
	}
	err := repo.CreateDelivery(context.Background(), delivery)
	require.NoError(t, err)
	assert.NotEmpty(t, delivery.ID)
	assert.Equal(t, models.DeliveryQueued, delivery.Status)
	assert.False(t, delivery.QueuedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRecentDelivery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notification_deliveries WHERE user_id = $1 AND type = $2 AND entity_type = $3 AND entity_id = $4 AND queued_at > $5")).
		WillReturnRows(rows)

	recent, err := repo.HasRecentDelivery(context.Background(), "u1", models.NotificationOverdue, "loan", "loan-1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueuedTransitionsToSending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// The claim must flip status inside the same statement that selects the
	// rows; claiming without the transition would let a second processor
	// started mid-send re-select the same still-queued rows.
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "entity_type", "entity_id", "recipient", "subject", "body", "channel", "status", "attempts", "last_error", "queued_at", "sent_at"}).
		AddRow("d1", "u1", string(models.NotificationOverdue), "loan", "loan-1", "student@example.com", "Overdue", "<p>body</p>", "email", string(models.DeliverySending), 1, nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notification_deliveries SET status = 'SENDING', attempts = attempts + 1 WHERE id IN (SELECT id FROM notification_deliveries WHERE status = 'QUEUED' ORDER BY queued_at LIMIT $1 FOR UPDATE SKIP LOCKED)")).
		WithArgs(50).
		WillReturnRows(rows)

	deliveries, err := repo.ClaimQueued(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "d1", deliveries[0].ID)
	assert.Equal(t, models.DeliverySending, deliveries[0].Status)
	assert.Equal(t, 1, deliveries[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentSetsTerminalState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sentAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notification_deliveries SET status = 'SENT', sent_at = $2 WHERE id = $1")).
		WithArgs("d1", sentAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSent(context.Background(), "d1", sentAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRecordsError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notification_deliveries SET status = 'FAILED', last_error = $2 WHERE id = $1")).
		WithArgs("d1", "smtp timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), "d1", "smtp timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET read_at = ").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRead(context.Background(), "n1", "someone-else", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
