package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	"github.com/noah-isme/libratrack-api/pkg/mailer"
)

type mockNotificationRepo struct {
	mu sync.Mutex

	deliveries    []*models.NotificationDelivery
	notifications []*models.Notification
	recent        bool
	recentErr     error
	claimed       []models.NotificationDelivery
	claimErr      error
	sentIDs       []string
	failedIDs     []string
	failedErrors  []string
	createErr     error
}

func (m *mockNotificationRepo) CreateDelivery(ctx context.Context, delivery *models.NotificationDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.deliveries = append(m.deliveries, delivery)
	return nil
}

func (m *mockNotificationRepo) HasRecentDelivery(ctx context.Context, userID string, typ models.NotificationType, entityType, entityID string, window time.Duration) (bool, error) {
	if m.recentErr != nil {
		return false, m.recentErr
	}
	return m.recent, nil
}

// ClaimQueued models the repository contract: claimed rows leave the QUEUED
// pool inside the claim itself, so a second run cannot pick them up again.
func (m *mockNotificationRepo) ClaimQueued(ctx context.Context, limit int) ([]models.NotificationDelivery, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := m.claimed
	m.claimed = nil
	for i := range claimed {
		claimed[i].Status = models.DeliverySending
		claimed[i].Attempts++
	}
	return claimed, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentIDs = append(m.sentIDs, id)
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedIDs = append(m.failedIDs, id)
	m.failedErrors = append(m.failedErrors, lastError)
	return nil
}

func (m *mockNotificationRepo) CreateNotification(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification)
	return nil
}

func (m *mockNotificationRepo) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	out := make([]models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string, readAt time.Time) (bool, error) {
	for _, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			n.ReadAt = &readAt
			return true, nil
		}
	}
	return false, nil
}

type mockStaffFinder struct {
	staffByRole map[models.UserRole][]models.User
	err         error
}

func (m *mockStaffFinder) FindActiveStaff(ctx context.Context, roles []models.UserRole, schoolID *string) ([]models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.User
	for _, role := range roles {
		out = append(out, m.staffByRole[role]...)
	}
	return out, nil
}

type mockNotificationSettings struct {
	disabled map[models.NotificationType]bool
}

func (m *mockNotificationSettings) NotificationEnabled(ctx context.Context, typ models.NotificationType) bool {
	return !m.disabled[typ]
}

func (m *mockNotificationSettings) SMTPConfig(ctx context.Context) mailer.SMTPConfig {
	return mailer.SMTPConfig{Host: "localhost", Port: 1025, From: "library@example.com"}
}

type mockSender struct {
	mu     sync.Mutex
	sent   []string
	failFn func(to string) error
}

func (m *mockSender) Send(cfg mailer.SMTPConfig, to, subject, htmlBody string) error {
	if m.failFn != nil {
		if err := m.failFn(to); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func newNotificationFixture() (*NotificationService, *mockNotificationRepo, *mockStaffFinder, *mockSender) {
	repo := &mockNotificationRepo{}
	users := &mockStaffFinder{staffByRole: map[models.UserRole][]models.User{}}
	sender := &mockSender{}
	svc := NewNotificationService(repo, users, &mockNotificationSettings{}, sender, nil, zap.NewNop())
	return svc, repo, users, sender
}

func TestQueueEmailOffPolicyInsertsNothing(t *testing.T) {
	svc, repo, _, _ := newNotificationFixture()

	err := svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:    "u1",
		Recipient: "student@example.com",
		Type:      models.NotificationBorrowRequestSubmitted,
		Subject:   "Request received",
	})
	require.NoError(t, err)
	assert.Empty(t, repo.deliveries)
}

func TestQueueEmailOptionalRespectsToggle(t *testing.T) {
	repo := &mockNotificationRepo{}
	settings := &mockNotificationSettings{disabled: map[models.NotificationType]bool{models.NotificationDueSoon: true}}
	svc := NewNotificationService(repo, &mockStaffFinder{}, settings, &mockSender{}, nil, zap.NewNop())

	err := svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:    "u1",
		Recipient: "student@example.com",
		Type:      models.NotificationDueSoon,
	})
	require.NoError(t, err)
	assert.Empty(t, repo.deliveries)

	// Required types ignore the toggle entirely.
	settings.disabled[models.NotificationOverdue] = true
	err = svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:    "u1",
		Recipient: "student@example.com",
		Type:      models.NotificationOverdue,
		EntityID:  "loan-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.deliveries, 1)
	assert.Equal(t, models.DeliveryQueued, repo.deliveries[0].Status)
}

func TestQueueEmailSpamControlSuppressesRepeat(t *testing.T) {
	svc, repo, _, _ := newNotificationFixture()
	repo.recent = true

	err := svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:     "u1",
		Recipient:  "student@example.com",
		Type:       models.NotificationOverdue,
		EntityType: "loan",
		EntityID:   "loan-1",
	})
	require.NoError(t, err)
	assert.Empty(t, repo.deliveries)

	// APPROVED is not spam controlled, a repeat still queues.
	err = svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:     "u1",
		Recipient:  "student@example.com",
		Type:       models.NotificationBorrowRequestApproved,
		EntityType: "borrow_request",
		EntityID:   "req-1",
	})
	require.NoError(t, err)
	assert.Len(t, repo.deliveries, 1)
}

func TestQueueEmailSpamControlFailsOpen(t *testing.T) {
	svc, repo, _, _ := newNotificationFixture()
	repo.recentErr = errors.New("db down")

	err := svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:    "u1",
		Recipient: "student@example.com",
		Type:      models.NotificationOverdue,
		EntityID:  "loan-1",
	})
	require.NoError(t, err)
	assert.Len(t, repo.deliveries, 1)
}

func TestProcessQueueMarksSentAndCreatesNotification(t *testing.T) {
	svc, repo, _, sender := newNotificationFixture()
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationBorrowRequestApproved, Recipient: "student@example.com", Subject: "Approved", Body: "<p>ok</p>"},
	}

	result, err := svc.ProcessQueue(context.Background(), 50, 2)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Claimed: 1, Sent: 1, Failed: 0}, result)
	assert.Equal(t, []string{"d1"}, repo.sentIDs)
	assert.Equal(t, []string{"student@example.com"}, sender.sent)

	require.Len(t, repo.notifications, 1)
	assert.Equal(t, "u1", repo.notifications[0].UserID)
	assert.Equal(t, "Approved", repo.notifications[0].Title)
}

func TestProcessQueueConcurrentRunsSendOnce(t *testing.T) {
	svc, repo, _, sender := newNotificationFixture()
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationOverdue, Recipient: "student@example.com", Subject: "Overdue"},
	}

	// A second processor starting while the first is mid-send must claim
	// nothing; the claim transition, not timing, provides the exclusion.
	first, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)
	second, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)

	assert.Equal(t, ProcessResult{Claimed: 1, Sent: 1}, first)
	assert.Equal(t, ProcessResult{}, second)
	assert.Equal(t, []string{"student@example.com"}, sender.sent)
	assert.Equal(t, []string{"d1"}, repo.sentIDs)
}

func TestNotificationMetricsRecorded(t *testing.T) {
	repo := &mockNotificationRepo{}
	metrics := NewMetricsService()
	svc := NewNotificationService(repo, &mockStaffFinder{}, &mockNotificationSettings{}, &mockSender{}, metrics, zap.NewNop())

	err := svc.QueueEmail(context.Background(), QueueEmailInput{
		UserID:    "u1",
		Recipient: "student@example.com",
		Type:      models.NotificationOverdue,
		EntityID:  "loan-1",
	})
	require.NoError(t, err)

	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationOverdue, Recipient: "student@example.com"},
	}
	_, err = svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `notifications_queued_total{type="OVERDUE"} 1`)
	assert.Contains(t, body, `notifications_delivered_total{status="sent",type="OVERDUE"} 1`)
}

func TestProcessQueueFailureEscalatesToAdmin(t *testing.T) {
	svc, repo, users, sender := newNotificationFixture()
	users.staffByRole[models.RoleAdmin] = []models.User{{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin, Active: true}}
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationOverdue, Recipient: "student@example.com", Subject: "Overdue"},
	}
	sender.failFn = func(to string) error { return errors.New("smtp: connection refused") }

	result, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Claimed: 1, Sent: 0, Failed: 1}, result)
	assert.Equal(t, []string{"d1"}, repo.failedIDs)
	assert.Empty(t, repo.notifications)

	// Exactly one EMAIL_FAILURE queued, addressed to the admin.
	require.Len(t, repo.deliveries, 1)
	escalation := repo.deliveries[0]
	assert.Equal(t, models.NotificationEmailFailure, escalation.Type)
	assert.Equal(t, "admin-1", escalation.UserID)
	assert.Equal(t, "admin@example.com", escalation.Recipient)
	assert.Equal(t, "notification_delivery", escalation.EntityType)
	assert.Equal(t, "d1", escalation.EntityID)
}

func TestProcessQueueFailureFallsBackToLibrarian(t *testing.T) {
	svc, repo, users, sender := newNotificationFixture()
	users.staffByRole[models.RoleLibrarian] = []models.User{{ID: "lib-1", Email: "librarian@example.com", Role: models.RoleLibrarian, Active: true}}
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationOverdue, Recipient: "student@example.com"},
	}
	sender.failFn = func(to string) error { return errors.New("smtp timeout") }

	_, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)
	require.Len(t, repo.deliveries, 1)
	assert.Equal(t, "lib-1", repo.deliveries[0].UserID)
}

func TestProcessQueueEmailFailureNeverEscalatesItself(t *testing.T) {
	svc, repo, users, sender := newNotificationFixture()
	users.staffByRole[models.RoleAdmin] = []models.User{{ID: "admin-1", Email: "admin@example.com"}}
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "admin-1", Type: models.NotificationEmailFailure, Recipient: "admin@example.com"},
	}
	sender.failFn = func(to string) error { return errors.New("smtp down") }

	result, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, repo.deliveries, "a failed EMAIL_FAILURE must not queue another escalation")
}

func TestProcessQueueTruncatesLongErrors(t *testing.T) {
	svc, repo, _, sender := newNotificationFixture()
	repo.claimed = []models.NotificationDelivery{
		{ID: "d1", UserID: "u1", Type: models.NotificationEmailFailure, Recipient: "admin@example.com"},
	}
	sender.failFn = func(to string) error { return errors.New(strings.Repeat("x", 2000)) }

	_, err := svc.ProcessQueue(context.Background(), 50, 1)
	require.NoError(t, err)
	require.Len(t, repo.failedErrors, 1)
	assert.Len(t, repo.failedErrors[0], maxErrorLength)
}

func TestProcessQueueEmptyQueue(t *testing.T) {
	svc, _, _, _ := newNotificationFixture()

	result, err := svc.ProcessQueue(context.Background(), 50, 4)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{}, result)
}

func TestMarkReadUnknownNotification(t *testing.T) {
	svc, repo, _, _ := newNotificationFixture()
	repo.notifications = []*models.Notification{{ID: "n1", UserID: "u1"}}

	ok, err := svc.MarkRead(context.Background(), "n1", "someone-else")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.MarkRead(context.Background(), "n1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
