package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/jobs"
	"github.com/noah-isme/libratrack-api/pkg/mailer"
)

// spamControlWindow is the dedup window for repeat-prone notification types.
const spamControlWindow = 24 * time.Hour

// maxErrorLength bounds the error text retained on failed deliveries.
const maxErrorLength = 500

// deliveryPolicies maps each notification type to its email policy. Types
// missing from the table are treated as off.
var deliveryPolicies = map[models.NotificationType]models.DeliveryPolicy{
	models.NotificationBorrowRequestSubmitted: models.PolicyOff,
	models.NotificationBorrowRequestApproved:  models.PolicyOptional,
	models.NotificationBorrowRequestRejected:  models.PolicyOptional,
	models.NotificationLoanReturned:           models.PolicyOptional,
	models.NotificationDueSoon:                models.PolicyOptional,
	models.NotificationOverdue:                models.PolicyRequired,
	models.NotificationOverdueCritical:        models.PolicyRequired,
	models.NotificationLowStock:               models.PolicyOptional,
	models.NotificationEmailFailure:           models.PolicyRequired,
}

// spamControlledTypes lists the types subject to the 24h dedup window.
var spamControlledTypes = map[models.NotificationType]bool{
	models.NotificationOverdue:  true,
	models.NotificationLowStock: true,
}

// PolicyFor returns the delivery policy for a notification type.
func PolicyFor(typ models.NotificationType) models.DeliveryPolicy {
	if policy, ok := deliveryPolicies[typ]; ok {
		return policy
	}
	return models.PolicyOff
}

type notificationRepository interface {
	CreateDelivery(ctx context.Context, delivery *models.NotificationDelivery) error
	HasRecentDelivery(ctx context.Context, userID string, typ models.NotificationType, entityType, entityID string, window time.Duration) (bool, error)
	ClaimQueued(ctx context.Context, limit int) ([]models.NotificationDelivery, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	CreateNotification(ctx context.Context, notification *models.Notification) error
	ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) (bool, error)
}

type staffFinder interface {
	FindActiveStaff(ctx context.Context, roles []models.UserRole, schoolID *string) ([]models.User, error)
}

type notificationSettings interface {
	NotificationEnabled(ctx context.Context, typ models.NotificationType) bool
	SMTPConfig(ctx context.Context) mailer.SMTPConfig
}

// EmailSender delivers one HTML email.
type EmailSender interface {
	Send(cfg mailer.SMTPConfig, to, subject, htmlBody string) error
}

// QueueEmailInput describes one notification to enqueue for email delivery.
type QueueEmailInput struct {
	UserID     string
	Recipient  string
	Type       models.NotificationType
	EntityType string
	EntityID   string
	Subject    string
	Body       string
}

// ProcessResult summarises one queue-processor run.
type ProcessResult struct {
	Claimed int
	Sent    int
	Failed  int
}

// NotificationService implements the email notification pipeline: policy
// lookup, spam control, queued-then-delivered state transitions and failure
// escalation. Its errors are meant to be logged by callers, never surfaced
// to the business action that triggered the notification.
type NotificationService struct {
	repo     notificationRepository
	users    staffFinder
	settings notificationSettings
	sender   EmailSender
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the service. metrics may be nil when the
// caller runs without a Prometheus registry.
func NewNotificationService(repo notificationRepository, users staffFinder, settings notificationSettings, sender EmailSender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, settings: settings, sender: sender, metrics: metrics, logger: logger}
}

// QueueEmail enqueues one delivery row when policy allows. It returns an
// error only for observability; callers treat queueing as best-effort.
func (s *NotificationService) QueueEmail(ctx context.Context, input QueueEmailInput) error {
	switch PolicyFor(input.Type) {
	case models.PolicyOff:
		return nil
	case models.PolicyOptional:
		if !s.settings.NotificationEnabled(ctx, input.Type) {
			return nil
		}
	}

	if spamControlledTypes[input.Type] {
		recent, err := s.repo.HasRecentDelivery(ctx, input.UserID, input.Type, input.EntityType, input.EntityID, spamControlWindow)
		if err != nil {
			// Fail open: a broken dedup lookup must not block delivery.
			s.logger.Warn("spam control lookup failed", zap.String("type", string(input.Type)), zap.Error(err))
		} else if recent {
			s.logger.Debug("notification suppressed by spam control",
				zap.String("type", string(input.Type)),
				zap.String("user_id", input.UserID),
				zap.String("entity_id", input.EntityID))
			return nil
		}
	}

	delivery := &models.NotificationDelivery{
		UserID:     input.UserID,
		Type:       input.Type,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Recipient:  input.Recipient,
		Subject:    input.Subject,
		Body:       input.Body,
		Channel:    "email",
		Status:     models.DeliveryQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateDelivery(ctx, delivery); err != nil {
		s.logger.Warn("failed to queue notification delivery", zap.String("type", string(input.Type)), zap.Error(err))
		return err
	}
	s.metrics.RecordNotificationQueued(string(input.Type))
	return nil
}

// ProcessQueue claims up to limit queued deliveries and attempts SMTP
// delivery for each, using workers concurrent senders. Successful sends
// create the in-app notification row; failures are recorded and escalated.
func (s *NotificationService) ProcessQueue(ctx context.Context, limit, workers int) (ProcessResult, error) {
	deliveries, err := s.repo.ClaimQueued(ctx, limit)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("claim queued deliveries: %w", err)
	}

	result := ProcessResult{Claimed: len(deliveries)}
	if len(deliveries) == 0 {
		return result, nil
	}

	smtpCfg := s.settings.SMTPConfig(ctx)

	var mu sync.Mutex
	tasks := make([]jobs.Task, 0, len(deliveries))
	for i := range deliveries {
		delivery := deliveries[i]
		tasks = append(tasks, jobs.Task{
			ID: delivery.ID,
			Run: func(ctx context.Context) error {
				sent := s.deliver(ctx, smtpCfg, delivery)
				mu.Lock()
				if sent {
					result.Sent++
				} else {
					result.Failed++
				}
				mu.Unlock()
				return nil
			},
		})
	}

	pool := jobs.NewPool(workers, s.logger)
	pool.Run(ctx, tasks)
	return result, nil
}

// deliver attempts one SMTP send and applies the terminal state transition.
func (s *NotificationService) deliver(ctx context.Context, smtpCfg mailer.SMTPConfig, delivery models.NotificationDelivery) bool {
	sendErr := s.sender.Send(smtpCfg, delivery.Recipient, delivery.Subject, delivery.Body)
	if sendErr == nil {
		now := time.Now().UTC()
		if err := s.repo.MarkSent(ctx, delivery.ID, now); err != nil {
			s.logger.Warn("failed to mark delivery sent", zap.String("delivery_id", delivery.ID), zap.Error(err))
		}
		if err := s.repo.CreateNotification(ctx, &models.Notification{
			UserID:     delivery.UserID,
			Type:       delivery.Type,
			Title:      delivery.Subject,
			Body:       delivery.Body,
			EntityType: delivery.EntityType,
			EntityID:   delivery.EntityID,
		}); err != nil {
			s.logger.Warn("failed to create in-app notification", zap.String("delivery_id", delivery.ID), zap.Error(err))
		}
		s.metrics.RecordNotificationDelivered(string(delivery.Type), "sent")
		return true
	}

	if err := s.repo.MarkFailed(ctx, delivery.ID, truncateError(sendErr)); err != nil {
		s.logger.Warn("failed to mark delivery failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
	}
	s.metrics.RecordNotificationDelivered(string(delivery.Type), "failed")

	// Escalate to staff, guarding against EMAIL_FAILURE notifying about its
	// own failed delivery forever.
	if delivery.Type != models.NotificationEmailFailure {
		s.escalateFailure(ctx, delivery, sendErr)
	}
	return false
}

// escalateFailure queues one EMAIL_FAILURE notification to an active admin,
// falling back to a librarian when no admin exists.
func (s *NotificationService) escalateFailure(ctx context.Context, delivery models.NotificationDelivery, sendErr error) {
	staff, err := s.users.FindActiveStaff(ctx, []models.UserRole{models.RoleAdmin}, nil)
	if err != nil || len(staff) == 0 {
		if err != nil {
			s.logger.Warn("failed to find admin for escalation", zap.Error(err))
		}
		staff, err = s.users.FindActiveStaff(ctx, []models.UserRole{models.RoleLibrarian}, nil)
		if err != nil || len(staff) == 0 {
			if err != nil {
				s.logger.Warn("failed to find librarian for escalation", zap.Error(err))
			}
			s.logger.Error("email delivery failed with no staff to notify",
				zap.String("delivery_id", delivery.ID), zap.Error(sendErr))
			return
		}
	}

	recipient := staff[0]
	subject := fmt.Sprintf("Email delivery failure: %s", delivery.Type)
	body := fmt.Sprintf(
		"<p>Delivery of a <strong>%s</strong> notification to %s failed.</p><p>Error: %s</p>",
		delivery.Type, delivery.Recipient, truncateError(sendErr))

	if err := s.QueueEmail(ctx, QueueEmailInput{
		UserID:     recipient.ID,
		Recipient:  recipient.Email,
		Type:       models.NotificationEmailFailure,
		EntityType: "notification_delivery",
		EntityID:   delivery.ID,
		Subject:    subject,
		Body:       body,
	}); err != nil {
		s.logger.Warn("failed to queue email failure escalation", zap.Error(err))
	}
}

// List returns a user's in-app notifications.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	notifications, total, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return notifications, pagination, nil
}

// MarkRead acknowledges one of the user's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	return s.repo.MarkRead(ctx, id, userID, time.Now().UTC())
}

func truncateError(err error) string {
	text := err.Error()
	if len(text) > maxErrorLength {
		return text[:maxErrorLength]
	}
	return text
}
