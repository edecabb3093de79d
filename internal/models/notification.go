package models

import "time"

// NotificationType identifies the event a notification describes.
type NotificationType string

const (
	NotificationBorrowRequestSubmitted NotificationType = "BORROW_REQUEST_SUBMITTED"
	NotificationBorrowRequestApproved  NotificationType = "BORROW_REQUEST_APPROVED"
	NotificationBorrowRequestRejected  NotificationType = "BORROW_REQUEST_REJECTED"
	NotificationLoanReturned           NotificationType = "LOAN_RETURNED"
	NotificationDueSoon                NotificationType = "DUE_SOON"
	NotificationOverdue                NotificationType = "OVERDUE"
	NotificationOverdueCritical        NotificationType = "OVERDUE_CRITICAL"
	NotificationLowStock               NotificationType = "LOW_STOCK"
	NotificationEmailFailure           NotificationType = "EMAIL_FAILURE"
)

// DeliveryPolicy controls whether a notification type may be emailed.
type DeliveryPolicy string

const (
	PolicyRequired DeliveryPolicy = "required"
	PolicyOptional DeliveryPolicy = "optional"
	PolicyOff      DeliveryPolicy = "off"
)

// DeliveryStatus tracks the lifecycle of one email delivery attempt.
// A delivery starts QUEUED, is claimed into SENDING by exactly one
// processor run, and ends in exactly one terminal status.
type DeliveryStatus string

const (
	DeliveryQueued  DeliveryStatus = "QUEUED"
	DeliverySending DeliveryStatus = "SENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// Notification is an in-app notification row. It is created as a side effect
// of a successful email delivery, not at enqueue time.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Body       string           `db:"body" json:"body"`
	EntityType string           `db:"entity_type" json:"entity_type"`
	EntityID   string           `db:"entity_id" json:"entity_id"`
	ReadAt     *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// NotificationDelivery tracks one attempt to send a notification via email.
type NotificationDelivery struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	Type       NotificationType `db:"type" json:"type"`
	EntityType string           `db:"entity_type" json:"entity_type"`
	EntityID   string           `db:"entity_id" json:"entity_id"`
	Recipient  string           `db:"recipient" json:"recipient"`
	Subject    string           `db:"subject" json:"subject"`
	Body       string           `db:"body" json:"body"`
	Channel    string           `db:"channel" json:"channel"`
	Status     DeliveryStatus   `db:"status" json:"status"`
	Attempts   int              `db:"attempts" json:"attempts"`
	LastError  *string          `db:"last_error" json:"last_error,omitempty"`
	QueuedAt   time.Time        `db:"queued_at" json:"queued_at"`
	SentAt     *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
}

// NotificationFilter captures list filters for in-app notifications.
type NotificationFilter struct {
	UserID   string
	Unread   *bool
	Page     int
	PageSize int
}
