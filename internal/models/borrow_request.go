package models

import "time"

// BorrowRequestStatus enumerates the approval workflow states.
type BorrowRequestStatus string

const (
	BorrowRequestPending  BorrowRequestStatus = "PENDING"
	BorrowRequestApproved BorrowRequestStatus = "APPROVED"
	BorrowRequestRejected BorrowRequestStatus = "REJECTED"
)

// BorrowRequest is a student's request to borrow a book. It transitions
// PENDING to exactly one of APPROVED or REJECTED; the deciding librarian and
// timestamp are recorded on transition.
type BorrowRequest struct {
	ID        string              `db:"id" json:"id"`
	UserID    string              `db:"user_id" json:"user_id"`
	BookID    string              `db:"book_id" json:"book_id"`
	Status    BorrowRequestStatus `db:"status" json:"status"`
	Note      string              `db:"note" json:"note"`
	DecidedBy *string             `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt *time.Time          `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}

// BorrowRequestFilter captures list filters for the approval queue.
type BorrowRequestFilter struct {
	UserID   *string
	BookID   *string
	Status   *BorrowRequestStatus
	SchoolID *string
	Page     int
	PageSize int
}
