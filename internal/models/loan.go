package models

import "time"

// LoanStatus enumerates circulation states.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
)

// Loan is a lending record created when a borrow request is approved.
// RequestID back-references the originating request and is nil for direct
// librarian checkouts.
type Loan struct {
	ID            string     `db:"id" json:"id"`
	RequestID     *string    `db:"request_id" json:"request_id,omitempty"`
	UserID        string     `db:"user_id" json:"user_id"`
	BookID        string     `db:"book_id" json:"book_id"`
	Status        LoanStatus `db:"status" json:"status"`
	DueAt         time.Time  `db:"due_at" json:"due_at"`
	ExtendedDueAt *time.Time `db:"extended_due_at" json:"extended_due_at,omitempty"`
	ReturnedAt    *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveDueAt returns the extension date when one was granted.
func (l *Loan) EffectiveDueAt() time.Time {
	if l.ExtendedDueAt != nil {
		return *l.ExtendedDueAt
	}
	return l.DueAt
}

// IsOverdue reports whether the loan is still out past its effective due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanBorrowed && l.EffectiveDueAt().Before(now)
}

// OverdueDays returns whole days past the effective due date, zero when not
// overdue.
func (l *Loan) OverdueDays(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(l.EffectiveDueAt()).Hours() / 24)
}

// LoanFilter captures list filters for loans.
type LoanFilter struct {
	UserID   *string
	BookID   *string
	Status   *LoanStatus
	SchoolID *string
	Overdue  *bool
	Page     int
	PageSize int
}
