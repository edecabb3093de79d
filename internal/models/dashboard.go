package models

import "time"

// DashboardStats summarises circulation activity for librarians and admins.
type DashboardStats struct {
	TotalBooks      int       `json:"total_books"`
	ActiveLoans     int       `json:"active_loans"`
	OverdueLoans    int       `json:"overdue_loans"`
	PendingRequests int       `json:"pending_requests"`
	GeneratedAt     time.Time `json:"generated_at"`
}
