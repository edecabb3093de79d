package models

import "time"

// Book represents a catalog item. ISBN is intentionally not unique: multiple
// schools may list the same title as separate inventory rows.
type Book struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Author      string    `db:"author" json:"author"`
	ISBN        string    `db:"isbn" json:"isbn"`
	CategoryID  *string   `db:"category_id" json:"category_id,omitempty"`
	SchoolID    *string   `db:"school_id" json:"school_id,omitempty"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Archived    bool      `db:"archived" json:"archived"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// ActiveLoans is populated by list/detail queries, not a column.
	ActiveLoans int `db:"active_loans" json:"active_loans"`
}

// Available returns the number of copies not currently on loan.
func (b *Book) Available() int {
	avail := b.Quantity - b.ActiveLoans
	if avail < 0 {
		return 0
	}
	return avail
}

// BookFilter captures filtering criteria for listing books.
type BookFilter struct {
	Search     string
	CategoryID *string
	SchoolID   *string
	Archived   *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
