package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionBookCreate     = "BOOK_CREATE"
	AuditActionBookUpdate     = "BOOK_UPDATE"
	AuditActionBookArchive    = "BOOK_ARCHIVE"
	AuditActionRequestApprove = "REQUEST_APPROVE"
	AuditActionRequestReject  = "REQUEST_REJECT"
	AuditActionLoanReturn     = "LOAN_RETURN"
	AuditActionLoanExtend     = "LOAN_EXTEND"
	AuditActionSettingsUpdate = "SETTINGS_UPDATE"
	AuditActionCategoryCreate = "CATEGORY_CREATE"
	AuditActionCategoryDelete = "CATEGORY_DELETE"
	AuditActionSchoolCreate   = "SCHOOL_CREATE"
	AuditActionSchoolUpdate   = "SCHOOL_UPDATE"
	AuditActionSchoolDelete   = "SCHOOL_DELETE"
	AuditActionFavoriteAdd    = "FAVORITE_ADD"
	AuditActionFavoriteRemove = "FAVORITE_REMOVE"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditLogFilter captures list filters for the audit trail.
type AuditLogFilter struct {
	UserID   *string
	Action   *string
	Resource *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
