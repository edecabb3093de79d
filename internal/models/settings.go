package models

import "time"

// Setting is one key/value row from the operator-editable settings table.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Well-known setting keys.
const (
	SettingSMTPHost     = "smtp_host"
	SettingSMTPPort     = "smtp_port"
	SettingSMTPUsername = "smtp_username"
	SettingSMTPPassword = "smtp_password"
	SettingSMTPFrom     = "smtp_from"
	SettingSMTPFromName = "smtp_from_name"

	SettingDueSoonDays       = "due_soon_days"
	SettingLoanPeriodDays    = "loan_period_days"
	SettingLowStockThreshold = "low_stock_threshold"
)

// Defaults applied when a settings row is absent.
const (
	DefaultDueSoonDays       = 3
	DefaultLoanPeriodDays    = 14
	DefaultLowStockThreshold = 1
)
