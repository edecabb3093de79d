package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/mailer"
)

type settingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetAll(ctx context.Context) ([]models.Setting, error)
	Set(ctx context.Context, key, value string) error
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// SettingsService exposes typed access to the operator-editable settings
// table. Missing rows fall back to defaults rather than erroring: settings
// reads must never break the workflows that consult them.
type SettingsService struct {
	repo   settingsRepository
	audit  auditWriter
	logger *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(repo settingsRepository, audit auditWriter, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, audit: audit, logger: logger}
}

// List returns all settings with secret values masked.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	settings, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	for i := range settings {
		if settings[i].Key == models.SettingSMTPPassword && settings[i].Value != "" {
			settings[i].Value = "********"
		}
	}
	return settings, nil
}

// Update upserts the provided key/value pairs and records one audit row.
func (s *SettingsService) Update(ctx context.Context, values map[string]string, actorID string, meta models.LoginRequest) error {
	if len(values) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no settings provided")
	}
	keys := make([]string, 0, len(values))
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "setting key must not be empty")
		}
		if err := s.repo.Set(ctx, key, value); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
		}
		keys = append(keys, key)
	}

	payload, _ := json.Marshal(map[string]interface{}{"keys": keys})
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:    &actorID,
		Action:    models.AuditActionSettingsUpdate,
		Resource:  "settings",
		NewValues: payload,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record settings audit log", zap.Error(err))
	}
	return nil
}

// DueSoonDays returns the due-soon scan window in days.
func (s *SettingsService) DueSoonDays(ctx context.Context) int {
	return s.intSetting(ctx, models.SettingDueSoonDays, models.DefaultDueSoonDays)
}

// LoanPeriodDays returns the default lending period in days.
func (s *SettingsService) LoanPeriodDays(ctx context.Context) int {
	return s.intSetting(ctx, models.SettingLoanPeriodDays, models.DefaultLoanPeriodDays)
}

// LowStockThreshold returns the available-copy count at or below which
// librarians are alerted.
func (s *SettingsService) LowStockThreshold(ctx context.Context) int {
	return s.intSetting(ctx, models.SettingLowStockThreshold, models.DefaultLowStockThreshold)
}

// NotificationEnabled reports whether an optional-policy notification type is
// switched on. Absent rows count as enabled.
func (s *SettingsService) NotificationEnabled(ctx context.Context, typ models.NotificationType) bool {
	key := "notify_" + strings.ToLower(string(typ))
	value, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to read notification flag", zap.String("key", key), zap.Error(err))
		}
		return true
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "false", "0", "off", "no", "disabled":
		return false
	default:
		return true
	}
}

// SMTPConfig assembles the SMTP connection parameters from settings rows.
func (s *SettingsService) SMTPConfig(ctx context.Context) mailer.SMTPConfig {
	cfg := mailer.SMTPConfig{
		Host:     s.stringSetting(ctx, models.SettingSMTPHost),
		Username: s.stringSetting(ctx, models.SettingSMTPUsername),
		Password: s.stringSetting(ctx, models.SettingSMTPPassword),
		From:     s.stringSetting(ctx, models.SettingSMTPFrom),
		FromName: s.stringSetting(ctx, models.SettingSMTPFromName),
	}
	cfg.Port = s.intSetting(ctx, models.SettingSMTPPort, 587)
	return cfg
}

func (s *SettingsService) stringSetting(ctx context.Context, key string) string {
	value, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return value
}

func (s *SettingsService) intSetting(ctx context.Context, key string, fallback int) int {
	value, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		}
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
