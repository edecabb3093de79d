package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/export"
)

type auditLogRepository interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

// LogService exposes the audit trail to administrators.
type LogService struct {
	repo   auditLogRepository
	csv    exporter
	logger *zap.Logger
	now    func() time.Time
}

// NewLogService creates a LogService.
func NewLogService(repo auditLogRepository, logger *zap.Logger) *LogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogService{repo: repo, csv: export.NewCSVExporter(), logger: logger, now: time.Now}
}

// List returns paginated audit log entries.
func (s *LogService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ExportCSV renders the matching audit trail as a CSV download.
func (s *LogService) ExportCSV(ctx context.Context, filter models.AuditLogFilter) (*Report, error) {
	filter.Page = 1
	filter.PageSize = 10000

	logs, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs for export")
	}

	dataset := export.Dataset{
		Title:   "Audit Log",
		Headers: []string{"Time", "User ID", "Action", "Resource", "Resource ID", "IP"},
		Rows:    make([][]string, 0, len(logs)),
	}
	for i := range logs {
		entry := &logs[i]
		userID := ""
		if entry.UserID != nil {
			userID = *entry.UserID
		}
		resourceID := ""
		if entry.ResourceID != nil {
			resourceID = *entry.ResourceID
		}
		dataset.Rows = append(dataset.Rows, []string{
			entry.CreatedAt.Format(time.RFC3339),
			userID,
			entry.Action,
			entry.Resource,
			resourceID,
			entry.IPAddress,
		})
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit log export")
	}

	filename := fmt.Sprintf("audit-log-%s.csv", s.now().UTC().Format("20060102-150405"))
	return &Report{Filename: filename, ContentType: "text/csv", Data: data}, nil
}
