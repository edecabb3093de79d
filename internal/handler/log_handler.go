package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libratrack-api/internal/models"
	"github.com/noah-isme/libratrack-api/internal/service"
	"github.com/noah-isme/libratrack-api/pkg/response"
)

// LogHandler exposes the audit trail to administrators.
type LogHandler struct {
	service *service.LogService
}

// NewLogHandler creates a new log handler.
func NewLogHandler(svc *service.LogService) *LogHandler {
	return &LogHandler{service: svc}
}

func auditFilterFromQuery(c *gin.Context) models.AuditLogFilter {
	var filter models.AuditLogFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if userID := c.Query("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if action := c.Query("action"); action != "" {
		filter.Action = &action
	}
	if resource := c.Query("resource"); resource != "" {
		filter.Resource = &resource
	}
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &ts
		}
	}

	return filter
}

// List godoc
// @Summary List audit logs
// @Tags Logs
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param user_id query string false "User filter"
// @Param action query string false "Action filter"
// @Param resource query string false "Resource filter"
// @Success 200 {object} response.Envelope
// @Router /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	logs, pagination, err := h.service.List(c.Request.Context(), auditFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, pagination)
}

// Export godoc
// @Summary Export audit logs
// @Description Download the matching audit trail as CSV
// @Tags Logs
// @Produce text/csv
// @Success 200 {file} file
// @Router /logs/export [get]
func (h *LogHandler) Export(c *gin.Context) {
	report, err := h.service.ExportCSV(c.Request.Context(), auditFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+report.Filename)
	c.Data(http.StatusOK, report.ContentType, report.Data)
}
