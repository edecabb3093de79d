package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libratrack-api/internal/models"
	"github.com/noah-isme/libratrack-api/internal/service"
	"github.com/noah-isme/libratrack-api/pkg/response"
)

// ReportHandler serves downloadable circulation reports.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Loans godoc
// @Summary Loans report
// @Description Download the loans report as CSV or PDF
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Status filter"
// @Param overdue query bool false "Overdue only"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/loans [get]
func (h *ReportHandler) Loans(c *gin.Context) {
	var filter models.LoanFilter
	if status := c.Query("status"); status != "" {
		st := models.LoanStatus(status)
		filter.Status = &st
	}
	if overdue := c.Query("overdue"); overdue != "" {
		if val, err := strconv.ParseBool(overdue); err == nil {
			filter.Overdue = &val
		}
	}
	if schoolID := c.Query("school_id"); schoolID != "" {
		filter.SchoolID = &schoolID
	}

	format := service.ReportFormat(c.DefaultQuery("format", "csv"))

	report, err := h.service.LoansReport(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+report.Filename)
	c.Data(http.StatusOK, report.ContentType, report.Data)
}
