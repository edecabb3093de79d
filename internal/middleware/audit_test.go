package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libratrack-api/internal/models"
)

type auditWriterStub struct {
	logs []*models.AuditLog
}

func (s *auditWriterStub) Create(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func TestAuditRecordsSuccessfulMutation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &auditWriterStub{}

	router := gin.New()
	router.DELETE("/schools/:id", func(c *gin.Context) {
		claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
		c.Set(ContextUserKey, claims)
		c.Next()
	}, Audit(writer, models.AuditActionSchoolDelete, "schools"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/schools/sch-1", nil)
	req.Header.Set("User-Agent", "test-agent")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(writer.logs) != 1 {
		t.Fatalf("expected one audit log, got %d", len(writer.logs))
	}
	log := writer.logs[0]
	if log.Action != models.AuditActionSchoolDelete || log.Resource != "schools" {
		t.Fatalf("unexpected audit entry: %s %s", log.Action, log.Resource)
	}
	if log.UserID == nil || *log.UserID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %v", log.UserID)
	}
	if log.ResourceID == nil || *log.ResourceID != "sch-1" {
		t.Fatalf("expected resource id sch-1, got %v", log.ResourceID)
	}
	if log.UserAgent != "test-agent" {
		t.Fatalf("unexpected user agent: %s", log.UserAgent)
	}
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &auditWriterStub{}

	router := gin.New()
	router.POST("/categories", Audit(writer, models.AuditActionCategoryCreate, "categories"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/categories", nil))

	if len(writer.logs) != 0 {
		t.Fatalf("failed request must not be audited, got %d entries", len(writer.logs))
	}
}
