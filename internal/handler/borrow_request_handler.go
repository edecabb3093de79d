package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libratrack-api/internal/models"
	"github.com/noah-isme/libratrack-api/internal/service"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/response"
)

// BorrowRequestHandler handles the request approval workflow endpoints.
type BorrowRequestHandler struct {
	service *service.BorrowRequestService
}

// NewBorrowRequestHandler creates a new borrow request handler.
func NewBorrowRequestHandler(svc *service.BorrowRequestService) *BorrowRequestHandler {
	return &BorrowRequestHandler{service: svc}
}

// List godoc
// @Summary List borrow requests
// @Description Staff see all requests; students only their own.
// @Tags BorrowRequests
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Param book_id query string false "Book filter"
// @Success 200 {object} response.Envelope
// @Router /borrow-requests [get]
func (h *BorrowRequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.BorrowRequestFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if status := c.Query("status"); status != "" {
		st := models.BorrowRequestStatus(status)
		filter.Status = &st
	}
	if bookID := c.Query("book_id"); bookID != "" {
		filter.BookID = &bookID
	}

	if claims.Role == models.RoleStudent {
		filter.UserID = &claims.UserID
	} else if userID := c.Query("user_id"); userID != "" {
		filter.UserID = &userID
	}

	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, pagination)
}

// Submit godoc
// @Summary Submit borrow request
// @Description Student submits a request to borrow a book
// @Tags BorrowRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateBorrowRequestRequest true "Borrow request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrow-requests [post]
func (h *BorrowRequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateBorrowRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// Approve godoc
// @Summary Approve borrow request
// @Description Approve a pending request and create the loan
// @Tags BorrowRequests
// @Produce json
// @Param id path string true "Borrow request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrow-requests/{id}/approve [post]
func (h *BorrowRequestHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	loan, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Reject godoc
// @Summary Reject borrow request
// @Description Reject a pending request
// @Tags BorrowRequests
// @Produce json
// @Param id path string true "Borrow request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrow-requests/{id}/reject [post]
func (h *BorrowRequestHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, request, nil)
}
