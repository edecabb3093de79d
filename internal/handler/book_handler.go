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

// BookHandler handles catalog endpoints.
type BookHandler struct {
	service *service.BookService
}

// NewBookHandler creates a new book handler.
func NewBookHandler(svc *service.BookService) *BookHandler {
	return &BookHandler{service: svc}
}

// List godoc
// @Summary List books
// @Description List catalog items with pagination and filtering. Students only see non-archived books.
// @Tags Books
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Search term"
// @Param category_id query string false "Category filter"
// @Param school_id query string false "School filter"
// @Param archived query bool false "Archived filter (staff only)"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	var filter models.BookFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	filter.Search = c.Query("search")
	if categoryID := c.Query("category_id"); categoryID != "" {
		filter.CategoryID = &categoryID
	}
	if schoolID := c.Query("school_id"); schoolID != "" {
		filter.SchoolID = &schoolID
	}
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent {
		// Students never see archived inventory.
		archived := false
		filter.Archived = &archived
	} else if archivedQ := c.Query("archived"); archivedQ != "" {
		if val, err := strconv.ParseBool(archivedQ); err == nil {
			filter.Archived = &val
		}
	}

	books, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, books, pagination)
}

// Get godoc
// @Summary Get book
// @Description Get book detail including availability
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, book, nil)
}

// Create godoc
// @Summary Create book
// @Description Add a catalog item. The ISBN must pass ISBN-13 validation.
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Create book payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	book, err := h.service.Create(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, book)
}

// Update godoc
// @Summary Update book
// @Description Edit a catalog item. The ISBN must pass ISBN-13 validation.
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.UpdateBookRequest true "Update book payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	book, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, book, nil)
}

// Archive godoc
// @Summary Archive book
// @Description Hide a book from the catalog. Existing loans are unaffected.
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [delete]
func (h *BookHandler) Archive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Archive(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
