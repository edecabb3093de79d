package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libratrack-api/internal/service"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/response"
)

// FavoriteHandler handles a user's saved books.
type FavoriteHandler struct {
	service *service.FavoriteService
}

// NewFavoriteHandler creates a new favorite handler.
func NewFavoriteHandler(svc *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{service: svc}
}

// List godoc
// @Summary List favorites
// @Tags Favorites
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /favorites [get]
func (h *FavoriteHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	favorites, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, favorites, nil)
}

// Add godoc
// @Summary Save favorite
// @Tags Favorites
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Book ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /favorites [post]
func (h *FavoriteHandler) Add(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		BookID string `json:"book_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "book_id required"))
		return
	}

	favorite, err := h.service.Add(c.Request.Context(), claims.UserID, payload.BookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, favorite)
}

// Remove godoc
// @Summary Remove favorite
// @Tags Favorites
// @Produce json
// @Param id path string true "Book ID"
// @Success 204 {object} response.Envelope
// @Router /favorites/{id} [delete]
func (h *FavoriteHandler) Remove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Remove(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
