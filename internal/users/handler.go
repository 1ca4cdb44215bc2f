package users

import (
	"github.com/gin-gonic/gin"

	"github.com/totem-events/backend/pkg/response"
)

// Handler handles user HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a users handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /users (admin only; used to pick share targets and new organizers).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
