package events

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/middleware"
	"github.com/totem-events/backend/pkg/response"
)

// Handler handles event HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an events handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /events. Anonymous callers see active events only unless include_inactive=true.
func (h *Handler) List(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	page, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, page)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	e, err := h.svc.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var in EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	e, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// Update handles PATCH /events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var patch EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	e, err := h.svc.Update(c.Request.Context(), middleware.ActorFrom(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// SetStatus handles PATCH /events/:id/status.
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var in StatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	e, err := h.svc.SetStatus(c.Request.Context(), middleware.ActorFrom(c), id, in.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// TransferOrganizer handles PATCH /events/:id/organizer (admin only).
func (h *Handler) TransferOrganizer(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var in TransferInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		response.Error(c, apperr.Validation("user_id", "must be a UUID"))
		return
	}
	e, err := h.svc.TransferOrganizer(c.Request.Context(), middleware.ActorFrom(c), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// ListPermissions handles GET /events/:id/permissions.
func (h *Handler) ListPermissions(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	list, err := h.svc.ListPermissions(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Share handles POST /events/:id/permissions.
func (h *Handler) Share(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var in ShareInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	p, err := h.svc.Share(c.Request.Context(), middleware.ActorFrom(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// Revoke handles DELETE /events/:id/permissions/:userId.
func (h *Handler) Revoke(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.Revoke(c.Request.Context(), middleware.ActorFrom(c), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Totem handles GET /totem/events.
func (h *Handler) Totem(c *gin.Context) {
	list, err := h.svc.Totem(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}
