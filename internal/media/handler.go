package media

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/totem-events/backend/internal/middleware"
	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/pkg/response"
)

// readLimit caps how much of an upload is buffered; anything longer already fails the size check.
const readLimit = 25*megabyte + 1

// Handler exposes the media routes of an event.
type Handler struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewHandler creates a media handler.
func NewHandler(pipeline *Pipeline, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pipeline: pipeline, logger: logger}
}

// Upload handles POST /events/:id/media/:variant (form field "file").
func (h *Handler) Upload(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	fd, err := readFile(fh)
	if err != nil {
		h.logger.Warn("read upload failed", zap.Error(err))
		response.BadRequest(c, "could not read uploaded file")
		return
	}

	item, err := h.pipeline.Upload(c.Request.Context(), middleware.ActorFrom(c), eventID, models.Variant(c.Param("variant")), fd)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UploadBatch handles POST /events/:id/media/:variant/batch (form field "files").
func (h *Handler) UploadBatch(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "multipart form required")
		return
	}
	headers := form.File["files"]
	files := make([]FileDescriptor, 0, len(headers))
	for _, fh := range headers {
		fd, err := readFile(fh)
		if err != nil {
			h.logger.Warn("read upload failed", zap.String("filename", fh.Filename), zap.Error(err))
			response.BadRequest(c, "could not read uploaded file "+fh.Filename)
			return
		}
		files = append(files, fd)
	}

	items, err := h.pipeline.UploadBatch(c.Request.Context(), middleware.ActorFrom(c), eventID, models.Variant(c.Param("variant")), files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"items": items, "count": len(items)})
}

// Delete handles DELETE /events/:id/media/:variant/:mediaId.
func (h *Handler) Delete(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	mediaID, err := uuid.Parse(c.Param("mediaId"))
	if err != nil {
		response.BadRequest(c, "invalid media id")
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), middleware.ActorFrom(c), eventID, models.Variant(c.Param("variant")), mediaID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func readFile(fh *multipart.FileHeader) (FileDescriptor, error) {
	f, err := fh.Open()
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, readLimit))
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return FileDescriptor{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
