package media

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/middleware"
	"github.com/totem-events/backend/internal/models"
)

type uploadPart struct {
	field, filename, contentType string
	data                         []byte
}

func multipartBody(t *testing.T, parts ...uploadPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newMediaRouter(f *pipelineFixture, actor *models.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.pipeline, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if actor != nil {
			c.Set(middleware.ContextActor, actor)
		}
		c.Next()
	})
	r.POST("/events/:id/media/:variant", h.Upload)
	r.POST("/events/:id/media/:variant/batch", h.UploadBatch)
	r.DELETE("/events/:id/media/:variant/:mediaId", h.Delete)
	return r
}

func TestHandlerUpload(t *testing.T) {
	f := newPipelineFixture(t)
	r := newMediaRouter(f, f.owner)

	body, ct := multipartBody(t, uploadPart{"file", "capa.png", "image/png", pngBytes(t, 1080, 1920)})
	req := httptest.NewRequest(http.MethodPost, "/events/"+f.event.ID.String()+"/media/cover", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Success bool         `json:"success"`
		Data    models.Media `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.VariantCover, resp.Data.Variant)
	assert.Len(t, f.store.event.Cover, 1)
}

func TestHandlerUploadErrors(t *testing.T) {
	f := newPipelineFixture(t)

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, uploadPart{"other", "capa.png", "image/png", []byte("x")})
		req := httptest.NewRequest(http.MethodPost, "/events/"+f.event.ID.String()+"/media/cover", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newMediaRouter(f, f.owner).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		body, ct := multipartBody(t, uploadPart{"file", "capa.png", "image/png", pngBytes(t, 1080, 1920)})
		req := httptest.NewRequest(http.MethodPost, "/events/"+f.event.ID.String()+"/media/cover", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newMediaRouter(f, nil).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("bad event id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/events/nope/media/cover", nil)
		w := httptest.NewRecorder()
		newMediaRouter(f, f.owner).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Empty(t, f.blobs.writes)
}

func TestHandlerUploadBatchReportsFailingFile(t *testing.T) {
	f := newPipelineFixture(t)
	r := newMediaRouter(f, f.owner)

	body, ct := multipartBody(t,
		uploadPart{"files", "1.png", "image/png", pngBytes(t, 1080, 1920)},
		uploadPart{"files", "2.jpg", "image/jpeg", pngBytes(t, 1080, 1920)},
	)
	req := httptest.NewRequest(http.MethodPost, "/events/"+f.event.ID.String()+"/media/carousel/batch", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "files[1]", resp.Field)
	assert.Contains(t, resp.Error, "2.jpg")
	assert.Empty(t, f.blobs.writes)
}

func TestHandlerDelete(t *testing.T) {
	f := newPipelineFixture(t)
	r := newMediaRouter(f, f.owner)

	req := httptest.NewRequest(http.MethodDelete, "/events/"+f.event.ID.String()+"/media/cover/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	item, err := f.pipeline.Upload(req.Context(), f.owner, f.event.ID, models.VariantCover, coverFile(t, "capa.png"))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodDelete, "/events/"+f.event.ID.String()+"/media/cover/"+item.ID.String(), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.store.event.Cover)
}
