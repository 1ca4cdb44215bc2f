package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/auth"
	"github.com/totem-events/backend/internal/models"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		if actor := ActorFrom(c); actor != nil {
			c.String(http.StatusOK, actor.ID.String())
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	user := models.User{ID: uuid.New(), Email: "ana@example.com"}
	token, err := svc.Generate(user)
	require.NoError(t, err)

	r := newRouter(JWT(svc))
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	w := do(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID.String(), w.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	token, err := svc.Generate(models.User{ID: uuid.New()})
	require.NoError(t, err)

	r := newRouter(OptionalJWT(svc))
	assert.Equal(t, "anonymous", do(r, "").Body.String())
	assert.Equal(t, "anonymous", do(r, "garbage").Body.String())
	assert.NotEqual(t, "anonymous", do(r, token).Body.String())
}

func TestRequireAdmin(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	admin, err := svc.Generate(models.User{ID: uuid.New(), Admin: true})
	require.NoError(t, err)
	organizer, err := svc.Generate(models.User{ID: uuid.New()})
	require.NoError(t, err)

	r := newRouter(JWT(svc), RequireAdmin())
	assert.Equal(t, http.StatusOK, do(r, admin).Code)
	assert.Equal(t, http.StatusForbidden, do(r, organizer).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1)
	r := newRouter(rl.Middleware())
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	w := do(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://admin.example.com/, http://localhost:3000"))
	r.GET("/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestCORSWildcard(t *testing.T) {
	for _, origins := range []string{"*", ""} {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(CORS(origins))
		r.GET("/totem/events", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/totem/events", nil)
		req.Header.Set("Origin", "http://totem.local")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), "origins %q", origins)
	}
}
