package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/totem-events/backend/internal/auth"
	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/pkg/response"
)

// ContextActor is the key for the authenticated *models.Actor in gin context.
const ContextActor = "actor"

// JWT returns a middleware that requires a valid bearer token and sets the actor in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ContextActor, claims.Actor())
		c.Next()
	}
}

// OptionalJWT sets the actor when a valid bearer token is present. Requests without one, or with
// an invalid one, continue anonymously.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := jwtService.Validate(token); err == nil {
				c.Set(ContextActor, claims.Actor())
			}
		}
		c.Next()
	}
}

// RequireAdmin allows only administrators. Must run after JWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor == nil {
			response.Unauthorized(c, "missing user context")
			return
		}
		if !actor.Admin {
			response.Forbidden(c, "insufficient permissions")
			return
		}
		c.Next()
	}
}

// ActorFrom returns the request actor, or nil for anonymous requests.
func ActorFrom(c *gin.Context) *models.Actor {
	v, ok := c.Get(ContextActor)
	if !ok {
		return nil
	}
	actor, _ := v.(*models.Actor)
	return actor
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
