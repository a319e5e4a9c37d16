package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/service"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

// ContextActorKey is the gin context key storing the request actor.
const ContextActorKey = "currentActor"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			err := appErrors.ErrUnauthorized
			if c.GetHeader("Authorization") != "" {
				err = appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, models.ActorFromClaims(claims))
		c.Next()
	}
}

// OptionalJWT resolves the actor when a valid token is present and falls back to
// an anonymous actor otherwise.
func OptionalJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := models.AnonymousActor()
		if token, ok := bearerToken(c); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				actor = models.ActorFromClaims(claims)
			}
		}
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor resolved for the request, anonymous when none was set.
func ActorFrom(c *gin.Context) models.Actor {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return models.AnonymousActor()
	}
	actor, ok := value.(models.Actor)
	if !ok {
		return models.AnonymousActor()
	}
	return actor
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
