package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

type profileResolver interface {
	EditorProfile(ctx context.Context, actor models.Actor) (*models.Profile, error)
}

// AuthHandler exposes identity endpoints. Tokens are issued by the identity provider.
type AuthHandler struct {
	profiles profileResolver
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(profiles profileResolver) *AuthHandler {
	return &AuthHandler{profiles: profiles}
}

type meResponse struct {
	UserID  string          `json:"user_id"`
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Profile *models.Profile `json:"profile,omitempty"`
}

// Me godoc
// @Summary Current identity
// @Description Returns the caller and, for editors, their profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor := actorFromContext(c)
	if !actor.Authenticated {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res := meResponse{UserID: actor.UserID, Email: actor.Email, Name: actor.Name}
	profile, err := h.profiles.EditorProfile(c.Request.Context(), actor)
	switch {
	case err == nil:
		res.Profile = profile
	case appErrors.FromError(err).Status == http.StatusForbidden:
	default:
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
