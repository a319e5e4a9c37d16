package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/middleware"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

type projectService interface {
	CreateProject(ctx context.Context, actor models.Actor, req dto.CreateProjectRequest) (*dto.ProjectWithTrack, error)
	ListTracks(ctx context.Context, actor models.Actor, projectID string) ([]models.Track, error)
}

type passwordGate interface {
	Verify(ctx context.Context, projectID, password string) (*dto.VerifyPasswordResponse, error)
	SetPassword(ctx context.Context, actor models.Actor, projectID string, password *string) error
}

// AccessCookieConfig shapes the cookie holding a project access proof.
type AccessCookieConfig struct {
	Prefix string
	Secure bool
}

// ProjectHandler exposes project endpoints.
type ProjectHandler struct {
	projects projectService
	gate     passwordGate
	cookie   AccessCookieConfig
	now      func() time.Time
}

// NewProjectHandler constructs handler.
func NewProjectHandler(projects projectService, gate passwordGate, cookie AccessCookieConfig) *ProjectHandler {
	if cookie.Prefix == "" {
		cookie.Prefix = "project_access_"
	}
	return &ProjectHandler{projects: projects, gate: gate, cookie: cookie, now: time.Now}
}

// Create godoc
// @Summary Create project
// @Description Create a project and its first review round
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}
	result, err := h.projects.CreateProject(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListTracks godoc
// @Summary List rounds
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/tracks [get]
func (h *ProjectHandler) ListTracks(c *gin.Context) {
	tracks, err := h.projects.ListTracks(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracks, map[string]interface{}{"total": len(tracks)})
}

// SetPassword godoc
// @Summary Set or clear the project password
// @Description A non-empty password enables protection; null or empty disables it. Existing access proofs are revoked.
// @Tags Projects
// @Accept json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Param payload body dto.SetPasswordRequest true "Password payload"
// @Success 204
// @Router /projects/{id}/password [put]
func (h *ProjectHandler) SetPassword(c *gin.Context) {
	var req dto.SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid password payload"))
		return
	}
	if err := h.gate.SetPassword(c.Request.Context(), actorFromContext(c), c.Param("id"), req.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// VerifyPassword godoc
// @Summary Unlock a protected project
// @Description On success the access proof is returned and set as a cookie.
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.VerifyPasswordRequest true "Password"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/verify-password [post]
func (h *ProjectHandler) VerifyPassword(c *gin.Context) {
	var req dto.VerifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid password payload"))
		return
	}
	projectID := c.Param("id")
	result, err := h.gate.Verify(c.Request.Context(), projectID, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Success && result.Token != "" && result.ExpiresAt != nil {
		maxAge := int(result.ExpiresAt.Sub(h.now()).Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookie.Prefix+projectID, result.Token, maxAge, "/", "", h.cookie.Secure, true)
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}
