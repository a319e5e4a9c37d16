package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/middleware"
	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/service"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

type trackService interface {
	GetTrack(ctx context.Context, projectID, trackID string) (*dto.TrackView, error)
	DeliverRound(ctx context.Context, actor models.Actor, trackID string, req dto.DeliverRoundRequest) (*models.Track, error)
	SetStepStatus(ctx context.Context, actor models.Actor, trackID string, index int, req dto.SetStepStatusRequest) (*models.Track, error)
	RestructureSteps(ctx context.Context, actor models.Actor, trackID string, req dto.RestructureStepsRequest) (*models.Track, error)
	UpdateStepContent(ctx context.Context, actor models.Actor, trackID string, req dto.UpdateStepContentRequest, uploads map[int][]service.ImageUpload) (*models.Track, error)
	RequestRevisions(ctx context.Context, actor models.Actor, projectID, trackID string, version int) (*models.Track, error)
	Approve(ctx context.Context, actor models.Actor, projectID, trackID string, version int) (*models.Track, error)
}

type roundExporter interface {
	RoundSheet(ctx context.Context, actor models.Actor, trackID string, format service.ExportFormat) (*service.ExportResult, error)
}

// TrackHandler exposes round endpoints for editors and reviewers.
type TrackHandler struct {
	tracks  trackService
	exports roundExporter
	limits  UploadLimits
}

// NewTrackHandler constructs handler.
func NewTrackHandler(tracks trackService, exports roundExporter, limits UploadLimits) *TrackHandler {
	return &TrackHandler{tracks: tracks, exports: exports, limits: limits}
}

// Get godoc
// @Summary Review page of a round
// @Tags Review
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param X-Project-Access header string false "Access proof for protected projects"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId} [get]
func (h *TrackHandler) Get(c *gin.Context) {
	view, err := h.tracks.GetTrack(c.Request.Context(), c.Param("id"), c.Param("trackId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}

// Deliver godoc
// @Summary Deliver a round
// @Description Completes every step and records the deliverable link on the final step
// @Tags Tracks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param trackId path string true "Track ID"
// @Param payload body dto.DeliverRoundRequest true "Delivery"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tracks/{trackId}/deliver [post]
func (h *TrackHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deliver payload"))
		return
	}
	track, err := h.tracks.DeliverRound(c.Request.Context(), actorFromContext(c), c.Param("trackId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, track, nil)
}

// SetStepStatus godoc
// @Summary Toggle one step
// @Tags Tracks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param trackId path string true "Track ID"
// @Param index path int true "Step index"
// @Param payload body dto.SetStepStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tracks/{trackId}/steps/{index}/status [patch]
func (h *TrackHandler) SetStepStatus(c *gin.Context) {
	index, err := intParam(c, "index")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetStepStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid step status payload"))
		return
	}
	track, err := h.tracks.SetStepStatus(c.Request.Context(), actorFromContext(c), c.Param("trackId"), index, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, track, nil)
}

// Restructure godoc
// @Summary Replace the steps of a round
// @Tags Tracks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param trackId path string true "Track ID"
// @Param payload body dto.RestructureStepsRequest true "Steps"
// @Success 200 {object} response.Envelope
// @Router /tracks/{trackId}/steps [put]
func (h *TrackHandler) Restructure(c *gin.Context) {
	var req dto.RestructureStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid steps payload"))
		return
	}
	track, err := h.tracks.RestructureSteps(c.Request.Context(), actorFromContext(c), c.Param("trackId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, track, nil)
}

// UpdateContent godoc
// @Summary Bulk edit step content
// @Description Multipart body: a JSON "payload" field plus image files named images_<index>
// @Tags Tracks
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param trackId path string true "Track ID"
// @Param payload formData string true "dto.UpdateStepContentRequest as JSON"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /tracks/{trackId}/steps/content [post]
func (h *TrackHandler) UpdateContent(c *gin.Context) {
	var req dto.UpdateStepContentRequest
	if err := bindPayload(c, &req, "invalid content payload"); err != nil {
		response.Error(c, err)
		return
	}
	uploads, err := indexedFormImages(c, h.limits)
	if err != nil {
		response.Error(c, err)
		return
	}
	track, err := h.tracks.UpdateStepContent(c.Request.Context(), actorFromContext(c), c.Param("trackId"), req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, track, nil)
}

// Export godoc
// @Summary Export the feedback of a round
// @Tags Tracks
// @Produce text/csv,application/pdf
// @Security BearerAuth
// @Param trackId path string true "Track ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /tracks/{trackId}/export [get]
func (h *TrackHandler) Export(c *gin.Context) {
	result, err := h.exports.RoundSheet(c.Request.Context(), actorFromContext(c), c.Param("trackId"), service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

// RequestRevisions godoc
// @Summary Request another round
// @Description Closes the round and opens the next one from its comments
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param payload body dto.RoundDecisionRequest true "Version seen by the client"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/request-revisions [post]
func (h *TrackHandler) RequestRevisions(c *gin.Context) {
	var req dto.RoundDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	next, err := h.tracks.RequestRevisions(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("trackId"), req.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, next)
}

// Approve godoc
// @Summary Approve the round
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param payload body dto.RoundDecisionRequest true "Version seen by the client"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/approve [post]
func (h *TrackHandler) Approve(c *gin.Context) {
	var req dto.RoundDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	track, err := h.tracks.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("trackId"), req.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, track, nil)
}
