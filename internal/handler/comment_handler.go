package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/middleware"
	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/service"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

type commentService interface {
	List(ctx context.Context, projectID, trackID string) ([]models.ReviewComment, error)
	Add(ctx context.Context, actor models.Actor, projectID, trackID string, req dto.CreateCommentRequest, files []service.ImageUpload) (*models.ReviewComment, error)
	Edit(ctx context.Context, actor models.Actor, projectID, trackID, commentID string, req dto.UpdateCommentRequest, files []service.ImageUpload) (*models.ReviewComment, error)
	Delete(ctx context.Context, actor models.Actor, projectID, trackID, commentID string) error
}

// CommentHandler exposes review comment endpoints.
type CommentHandler struct {
	comments commentService
	limits   UploadLimits
}

// NewCommentHandler constructs handler.
func NewCommentHandler(comments commentService, limits UploadLimits) *CommentHandler {
	return &CommentHandler{comments: comments, limits: limits}
}

// List godoc
// @Summary List comments of a round
// @Tags Review
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.comments.List(c.Request.Context(), c.Param("id"), c.Param("trackId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["total"] = len(comments)
	response.JSON(c, http.StatusOK, comments, meta)
}

// Create godoc
// @Summary Add a comment
// @Description JSON body, or multipart with a JSON "payload" field plus up to four "images" files
// @Tags Review
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param payload body dto.CreateCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	if err := bindPayload(c, &req, "invalid comment payload"); err != nil {
		response.Error(c, err)
		return
	}
	files, err := formImages(c, h.limits)
	if err != nil {
		response.Error(c, err)
		return
	}
	comment, err := h.comments.Add(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("trackId"), req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// Update godoc
// @Summary Edit own comment
// @Tags Review
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param commentId path string true "Comment ID"
// @Param payload body dto.UpdateCommentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/comments/{commentId} [patch]
func (h *CommentHandler) Update(c *gin.Context) {
	var req dto.UpdateCommentRequest
	if err := bindPayload(c, &req, "invalid comment payload"); err != nil {
		response.Error(c, err)
		return
	}
	files, err := formImages(c, h.limits)
	if err != nil {
		response.Error(c, err)
		return
	}
	comment, err := h.comments.Edit(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("trackId"), c.Param("commentId"), req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comment, nil)
}

// Delete godoc
// @Summary Delete own comment
// @Tags Review
// @Param id path string true "Project ID"
// @Param trackId path string true "Track ID"
// @Param commentId path string true "Comment ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/tracks/{trackId}/comments/{commentId} [delete]
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.comments.Delete(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("trackId"), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
