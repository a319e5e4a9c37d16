package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/linkcodec"
)

const anonymousCommenter = "Anonymous"

type commentStore interface {
	ListByTrack(ctx context.Context, trackID string) ([]models.ReviewComment, error)
	GetByID(ctx context.Context, id string) (*models.ReviewComment, error)
	Create(ctx context.Context, comment *models.ReviewComment) error
	UpdateBody(ctx context.Context, id string, body models.CommentBody) error
	Delete(ctx context.Context, id string) error
}

// CommentService manages review comments on pending rounds.
type CommentService struct {
	comments commentStore
	tracks   trackLoader
	images   *ImagePipeline
	notifier changeNotifier
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCommentService constructs the service. notifier may be nil.
func NewCommentService(comments commentStore, tracks trackLoader, images *ImagePipeline, notifier changeNotifier, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{comments: comments, tracks: tracks, images: images, notifier: notifier, validate: validate, logger: logger}
}

// List returns the comments of a round ordered by timestamp.
func (s *CommentService) List(ctx context.Context, projectID, trackID string) ([]models.ReviewComment, error) {
	if _, err := loadProjectTrack(ctx, s.tracks, projectID, trackID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTrack(ctx, trackID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list comments")
	}
	return comments, nil
}

// Add creates a comment authored by actor.
func (s *CommentService) Add(ctx context.Context, actor models.Actor, projectID, trackID string, req dto.CreateCommentRequest, files []ImageUpload) (*models.ReviewComment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid comment payload")
	}
	if strings.TrimSpace(req.Text) == "" && len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment text or images required")
	}
	track, err := loadProjectTrack(ctx, s.tracks, projectID, trackID)
	if err != nil {
		return nil, err
	}
	if !track.Pending() {
		return nil, stateConflict(track.ClientDecision)
	}
	if err := s.validateFiles(0, files); err != nil {
		return nil, err
	}

	text, links := linkcodec.Normalize(strings.TrimSpace(req.Text), nil)
	urls, err := s.upload(ctx, 0, files)
	if err != nil {
		return nil, err
	}
	comment := &models.ReviewComment{
		TrackID:       track.ID,
		Comment:       models.CommentBody{Text: text, Timestamp: req.Timestamp, Images: urls, Links: links},
		CommenterName: commenterName(actor, req.CommenterName),
	}
	if actor.Authenticated {
		id := actor.UserID
		comment.CommenterID = &id
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.images.ReportOrphaned(urls, err)
		return nil, s.rejectedCommentWrite(ctx, track.ID, err, "failed to create comment")
	}
	s.notify(projectID, track.ID)
	return comment, nil
}

// Edit changes a comment's text, timestamp or images. Only its author may edit it.
func (s *CommentService) Edit(ctx context.Context, actor models.Actor, projectID, trackID, commentID string, req dto.UpdateCommentRequest, files []ImageUpload) (*models.ReviewComment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid comment payload")
	}
	comment, track, err := s.ownedComment(ctx, actor, projectID, trackID, commentID)
	if err != nil {
		return nil, err
	}

	body := comment.Comment
	kept := body.Images
	if req.KeepImages != nil {
		kept, err = keepSubset(body.Images, req.KeepImages)
		if err != nil {
			return nil, err
		}
	}
	if err := s.validateFiles(len(kept), files); err != nil {
		return nil, err
	}
	if req.Text != nil {
		body.Text, body.Links = linkcodec.Normalize(strings.TrimSpace(*req.Text), body.Links)
	}
	if req.Timestamp != nil {
		body.Timestamp = *req.Timestamp
	}
	urls, err := s.upload(ctx, len(kept), files)
	if err != nil {
		return nil, err
	}
	body.Images = append(append([]string(nil), kept...), urls...)
	if err := body.Validate(); err != nil {
		s.images.ReportOrphaned(urls, err)
		return nil, validationError(err, "comment text or images required")
	}
	if err := s.comments.UpdateBody(ctx, comment.ID, body); err != nil {
		s.images.ReportOrphaned(urls, err)
		return nil, s.rejectedCommentWrite(ctx, track.ID, err, "failed to update comment")
	}
	comment.Comment = body
	s.notify(projectID, track.ID)
	return comment, nil
}

// Delete removes a comment. Only its author may delete it.
func (s *CommentService) Delete(ctx context.Context, actor models.Actor, projectID, trackID, commentID string) error {
	comment, track, err := s.ownedComment(ctx, actor, projectID, trackID, commentID)
	if err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, comment.ID); err != nil {
		return s.rejectedCommentWrite(ctx, track.ID, err, "failed to delete comment")
	}
	s.notify(projectID, track.ID)
	return nil
}

// ownedComment loads a comment of the round and checks, in order, existence, authorship
// and that the round is still pending.
func (s *CommentService) ownedComment(ctx context.Context, actor models.Actor, projectID, trackID, commentID string) (*models.ReviewComment, *models.Track, error) {
	track, err := loadProjectTrack(ctx, s.tracks, projectID, trackID)
	if err != nil {
		return nil, nil, err
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, nil, appErrors.Persistence(err, "failed to load comment")
	}
	if comment.TrackID != track.ID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}
	if !IsCommentOwner(actor, comment) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can change this comment")
	}
	if !track.Pending() {
		return nil, nil, stateConflict(track.ClientDecision)
	}
	return comment, track, nil
}

// rejectedCommentWrite explains a comment write the pending guard turned down.
func (s *CommentService) rejectedCommentWrite(ctx context.Context, trackID string, cause error, message string) error {
	if !errors.Is(cause, sql.ErrNoRows) {
		return appErrors.Persistence(cause, message)
	}
	track, err := loadTrack(ctx, s.tracks, trackID)
	if err != nil {
		return err
	}
	if !track.Pending() {
		return stateConflict(track.ClientDecision)
	}
	return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
}

func (s *CommentService) validateFiles(kept int, files []ImageUpload) error {
	if len(files) == 0 {
		return nil
	}
	if s.images == nil {
		return appErrors.Clone(appErrors.ErrInternal, "image uploads not configured")
	}
	return s.images.Validate(kept, files)
}

func (s *CommentService) upload(ctx context.Context, kept int, files []ImageUpload) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	return s.images.UploadBatch(ctx, kept, files)
}

func (s *CommentService) notify(projectID, trackID string) {
	if s.notifier != nil {
		s.notifier.TrackChanged(projectID, trackID)
	}
}

func keepSubset(existing, keep []string) ([]string, error) {
	have := make(map[string]struct{}, len(existing))
	for _, url := range existing {
		have[url] = struct{}{}
	}
	out := make([]string, 0, len(keep))
	seen := make(map[string]struct{}, len(keep))
	for _, url := range keep {
		if _, ok := have[url]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "keep_images may only list images of this comment")
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out, nil
}

func commenterName(actor models.Actor, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	if actor.Authenticated && actor.Name != "" {
		return actor.Name
	}
	return anonymousCommenter
}
