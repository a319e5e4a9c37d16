package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/repository"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type trackStore interface {
	GetByID(ctx context.Context, id string) (*models.Track, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Track, error)
	UpdateSteps(ctx context.Context, params repository.UpdateStepsParams) (int, error)
	RequestRevisions(ctx context.Context, params repository.RequestRevisionsParams) (*models.Track, error)
	Approve(ctx context.Context, params repository.ApproveParams) error
}

type projectStore interface {
	CreateWithTrack(ctx context.Context, project *models.Project, track *models.Track) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	UpdatePassword(ctx context.Context, id string, hash *string) error
	FindProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

type changeNotifier interface {
	TrackChanged(projectID, trackID string)
}

// TrackService drives the review rounds of a project.
type TrackService struct {
	tracks   trackStore
	projects projectStore
	guard    *AccessGuard
	images   *ImagePipeline
	validate *validator.Validate
	logger   *zap.Logger
	cache    *CacheService
	notifier changeNotifier
	metrics  *MetricsService
	now      func() time.Time
}

// TrackServiceOption configures optional collaborators.
type TrackServiceOption func(*TrackService)

// WithTrackViewCache caches track views.
func WithTrackViewCache(cache *CacheService) TrackServiceOption {
	return func(s *TrackService) {
		s.cache = cache
	}
}

// WithTrackChangeNotifier receives a signal after every successful mutation.
func WithTrackChangeNotifier(notifier changeNotifier) TrackServiceOption {
	return func(s *TrackService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithTrackMetrics records round transitions.
func WithTrackMetrics(metrics *MetricsService) TrackServiceOption {
	return func(s *TrackService) {
		s.metrics = metrics
	}
}

// WithTrackClock overrides the time source.
func WithTrackClock(now func() time.Time) TrackServiceOption {
	return func(s *TrackService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTrackService constructs the service.
func NewTrackService(tracks trackStore, projects projectStore, guard *AccessGuard, images *ImagePipeline, validate *validator.Validate, logger *zap.Logger, opts ...TrackServiceOption) *TrackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TrackService{
		tracks:   tracks,
		projects: projects,
		guard:    guard,
		images:   images,
		validate: validate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateProject creates a project owned by the actor together with round 1.
func (s *TrackService) CreateProject(ctx context.Context, actor models.Actor, req dto.CreateProjectRequest) (*dto.ProjectWithTrack, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid project payload")
	}
	profile, err := s.guard.EditorProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	project := &models.Project{
		EditorID:    profile.ID,
		Title:       strings.TrimSpace(req.Title),
		Status:      models.ProjectStatusInProgress,
		Deadline:    req.Deadline,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		project.PasswordHash = &hash
		project.PasswordProtected = true
	}
	track := &models.Track{
		RoundNumber: 1,
		Status:      models.TrackStatusInProgress,
		Steps:       BuildRoundSteps(roundItems(req.FeedbackItems), s.now()),
	}
	if err := s.projects.CreateWithTrack(ctx, project, track); err != nil {
		return nil, appErrors.Persistence(err, "failed to create project")
	}
	s.logger.Info("project created", zap.String("project_id", project.ID), zap.String("editor_id", profile.ID), zap.Int("steps", len(track.Steps)))
	return &dto.ProjectWithTrack{Project: project, Track: track}, nil
}

// ListTracks returns every round of a project to its editor.
func (s *TrackService) ListTracks(ctx context.Context, actor models.Actor, projectID string) ([]models.Track, error) {
	if _, err := s.guard.RequireProjectEditor(ctx, actor, projectID); err != nil {
		return nil, err
	}
	tracks, err := s.tracks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list tracks")
	}
	return tracks, nil
}

// GetTrack returns the review page view of a round.
func (s *TrackService) GetTrack(ctx context.Context, projectID, trackID string) (*dto.TrackView, error) {
	// The generation is read before the load so a view built from rows that a
	// concurrent mutation replaced lands under a key nobody reads anymore.
	gen, cacheable := s.cache.ProjectGeneration(ctx, projectID)
	key := TrackViewKey(projectID, gen, trackID)
	var cached dto.TrackView
	if cacheable && s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	project, err := s.guard.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	track, err := loadProjectTrack(ctx, s.tracks, projectID, trackID)
	if err != nil {
		return nil, err
	}
	rounds, err := s.tracks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to count rounds")
	}
	view := &dto.TrackView{
		ProjectID:    project.ID,
		ProjectTitle: project.Title,
		RoundCount:   len(rounds),
		Track:        track,
	}
	if cacheable {
		s.cache.Set(ctx, key, view, 0)
	}
	return view, nil
}

// DeliverRound records the editor's delivered work: every step completed and the final
// step carrying the deliverable link. Items, when given, replace the round content.
func (s *TrackService) DeliverRound(ctx context.Context, actor models.Actor, trackID string, req dto.DeliverRoundRequest) (*models.Track, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid deliver payload")
	}
	track, err := s.editorTrack(ctx, actor, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, req.Version); err != nil {
		return nil, err
	}
	var steps models.StepList
	if len(req.Items) > 0 {
		steps = BuildDeliveredSteps(roundItems(req.Items), req.DeliverableLink, s.now())
	} else {
		steps = CompleteAll(track.Steps, req.DeliverableLink)
	}
	media := models.MediaType(req.MediaType)
	inReview := models.ProjectStatusInReview
	return s.saveSteps(ctx, track, req.Version, steps, &media, &inReview)
}

// SetStepStatus flips one step between pending and completed.
func (s *TrackService) SetStepStatus(ctx context.Context, actor models.Actor, trackID string, index int, req dto.SetStepStatusRequest) (*models.Track, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid step status payload")
	}
	track, err := s.editorTrack(ctx, actor, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, req.Version); err != nil {
		return nil, err
	}
	var media *models.MediaType
	if req.MediaType != nil {
		mt := models.MediaType(*req.MediaType)
		media = &mt
	}
	change, err := ApplyStepStatus(track.Steps, index, models.StepStatus(req.Status), req.DeliverableLink, media, track.FinalDeliverableMediaType)
	if err != nil {
		return nil, err
	}
	if !change.Changed {
		return track, nil
	}
	var projectStatus *models.ProjectStatus
	if next := TrackStatusFor(change.Steps); next != track.Status {
		ps := models.ProjectStatusInProgress
		if next == models.TrackStatusInReview {
			ps = models.ProjectStatusInReview
		}
		projectStatus = &ps
	}
	return s.saveSteps(ctx, track, req.Version, change.Steps, change.MediaType, projectStatus)
}

// RestructureSteps replaces the ordered non-final steps of a round.
func (s *TrackService) RestructureSteps(ctx context.Context, actor models.Actor, trackID string, req dto.RestructureStepsRequest) (*models.Track, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid steps payload")
	}
	track, err := s.editorTrack(ctx, actor, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, req.Version); err != nil {
		return nil, err
	}
	drafts := make([]StepDraft, 0, len(req.Steps))
	for _, d := range req.Steps {
		drafts = append(drafts, StepDraft{
			CommentID: strings.TrimSpace(d.CommentID),
			Name:      d.Name,
			Type:      models.StepType(d.Type),
			Text:      d.Text,
			Timestamp: d.Timestamp,
			Images:    d.Images,
		})
	}
	steps := RestructureSteps(track.Steps, drafts, s.now())
	return s.saveSteps(ctx, track, req.Version, steps, track.FinalDeliverableMediaType, nil)
}

// UpdateStepContent applies text and timestamp edits and appends uploaded images,
// keyed by step index.
func (s *TrackService) UpdateStepContent(ctx context.Context, actor models.Actor, trackID string, req dto.UpdateStepContentRequest, uploads map[int][]ImageUpload) (*models.Track, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid content payload")
	}
	track, err := s.editorTrack(ctx, actor, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, req.Version); err != nil {
		return nil, err
	}

	updates := make(map[int]*ContentUpdate, len(req.Updates)+len(uploads))
	order := make([]int, 0, len(req.Updates)+len(uploads))
	for _, u := range req.Updates {
		if _, dup := updates[u.Index]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d updated twice", u.Index))
		}
		updates[u.Index] = &ContentUpdate{Index: u.Index, Text: u.Text, Timestamp: u.Timestamp}
		order = append(order, u.Index)
	}

	uploadIndexes := make([]int, 0, len(uploads))
	if len(uploads) > 0 && s.images == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "image uploads not configured")
	}
	for index, files := range uploads {
		if len(files) == 0 {
			continue
		}
		if index < 0 || index >= len(track.Steps)-1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("images target unknown step %d", index))
		}
		if err := s.images.Validate(keptImages(track.Steps[index]), files); err != nil {
			return nil, err
		}
		uploadIndexes = append(uploadIndexes, index)
	}
	sort.Ints(uploadIndexes)

	var uploaded []string
	for _, index := range uploadIndexes {
		urls, err := s.images.UploadBatch(ctx, keptImages(track.Steps[index]), uploads[index])
		if err != nil {
			s.images.ReportOrphaned(uploaded, err)
			return nil, err
		}
		uploaded = append(uploaded, urls...)
		if _, ok := updates[index]; !ok {
			updates[index] = &ContentUpdate{Index: index}
			order = append(order, index)
		}
		updates[index].NewImages = urls
	}

	list := make([]ContentUpdate, 0, len(order))
	for _, index := range order {
		list = append(list, *updates[index])
	}
	steps, err := ApplyContentUpdates(track.Steps, list)
	if err != nil {
		s.images.ReportOrphaned(uploaded, err)
		return nil, err
	}
	updated, err := s.saveSteps(ctx, track, req.Version, steps, track.FinalDeliverableMediaType, nil)
	if err != nil {
		s.images.ReportOrphaned(uploaded, err)
		return nil, err
	}
	return updated, nil
}

// RequestRevisions closes the round and opens the next one from the round's comments,
// ordered by timestamp.
func (s *TrackService) RequestRevisions(ctx context.Context, actor models.Actor, projectID, trackID string, version int) (*models.Track, error) {
	track, err := loadProjectTrack(ctx, s.tracks, projectID, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, version); err != nil {
		return nil, err
	}
	now := s.now()
	next, err := s.tracks.RequestRevisions(ctx, repository.RequestRevisionsParams{
		CurrentTrackID:  track.ID,
		ProjectID:       projectID,
		ExpectedVersion: version,
		BuildNextSteps: func(comments []models.ReviewComment) models.StepList {
			return StepsFromComments(comments, now)
		},
	})
	if err != nil {
		return nil, classifyRejectedWrite(ctx, s.tracks, track.ID, version, err)
	}
	s.metrics.RecordTransition(string(models.DecisionRevisionsRequested))
	s.notify(projectID, track.ID)
	s.logger.Info("revisions requested",
		zap.String("project_id", projectID),
		zap.String("track_id", track.ID),
		zap.String("next_track_id", next.ID),
		zap.Int("round", next.RoundNumber),
		zap.String("actor", actorLabel(actor)))
	return next, nil
}

// Approve closes the round as approved and completes the project.
func (s *TrackService) Approve(ctx context.Context, actor models.Actor, projectID, trackID string, version int) (*models.Track, error) {
	track, err := loadProjectTrack(ctx, s.tracks, projectID, trackID)
	if err != nil {
		return nil, err
	}
	if err := ensureWritable(track, version); err != nil {
		return nil, err
	}
	err = s.tracks.Approve(ctx, repository.ApproveParams{TrackID: track.ID, ProjectID: projectID, ExpectedVersion: version})
	if err != nil {
		return nil, classifyRejectedWrite(ctx, s.tracks, track.ID, version, err)
	}
	approved := *track
	approved.ClientDecision = models.DecisionApproved
	approved.Version = version + 1
	approved.UpdatedAt = s.now()
	s.metrics.RecordTransition(string(models.DecisionApproved))
	s.notify(projectID, track.ID)
	s.logger.Info("round approved", zap.String("project_id", projectID), zap.String("track_id", track.ID), zap.String("actor", actorLabel(actor)))
	return &approved, nil
}

func (s *TrackService) editorTrack(ctx context.Context, actor models.Actor, trackID string) (*models.Track, error) {
	if !actor.Authenticated {
		return nil, appErrors.ErrUnauthorized
	}
	track, err := loadTrack(ctx, s.tracks, trackID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.RequireProjectEditor(ctx, actor, track.ProjectID); err != nil {
		return nil, err
	}
	return track, nil
}

func (s *TrackService) saveSteps(ctx context.Context, track *models.Track, expectedVersion int, steps models.StepList, media *models.MediaType, projectStatus *models.ProjectStatus) (*models.Track, error) {
	if err := steps.Validate(); err != nil {
		return nil, validationError(err, "resulting steps are invalid")
	}
	status := TrackStatusFor(steps)
	version, err := s.tracks.UpdateSteps(ctx, repository.UpdateStepsParams{
		ID:              track.ID,
		ExpectedVersion: expectedVersion,
		Steps:           steps,
		Status:          status,
		MediaType:       media,
		ProjectStatus:   projectStatus,
	})
	if err != nil {
		return nil, classifyRejectedWrite(ctx, s.tracks, track.ID, expectedVersion, err)
	}
	updated := *track
	updated.Steps = steps
	updated.Status = status
	updated.FinalDeliverableMediaType = media
	updated.Version = version
	updated.UpdatedAt = s.now()
	s.notify(track.ProjectID, track.ID)
	return &updated, nil
}

func (s *TrackService) notify(projectID, trackID string) {
	if s.notifier != nil {
		s.notifier.TrackChanged(projectID, trackID)
	}
}

func keptImages(step models.Step) int {
	if step.Metadata == nil {
		return 0
	}
	return len(step.Metadata.Images)
}

func roundItems(items []dto.FeedbackItem) []RoundItem {
	out := make([]RoundItem, 0, len(items))
	for _, item := range items {
		out = append(out, RoundItem{Text: strings.TrimSpace(item.Text), Timestamp: item.Timestamp, Images: item.Images})
	}
	return out
}

func actorLabel(actor models.Actor) string {
	if actor.Authenticated {
		return actor.UserID
	}
	return "anonymous"
}
