package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cutreview-api/pkg/jobs"
)

// TrackChange identifies views made stale by a mutation.
type TrackChange struct {
	ProjectID string
	TrackID   string

	bumped bool
}

type viewCache interface {
	BumpProject(ctx context.Context, projectID string) error
	Invalidate(ctx context.Context, pattern string) error
}

const bumpTimeout = 500 * time.Millisecond

// InvalidationService drops cached views in the background after mutations.
type InvalidationService struct {
	queue   *jobs.Queue[TrackChange]
	cache   viewCache
	metrics *MetricsService
	logger  *zap.Logger
}

// NewInvalidationService builds the service and its worker queue.
func NewInvalidationService(cache viewCache, cfg jobs.Config, metrics *MetricsService, logger *zap.Logger) *InvalidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	s := &InvalidationService{cache: cache, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("view-invalidation", s.handle, cfg)
	return s
}

// Start launches the workers.
func (s *InvalidationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *InvalidationService) Stop() {
	s.queue.Stop()
}

// TrackChanged signals that a track of the project changed. The project generation moves
// forward before it returns; deleting the old keys happens in the background.
func (s *InvalidationService) TrackChanged(projectID, trackID string) {
	if s == nil {
		return
	}
	bumped := s.bump(projectID)
	job := jobs.Job[TrackChange]{
		Key:     projectID + "/" + trackID,
		Payload: TrackChange{ProjectID: projectID, TrackID: trackID, bumped: bumped},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("invalidation not queued", zap.String("project_id", projectID), zap.String("track_id", trackID), zap.Error(err))
	}
}

func (s *InvalidationService) bump(projectID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), bumpTimeout)
	defer cancel()
	if err := s.cache.BumpProject(ctx, projectID); err != nil {
		s.logger.Warn("view generation not bumped", zap.String("project_id", projectID), zap.Error(err))
		return false
	}
	return true
}

func (s *InvalidationService) handle(ctx context.Context, job jobs.Job[TrackChange]) error {
	if !job.Payload.bumped {
		if err := s.cache.BumpProject(ctx, job.Payload.ProjectID); err != nil {
			s.metrics.RecordInvalidation(false)
			return err
		}
	}
	// Round counts are part of every view of the project, so the whole project goes.
	err := s.cache.Invalidate(ctx, ProjectViewPattern(job.Payload.ProjectID))
	s.metrics.RecordInvalidation(err == nil)
	return err
}
