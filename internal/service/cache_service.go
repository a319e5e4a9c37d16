package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

// CacheRepository abstracts the store behind the view cache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService caches track views. Cache failures never fail a request.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs the service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// TrackViewKey is the cache key of one track view within a project generation.
func TrackViewKey(projectID string, generation int64, trackID string) string {
	return fmt.Sprintf("view:track:%s:%d:%s", projectID, generation, trackID)
}

func projectGenerationKey(projectID string) string {
	return "view:gen:" + projectID
}

// ProjectViewPattern matches every cached view of a project.
func ProjectViewPattern(projectID string) string {
	return fmt.Sprintf("view:track:%s:*", projectID)
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheLookup(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores value. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// ProjectGeneration returns the current view generation of a project. ok is false when
// the generation cannot be read and nothing should be cached.
func (s *CacheService) ProjectGeneration(ctx context.Context, projectID string) (int64, bool) {
	if !s.Enabled() {
		return 0, false
	}
	gen, err := s.repo.Counter(ctx, projectGenerationKey(projectID))
	if err != nil {
		s.logger.Warn("cache generation read failed", zap.String("project_id", projectID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// BumpProject moves the project to a new view generation. Views stored under an older
// generation are never read again, including ones written after this call.
func (s *CacheService) BumpProject(ctx context.Context, projectID string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.repo.Incr(ctx, projectGenerationKey(projectID)); err != nil {
		return err
	}
	return nil
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	n, err := s.repo.DeleteByPattern(ctx, pattern)
	if err != nil {
		return err
	}
	s.logger.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("keys", n))
	return nil
}
