package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/repository"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type trackLoader interface {
	GetByID(ctx context.Context, id string) (*models.Track, error)
}

func stateConflict(decision models.ClientDecision) error {
	return appErrors.WithDetails(appErrors.ErrStateConflict,
		fmt.Sprintf("round is closed: client decision is %s", decision),
		map[string]interface{}{"decision": decision})
}

func versionConflict(current int) error {
	return appErrors.WithDetails(appErrors.ErrVersionConflict,
		"track was modified by another request, reload and retry",
		map[string]interface{}{"current_version": current})
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// ensureWritable rejects closed rounds first, then stale versions.
func ensureWritable(track *models.Track, expectedVersion int) error {
	if !track.Pending() {
		return stateConflict(track.ClientDecision)
	}
	if expectedVersion != track.Version {
		return versionConflict(track.Version)
	}
	return nil
}

func loadTrack(ctx context.Context, tracks trackLoader, id string) (*models.Track, error) {
	track, err := tracks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "track not found")
		}
		return nil, appErrors.Persistence(err, "failed to load track")
	}
	return track, nil
}

// loadProjectTrack loads a track and hides it when it belongs to another project.
func loadProjectTrack(ctx context.Context, tracks trackLoader, projectID, trackID string) (*models.Track, error) {
	track, err := loadTrack(ctx, tracks, trackID)
	if err != nil {
		return nil, err
	}
	if track.ProjectID != projectID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "track not found")
	}
	return track, nil
}

// classifyRejectedWrite turns a guarded write that touched no rows into the
// error explaining why, by looking at the track as it is now.
func classifyRejectedWrite(ctx context.Context, tracks trackLoader, trackID string, expectedVersion int, cause error) error {
	if !isRejectedWrite(cause) {
		return appErrors.Persistence(cause, "failed to save track")
	}
	track, err := loadTrack(ctx, tracks, trackID)
	if err != nil {
		return err
	}
	if err := ensureWritable(track, expectedVersion); err != nil {
		return err
	}
	return appErrors.Persistence(cause, "track write was rejected")
}

func isRejectedWrite(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, repository.ErrDecisionMade) ||
		errors.Is(err, repository.ErrVersionMismatch)
}
