package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type projectOwnerReader interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	FindProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

// IsCommentOwner reports whether actor authored comment. Anonymous comments belong
// to anonymous requests only, and an authenticated user owns only comments carrying their id.
func IsCommentOwner(actor models.Actor, comment *models.ReviewComment) bool {
	if comment == nil {
		return false
	}
	if comment.CommenterID == nil {
		return !actor.Authenticated
	}
	return actor.Authenticated && actor.UserID == *comment.CommenterID
}

// AccessGuard resolves whether an actor may perform editor-side mutations.
type AccessGuard struct {
	projects projectOwnerReader
}

// NewAccessGuard constructs the guard.
func NewAccessGuard(projects projectOwnerReader) *AccessGuard {
	return &AccessGuard{projects: projects}
}

// EditorProfile returns the profile of an authenticated actor.
func (g *AccessGuard) EditorProfile(ctx context.Context, actor models.Actor) (*models.Profile, error) {
	if !actor.Authenticated {
		return nil, appErrors.ErrUnauthorized
	}
	profile, err := g.projects.FindProfileByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "editor profile required")
		}
		return nil, appErrors.Persistence(err, "failed to load profile")
	}
	return profile, nil
}

// RequireProjectEditor returns the project when actor is its editor.
// The decision state of the project's rounds is irrelevant here.
func (g *AccessGuard) RequireProjectEditor(ctx context.Context, actor models.Actor, projectID string) (*models.Project, error) {
	if !actor.Authenticated {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := g.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	profile, err := g.EditorProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if profile.ID != project.EditorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the project editor can do this")
	}
	return project, nil
}

// IsProjectEditor is the boolean form of RequireProjectEditor. Only store failures are returned as errors.
func (g *AccessGuard) IsProjectEditor(ctx context.Context, actor models.Actor, projectID string) (bool, error) {
	if !actor.Authenticated {
		return false, nil
	}
	_, err := g.RequireProjectEditor(ctx, actor, projectID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, appErrors.ErrForbidden) || errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrUnauthorized) {
		return false, nil
	}
	return false, err
}

func (g *AccessGuard) loadProject(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Persistence(err, "failed to load project")
	}
	return project, nil
}
