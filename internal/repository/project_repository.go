package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cutreview-api/internal/models"
)

const projectColumns = `id, editor_id, title, status, deadline, client_name, client_email,
       password_protected, password_hash, created_at, updated_at`

// ProjectRepository persists projects and editor profiles.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// CreateWithTrack inserts a project and its first round in one transaction.
func (r *ProjectRepository) CreateWithTrack(ctx context.Context, project *models.Project, track *models.Track) (err error) {
	now := time.Now().UTC()
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.ProjectStatusInProgress
	}
	project.CreatedAt, project.UpdatedAt = now, now
	prepareNewTrack(track, project.ID, now)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const projectQuery = `INSERT INTO projects
	(id, editor_id, title, status, deadline, client_name, client_email, password_protected, password_hash, created_at, updated_at)
	VALUES (:id, :editor_id, :title, :status, :deadline, :client_name, :client_email, :password_protected, :password_hash, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, projectQuery, project); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if err = insertTrack(ctx, tx, track); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdatePassword toggles protection. A nil hash disables it.
func (r *ProjectRepository) UpdatePassword(ctx context.Context, id string, hash *string) error {
	const query = `UPDATE projects SET password_protected = $1, password_hash = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, hash != nil, hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update project password: %w", err)
	}
	return expectRows(result, "update project password")
}

// FindProfileByUserID resolves the editor profile of an authenticated user.
func (r *ProjectRepository) FindProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	const query = `SELECT id, user_id, display_name, created_at FROM profiles WHERE user_id = $1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}
