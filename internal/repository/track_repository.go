package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cutreview-api/internal/models"
)

// Stale-write outcomes of guarded track updates. Callers reload the track to tell them apart.
var (
	ErrDecisionMade    = errors.New("track decision already made")
	ErrVersionMismatch = errors.New("track version mismatch")
)

const trackColumns = `id, project_id, round_number, status, client_decision, steps,
       final_deliverable_media_type, version, created_at, updated_at`

// TrackRepository persists revision rounds.
type TrackRepository struct {
	db *sqlx.DB
}

// NewTrackRepository constructs the repository.
func NewTrackRepository(db *sqlx.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// GetByID fetches a track by identifier.
func (r *TrackRepository) GetByID(ctx context.Context, id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	var track models.Track
	if err := r.db.GetContext(ctx, &track, query, id); err != nil {
		return nil, err
	}
	return &track, nil
}

// ListByProject returns every round of a project, oldest first.
func (r *TrackRepository) ListByProject(ctx context.Context, projectID string) ([]models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE project_id = $1 ORDER BY round_number ASC`
	var tracks []models.Track
	if err := r.db.SelectContext(ctx, &tracks, query, projectID); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return tracks, nil
}

// UpdateStepsParams describes a versioned rewrite of a pending track.
type UpdateStepsParams struct {
	ID              string
	ExpectedVersion int
	Steps           models.StepList
	Status          models.TrackStatus
	MediaType       *models.MediaType
	ProjectStatus   *models.ProjectStatus
}

// UpdateSteps replaces the steps of a pending track when its version still matches.
// It returns the new version, or sql.ErrNoRows when the guard rejected the write.
func (r *TrackRepository) UpdateSteps(ctx context.Context, params UpdateStepsParams) (version int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin update steps: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE tracks
	SET steps = $1, status = $2, final_deliverable_media_type = $3, version = version + 1, updated_at = $4
	WHERE id = $5 AND version = $6 AND client_decision = 'pending'
	RETURNING version, project_id`
	var row struct {
		Version   int    `db:"version"`
		ProjectID string `db:"project_id"`
	}
	now := time.Now().UTC()
	if err = tx.GetContext(ctx, &row, query, params.Steps, params.Status, params.MediaType, now, params.ID, params.ExpectedVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("update steps: %w", err)
	}
	if params.ProjectStatus != nil {
		if err = setProjectStatus(ctx, tx, row.ProjectID, *params.ProjectStatus, now); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit update steps: %w", err)
	}
	return row.Version, nil
}

// RequestRevisionsParams closes the current round and opens the next one.
// BuildNextSteps receives the closing round's comments, read under the round lock.
type RequestRevisionsParams struct {
	CurrentTrackID  string
	ProjectID       string
	ExpectedVersion int
	BuildNextSteps  func(comments []models.ReviewComment) models.StepList
}

// RequestRevisions atomically marks the current round as revisions_requested, inserts
// round N+1 with steps built from the round's comments, and moves the project back to
// in_progress.
func (r *TrackRepository) RequestRevisions(ctx context.Context, params RequestRevisionsParams) (next *models.Track, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin request revisions: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := lockPendingTrack(ctx, tx, params.CurrentTrackID, params.ProjectID, params.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	comments, err := listTrackComments(ctx, tx, current.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err = setDecision(ctx, tx, current.ID, models.DecisionRevisionsRequested, now); err != nil {
		return nil, err
	}

	next = &models.Track{
		RoundNumber: current.RoundNumber + 1,
		Steps:       params.BuildNextSteps(comments),
	}
	prepareNewTrack(next, params.ProjectID, now)
	if err = insertTrack(ctx, tx, next); err != nil {
		return nil, err
	}
	if err = setProjectStatus(ctx, tx, params.ProjectID, models.ProjectStatusInProgress, now); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit request revisions: %w", err)
	}
	return next, nil
}

// ApproveParams identifies the round being approved.
type ApproveParams struct {
	TrackID         string
	ProjectID       string
	ExpectedVersion int
}

// Approve atomically records the approval and completes the project.
func (r *TrackRepository) Approve(ctx context.Context, params ApproveParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := lockPendingTrack(ctx, tx, params.TrackID, params.ProjectID, params.ExpectedVersion)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err = setDecision(ctx, tx, current.ID, models.DecisionApproved, now); err != nil {
		return err
	}
	if err = setProjectStatus(ctx, tx, params.ProjectID, models.ProjectStatusCompleted, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

type lockedTrack struct {
	ID             string                `db:"id"`
	ProjectID      string                `db:"project_id"`
	RoundNumber    int                   `db:"round_number"`
	ClientDecision models.ClientDecision `db:"client_decision"`
	Version        int                   `db:"version"`
}

func lockPendingTrack(ctx context.Context, tx *sqlx.Tx, trackID, projectID string, expectedVersion int) (*lockedTrack, error) {
	const query = `SELECT id, project_id, round_number, client_decision, version FROM tracks WHERE id = $1 FOR UPDATE`
	var current lockedTrack
	if err := tx.GetContext(ctx, &current, query, trackID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock track: %w", err)
	}
	if current.ProjectID != projectID {
		return nil, sql.ErrNoRows
	}
	if current.ClientDecision != models.DecisionPending {
		return nil, ErrDecisionMade
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionMismatch
	}
	return &current, nil
}

func setDecision(ctx context.Context, tx *sqlx.Tx, trackID string, decision models.ClientDecision, now time.Time) error {
	const query = `UPDATE tracks SET client_decision = $1, version = version + 1, updated_at = $2 WHERE id = $3`
	result, err := tx.ExecContext(ctx, query, decision, now, trackID)
	if err != nil {
		return fmt.Errorf("update track decision: %w", err)
	}
	return expectRows(result, "update track decision")
}

func setProjectStatus(ctx context.Context, tx *sqlx.Tx, projectID string, status models.ProjectStatus, now time.Time) error {
	const query = `UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := tx.ExecContext(ctx, query, status, now, projectID)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	return expectRows(result, "update project status")
}

func prepareNewTrack(track *models.Track, projectID string, now time.Time) {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.RoundNumber <= 0 {
		track.RoundNumber = 1
	}
	if track.Status == "" {
		track.Status = models.TrackStatusInProgress
	}
	track.ProjectID = projectID
	track.ClientDecision = models.DecisionPending
	track.Version = 1
	track.CreatedAt, track.UpdatedAt = now, now
}

func insertTrack(ctx context.Context, tx *sqlx.Tx, track *models.Track) error {
	const query = `INSERT INTO tracks
	(id, project_id, round_number, status, client_decision, steps, final_deliverable_media_type, version, created_at, updated_at)
	VALUES (:id, :project_id, :round_number, :status, :client_decision, :steps, :final_deliverable_media_type, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, track); err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

func expectRows(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
