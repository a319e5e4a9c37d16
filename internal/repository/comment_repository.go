package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cutreview-api/internal/models"
)

const commentColumns = `id, track_id, comment, commenter_name, commenter_id, created_at, updated_at`

// Every comment write is guarded so it only lands while the owning round is pending.
// The share lock makes it wait for a decision being taken on the round and serializes
// it against the comment read inside that decision.
const pendingTrackGuard = `EXISTS (SELECT 1 FROM tracks t WHERE t.id = %s AND t.client_decision = 'pending' FOR SHARE)`

// CommentRepository persists review comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// ListByTrack returns the comments of a round ordered by position in the deliverable.
func (r *CommentRepository) ListByTrack(ctx context.Context, trackID string) ([]models.ReviewComment, error) {
	return listTrackComments(ctx, r.db, trackID)
}

func listTrackComments(ctx context.Context, q sqlx.QueryerContext, trackID string) ([]models.ReviewComment, error) {
	query := `SELECT ` + commentColumns + ` FROM review_comments WHERE track_id = $1
	ORDER BY (comment->>'timestamp')::float8 ASC, created_at ASC`
	var comments []models.ReviewComment
	if err := sqlx.SelectContext(ctx, q, &comments, query, trackID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// GetByID fetches a comment by identifier.
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.ReviewComment, error) {
	query := `SELECT ` + commentColumns + ` FROM review_comments WHERE id = $1`
	var comment models.ReviewComment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Create inserts a comment when its round is still pending; sql.ErrNoRows otherwise.
func (r *CommentRepository) Create(ctx context.Context, comment *models.ReviewComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	comment.CreatedAt, comment.UpdatedAt = now, now

	query := `INSERT INTO review_comments (` + commentColumns + `)
	SELECT $1, $2, $3, $4, $5, $6, $7 WHERE ` + fmt.Sprintf(pendingTrackGuard, "$2")
	result, err := r.db.ExecContext(ctx, query,
		comment.ID, comment.TrackID, comment.Comment, comment.CommenterName, comment.CommenterID, comment.CreatedAt, comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return expectRows(result, "create comment")
}

// UpdateBody replaces the comment payload while the round is pending.
func (r *CommentRepository) UpdateBody(ctx context.Context, id string, body models.CommentBody) error {
	query := `UPDATE review_comments c SET comment = $1, updated_at = $2
	WHERE c.id = $3 AND ` + fmt.Sprintf(pendingTrackGuard, "c.track_id")
	result, err := r.db.ExecContext(ctx, query, body, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return expectRows(result, "update comment")
}

// Delete removes a comment while the round is pending.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM review_comments c WHERE c.id = $1 AND ` + fmt.Sprintf(pendingTrackGuard, "c.track_id")
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectRows(result, "delete comment")
}
