package dto

import (
	"time"

	"github.com/noah-isme/cutreview-api/internal/models"
)

// FeedbackItem is one piece of feedback used to seed a round.
type FeedbackItem struct {
	Text      string   `json:"text" validate:"required,max=5000"`
	Timestamp float64  `json:"timestamp" validate:"gte=0"`
	Images    []string `json:"images" validate:"max=4,dive,url"`
}

// CreateProjectRequest creates a project together with its first round.
type CreateProjectRequest struct {
	Title         string         `json:"title" validate:"required,max=200"`
	ClientName    string         `json:"client_name" validate:"required,max=120"`
	ClientEmail   string         `json:"client_email" validate:"omitempty,email"`
	Deadline      *time.Time     `json:"deadline"`
	Password      *string        `json:"password" validate:"omitempty,min=4,max=128"`
	FeedbackItems []FeedbackItem `json:"feedback_items" validate:"omitempty,dive"`
}

// ProjectWithTrack is returned after creating a project.
type ProjectWithTrack struct {
	Project *models.Project `json:"project"`
	Track   *models.Track   `json:"track"`
}

// SetPasswordRequest enables (non-empty password) or disables protection.
type SetPasswordRequest struct {
	Password *string `json:"password" validate:"omitempty,min=4,max=128"`
}

// DeliverRoundRequest records the editor's delivered work for a round.
type DeliverRoundRequest struct {
	Version         int            `json:"version" validate:"required,gte=1"`
	Items           []FeedbackItem `json:"items" validate:"omitempty,dive"`
	DeliverableLink string         `json:"deliverable_link" validate:"required,url"`
	MediaType       string         `json:"media_type" validate:"required,oneof=video image"`
}

// SetStepStatusRequest flips a step between pending and completed.
type SetStepStatusRequest struct {
	Version         int     `json:"version" validate:"required,gte=1"`
	Status          string  `json:"status" validate:"required,oneof=pending completed"`
	DeliverableLink *string `json:"deliverable_link" validate:"omitempty,url"`
	MediaType       *string `json:"media_type" validate:"omitempty,oneof=video image"`
}

// StepDescriptor describes one non-final step in a restructure request.
type StepDescriptor struct {
	CommentID string   `json:"comment_id"`
	Name      string   `json:"name" validate:"max=200"`
	Type      string   `json:"type" validate:"omitempty,oneof=comment general_revision"`
	Text      string   `json:"text" validate:"required,max=5000"`
	Timestamp *float64 `json:"timestamp" validate:"omitempty,gte=0"`
	Images    []string `json:"images" validate:"max=4,dive,url"`
}

// RestructureStepsRequest replaces the ordered non-final steps of a round.
type RestructureStepsRequest struct {
	Version int              `json:"version" validate:"required,gte=1"`
	Steps   []StepDescriptor `json:"steps" validate:"dive"`
}

// StepContentUpdate edits one step addressed by its index.
type StepContentUpdate struct {
	Index     int      `json:"index" validate:"gte=0"`
	Text      *string  `json:"text" validate:"omitempty,max=5000"`
	Timestamp *float64 `json:"timestamp" validate:"omitempty,gte=0"`
}

// UpdateStepContentRequest is the bulk content update payload. Uploaded images are
// supplied next to it, keyed by step index.
type UpdateStepContentRequest struct {
	Version int                 `json:"version" validate:"required,gte=1"`
	Updates []StepContentUpdate `json:"updates" validate:"required,min=1,dive"`
}

// RoundDecisionRequest carries the version the client saw when deciding.
type RoundDecisionRequest struct {
	Version int `json:"version" validate:"required,gte=1"`
}

// CreateCommentRequest adds review feedback to a round.
type CreateCommentRequest struct {
	CommenterName string  `json:"commenter_name" validate:"max=120"`
	Text          string  `json:"text" validate:"max=5000"`
	Timestamp     float64 `json:"timestamp" validate:"gte=0"`
}

// UpdateCommentRequest edits a comment. KeepImages lists existing image URLs to retain.
type UpdateCommentRequest struct {
	Text       *string  `json:"text" validate:"omitempty,max=5000"`
	Timestamp  *float64 `json:"timestamp" validate:"omitempty,gte=0"`
	KeepImages []string `json:"keep_images" validate:"max=4"`
}

// VerifyPasswordRequest unlocks a protected project.
type VerifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// VerifyPasswordResponse reports the gate outcome and, on success, the access proof.
type VerifyPasswordResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TrackView is the read model of a round shown on the review page.
type TrackView struct {
	ProjectID    string        `json:"project_id"`
	ProjectTitle string        `json:"project_title"`
	RoundCount   int           `json:"round_count"`
	Track        *models.Track `json:"track"`
}
