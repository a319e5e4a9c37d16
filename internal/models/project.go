package models

import "time"

// ProjectStatus summarises where a project sits in the review cycle.
type ProjectStatus string

const (
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusInReview   ProjectStatus = "in_review"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

// Project groups the revision rounds of one deliverable for one client.
type Project struct {
	ID                string        `db:"id" json:"id"`
	EditorID          string        `db:"editor_id" json:"editor_id"`
	Title             string        `db:"title" json:"title"`
	Status            ProjectStatus `db:"status" json:"status"`
	Deadline          *time.Time    `db:"deadline" json:"deadline,omitempty"`
	ClientName        string        `db:"client_name" json:"client_name"`
	ClientEmail       string        `db:"client_email" json:"client_email"`
	PasswordProtected bool          `db:"password_protected" json:"password_protected"`
	PasswordHash      *string       `db:"password_hash" json:"-"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Profile links an authenticated user to the editor identity owning projects.
type Profile struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
