package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/cutreview-api/pkg/linkcodec"
)

// MaxImagesPerItem caps the images attached to one step or comment.
const MaxImagesPerItem = 4

// TrackStatus reflects whether the editor is still working on a round.
type TrackStatus string

const (
	TrackStatusInProgress TrackStatus = "in_progress"
	TrackStatusInReview   TrackStatus = "in_review"
)

// ClientDecision is the verdict closing a round. Anything but pending is terminal.
type ClientDecision string

const (
	DecisionPending            ClientDecision = "pending"
	DecisionApproved           ClientDecision = "approved"
	DecisionRevisionsRequested ClientDecision = "revisions_requested"
)

// MediaType describes the final deliverable.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	return m == MediaTypeVideo || m == MediaTypeImage
}

// StepStatus is the completion state of one step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	return s == StepStatusPending || s == StepStatusCompleted
}

// StepType tags the metadata attached to a step.
type StepType string

const (
	StepTypeComment         StepType = "comment"
	StepTypeGeneralRevision StepType = "general_revision"
)

// StepMetadata carries the feedback item a step was built from.
type StepMetadata struct {
	Type      StepType         `json:"type"`
	CommentID string           `json:"comment_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Timestamp float64          `json:"timestamp"`
	Images    []string         `json:"images,omitempty"`
	Links     []linkcodec.Link `json:"links,omitempty"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	StepIndex int              `json:"step_index"`
}

// Step is one feedback item or the final deliverable marker of a round.
type Step struct {
	Name            string        `json:"name,omitempty"`
	Status          StepStatus    `json:"status"`
	IsFinal         bool          `json:"is_final,omitempty"`
	DeliverableLink *string       `json:"deliverable_link,omitempty"`
	Metadata        *StepMetadata `json:"metadata,omitempty"`
}

// StepList is the ordered steps column of a track. It is validated whenever it
// crosses the database boundary in either direction.
type StepList []Step

// Validate enforces the persisted shape: known enums, image cap, non-negative
// timestamps, and exactly one final step placed last.
func (l StepList) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("steps: final step missing")
	}
	for i, step := range l {
		if !step.Status.Valid() {
			return fmt.Errorf("steps[%d]: invalid status %q", i, step.Status)
		}
		last := i == len(l)-1
		if step.IsFinal && !last {
			return fmt.Errorf("steps[%d]: final step must be last", i)
		}
		if last && !step.IsFinal {
			return fmt.Errorf("steps[%d]: last step must be final", i)
		}
		if step.DeliverableLink != nil {
			if !step.IsFinal {
				return fmt.Errorf("steps[%d]: deliverable link on non-final step", i)
			}
			if step.Status != StepStatusCompleted {
				return fmt.Errorf("steps[%d]: deliverable link on pending final step", i)
			}
		}
		if step.Metadata == nil {
			continue
		}
		switch step.Metadata.Type {
		case StepTypeComment, StepTypeGeneralRevision:
		default:
			return fmt.Errorf("steps[%d]: invalid metadata type %q", i, step.Metadata.Type)
		}
		if step.Metadata.Timestamp < 0 {
			return fmt.Errorf("steps[%d]: negative timestamp", i)
		}
		if len(step.Metadata.Images) > MaxImagesPerItem {
			return fmt.Errorf("steps[%d]: more than %d images", i, MaxImagesPerItem)
		}
	}
	return nil
}

// Final returns the final step.
func (l StepList) Final() Step {
	return l[len(l)-1]
}

// Clone deep-copies the list so transitions never alias persisted state.
func (l StepList) Clone() StepList {
	if l == nil {
		return nil
	}
	out := make(StepList, len(l))
	for i, step := range l {
		out[i] = step.clone()
	}
	return out
}

func (s Step) clone() Step {
	c := s
	if s.DeliverableLink != nil {
		link := *s.DeliverableLink
		c.DeliverableLink = &link
	}
	if s.Metadata != nil {
		m := *s.Metadata
		m.Images = append([]string(nil), s.Metadata.Images...)
		m.Links = append([]linkcodec.Link(nil), s.Metadata.Links...)
		if s.Metadata.CreatedAt != nil {
			created := *s.Metadata.CreatedAt
			m.CreatedAt = &created
		}
		c.Metadata = &m
	}
	return c
}

// Scan implements sql.Scanner.
func (l *StepList) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan steps: %w", err)
	}
	var steps StepList
	if err := json.Unmarshal(raw, &steps); err != nil {
		return fmt.Errorf("scan steps: %w", err)
	}
	if err := steps.Validate(); err != nil {
		return fmt.Errorf("scan steps: %w", err)
	}
	*l = steps
	return nil
}

// Value implements driver.Valuer.
func (l StepList) Value() (driver.Value, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(l)
}

// Track is one revision round of a project.
type Track struct {
	ID                        string         `db:"id" json:"id"`
	ProjectID                 string         `db:"project_id" json:"project_id"`
	RoundNumber               int            `db:"round_number" json:"round_number"`
	Status                    TrackStatus    `db:"status" json:"status"`
	ClientDecision            ClientDecision `db:"client_decision" json:"client_decision"`
	Steps                     StepList       `db:"steps" json:"steps"`
	FinalDeliverableMediaType *MediaType     `db:"final_deliverable_media_type" json:"final_deliverable_media_type"`
	Version                   int            `db:"version" json:"version"`
	CreatedAt                 time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the round still accepts mutations.
func (t *Track) Pending() bool {
	return t.ClientDecision == DecisionPending
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return nil, fmt.Errorf("null value")
	default:
		return nil, fmt.Errorf("unsupported type %T", src)
	}
}
