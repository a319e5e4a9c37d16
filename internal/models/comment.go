package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/cutreview-api/pkg/linkcodec"
)

// CommentBody is the JSON payload of a review comment.
type CommentBody struct {
	Text      string           `json:"text"`
	Timestamp float64          `json:"timestamp"`
	Images    []string         `json:"images,omitempty"`
	Links     []linkcodec.Link `json:"links,omitempty"`
}

// Validate enforces the persisted comment shape.
func (b CommentBody) Validate() error {
	if strings.TrimSpace(b.Text) == "" && len(b.Images) == 0 {
		return fmt.Errorf("comment: text or images required")
	}
	if b.Timestamp < 0 {
		return fmt.Errorf("comment: negative timestamp")
	}
	if len(b.Images) > MaxImagesPerItem {
		return fmt.Errorf("comment: more than %d images", MaxImagesPerItem)
	}
	return nil
}

// Scan implements sql.Scanner.
func (b *CommentBody) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan comment: %w", err)
	}
	var body CommentBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("scan comment: %w", err)
	}
	if err := body.Validate(); err != nil {
		return fmt.Errorf("scan comment: %w", err)
	}
	*b = body
	return nil
}

// Value implements driver.Valuer.
func (b CommentBody) Value() (driver.Value, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

// ReviewComment is feedback left on a round by the client, the editor, or an anonymous visitor.
// A nil CommenterID marks an anonymous comment.
type ReviewComment struct {
	ID            string      `db:"id" json:"id"`
	TrackID       string      `db:"track_id" json:"track_id"`
	Comment       CommentBody `db:"comment" json:"comment"`
	CommenterName string      `db:"commenter_name" json:"commenter_name"`
	CommenterID   *string     `db:"commenter_id" json:"commenter_id"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}
