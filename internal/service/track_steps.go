package service

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/linkcodec"
)

const (
	finalStepName   = "Final Deliverable"
	maxStepNameRune = 80
)

// RoundItem is one feedback item used to build a round.
type RoundItem struct {
	Text      string
	Timestamp float64
	Images    []string
}

// StepDraft describes one non-final step when the editor restructures a round.
type StepDraft struct {
	CommentID string
	Name      string
	Type      models.StepType
	Text      string
	Timestamp *float64
	Images    []string
}

// ContentUpdate edits the step at Index. NewImages are appended to what the step has.
type ContentUpdate struct {
	Index     int
	Text      *string
	Timestamp *float64
	NewImages []string
}

// StepStatusChange is the outcome of ApplyStepStatus.
type StepStatusChange struct {
	Steps     models.StepList
	MediaType *models.MediaType
	Changed   bool
}

func newFinalStep() models.Step {
	return models.Step{Name: finalStepName, Status: models.StepStatusPending, IsFinal: true}
}

func itemStep(item RoundItem, status models.StepStatus, stepType models.StepType, now time.Time) models.Step {
	text, links := linkcodec.Normalize(item.Text, nil)
	created := now
	return models.Step{
		Name:   stepName(item.Text, item.Timestamp),
		Status: status,
		Metadata: &models.StepMetadata{
			Type:      stepType,
			Text:      text,
			Timestamp: item.Timestamp,
			Images:    append([]string(nil), item.Images...),
			Links:     links,
			CreatedAt: &created,
		},
	}
}

// BuildRoundSteps returns pending steps for items followed by a pending final step.
func BuildRoundSteps(items []RoundItem, now time.Time) models.StepList {
	steps := make(models.StepList, 0, len(items)+1)
	for _, item := range items {
		steps = append(steps, itemStep(item, models.StepStatusPending, models.StepTypeComment, now))
	}
	steps = append(steps, newFinalStep())
	return ReindexSteps(steps)
}

// BuildDeliveredSteps returns completed steps for items and a completed final step carrying link.
func BuildDeliveredSteps(items []RoundItem, link string, now time.Time) models.StepList {
	steps := make(models.StepList, 0, len(items)+1)
	for _, item := range items {
		steps = append(steps, itemStep(item, models.StepStatusCompleted, models.StepTypeComment, now))
	}
	final := newFinalStep()
	final.Status = models.StepStatusCompleted
	final.DeliverableLink = &link
	steps = append(steps, final)
	return ReindexSteps(steps)
}

// CompleteAll marks every non-final step completed and completes the final step with link.
func CompleteAll(prev models.StepList, link string) models.StepList {
	steps := prev.Clone()
	for i := range steps {
		steps[i].Status = models.StepStatusCompleted
	}
	steps[len(steps)-1].DeliverableLink = &link
	return steps
}

// ApplyStepStatus sets the status of the step at index. Completing the final step needs a
// link and a media type; reverting it clears both. Re-applying the current state reports
// Changed=false.
func ApplyStepStatus(prev models.StepList, index int, status models.StepStatus, link *string, mediaType, currentMedia *models.MediaType) (StepStatusChange, error) {
	if index < 0 || index >= len(prev) {
		return StepStatusChange{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step index %d out of range", index))
	}
	if !status.Valid() {
		return StepStatusChange{}, appErrors.Clone(appErrors.ErrValidation, "invalid step status")
	}
	steps := prev.Clone()
	step := &steps[index]
	result := StepStatusChange{Steps: steps, MediaType: currentMedia}

	if !step.IsFinal {
		result.Changed = step.Status != status
		step.Status = status
		return result, nil
	}

	if status == models.StepStatusPending {
		result.Changed = step.Status != status || step.DeliverableLink != nil || currentMedia != nil
		step.Status = status
		step.DeliverableLink = nil
		result.MediaType = nil
		return result, nil
	}

	if link == nil || strings.TrimSpace(*link) == "" {
		return StepStatusChange{}, appErrors.Clone(appErrors.ErrValidation, "deliverable link is required to complete the final step")
	}
	if mediaType == nil || !mediaType.Valid() {
		return StepStatusChange{}, appErrors.Clone(appErrors.ErrValidation, "media type is required to complete the final step")
	}
	newLink := strings.TrimSpace(*link)
	media := *mediaType
	result.Changed = step.Status != status ||
		step.DeliverableLink == nil || *step.DeliverableLink != newLink ||
		currentMedia == nil || *currentMedia != media
	step.Status = status
	step.DeliverableLink = &newLink
	result.MediaType = &media
	return result, nil
}

// RestructureSteps rebuilds the non-final steps from drafts. A draft whose CommentID
// matches a prior step keeps that step's status, timestamp and creation time; other
// drafts start pending. The prior final step is appended unchanged.
func RestructureSteps(prev models.StepList, drafts []StepDraft, now time.Time) models.StepList {
	byComment := make(map[string]models.Step, len(prev))
	for _, step := range prev {
		if step.IsFinal || step.Metadata == nil || step.Metadata.CommentID == "" {
			continue
		}
		if _, seen := byComment[step.Metadata.CommentID]; !seen {
			byComment[step.Metadata.CommentID] = step
		}
	}

	steps := make(models.StepList, 0, len(drafts)+1)
	for _, draft := range drafts {
		stepType := draft.Type
		if stepType == "" {
			stepType = models.StepTypeGeneralRevision
			if draft.CommentID != "" {
				stepType = models.StepTypeComment
			}
		}
		meta := &models.StepMetadata{
			Type:      stepType,
			CommentID: draft.CommentID,
			Images:    append([]string(nil), draft.Images...),
		}
		step := models.Step{Status: models.StepStatusPending, Metadata: meta}

		var priorLinks []linkcodec.Link
		if prior, ok := byComment[draft.CommentID]; ok && draft.CommentID != "" {
			step.Status = prior.Status
			meta.Timestamp = prior.Metadata.Timestamp
			meta.CreatedAt = copyTime(prior.Metadata.CreatedAt)
			priorLinks = prior.Metadata.Links
		} else {
			if draft.Timestamp != nil {
				meta.Timestamp = *draft.Timestamp
			}
			created := now
			meta.CreatedAt = &created
		}
		meta.Text, meta.Links = linkcodec.Normalize(draft.Text, priorLinks)

		step.Name = strings.TrimSpace(draft.Name)
		if step.Name == "" {
			step.Name = stepName(linkcodec.Decode(meta.Text, meta.Links), meta.Timestamp)
		}
		steps = append(steps, step)
	}
	steps = append(steps, finalOf(prev))
	return ReindexSteps(steps)
}

// ApplyContentUpdates edits step texts, timestamps and images in bulk. Changed texts are
// link-encoded again; timestamps are kept unless overridden.
func ApplyContentUpdates(prev models.StepList, updates []ContentUpdate) (models.StepList, error) {
	steps := prev.Clone()
	for _, update := range updates {
		if update.Index < 0 || update.Index >= len(steps) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step index %d out of range", update.Index))
		}
		step := &steps[update.Index]
		if step.IsFinal {
			return nil, appErrors.Clone(appErrors.ErrValidation, "the final step has no editable content")
		}
		if step.Metadata == nil {
			step.Metadata = &models.StepMetadata{Type: models.StepTypeGeneralRevision}
		}
		meta := step.Metadata

		if update.Text != nil {
			oldDisplay := linkcodec.Decode(meta.Text, meta.Links)
			if *update.Text != oldDisplay {
				derived := step.Name == "" || step.Name == stepName(oldDisplay, meta.Timestamp)
				meta.Text, meta.Links = linkcodec.Normalize(*update.Text, meta.Links)
				if derived {
					step.Name = stepName(*update.Text, meta.Timestamp)
				}
			}
		}
		if update.Timestamp != nil {
			if *update.Timestamp < 0 {
				return nil, appErrors.Clone(appErrors.ErrValidation, "timestamp must not be negative")
			}
			meta.Timestamp = *update.Timestamp
		}
		if len(update.NewImages) > 0 {
			if len(meta.Images)+len(update.NewImages) > models.MaxImagesPerItem {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d would carry more than %d images", update.Index, models.MaxImagesPerItem))
			}
			meta.Images = append(meta.Images, update.NewImages...)
		}
	}
	return ReindexSteps(steps), nil
}

// StepsFromComments orders comments by timestamp, oldest insertion first on ties, and
// turns each into a pending step followed by a new final step.
func StepsFromComments(comments []models.ReviewComment, now time.Time) models.StepList {
	ordered := append([]models.ReviewComment(nil), comments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Comment.Timestamp < ordered[j].Comment.Timestamp
	})

	steps := make(models.StepList, 0, len(ordered)+1)
	for _, c := range ordered {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		body := c.Comment
		steps = append(steps, models.Step{
			Name:   stepName(linkcodec.Decode(body.Text, body.Links), body.Timestamp),
			Status: models.StepStatusPending,
			Metadata: &models.StepMetadata{
				Type:      models.StepTypeComment,
				CommentID: c.ID,
				Text:      body.Text,
				Timestamp: body.Timestamp,
				Images:    append([]string(nil), body.Images...),
				Links:     append([]linkcodec.Link(nil), body.Links...),
				CreatedAt: &created,
			},
		})
	}
	steps = append(steps, newFinalStep())
	return ReindexSteps(steps)
}

// ReindexSteps sets metadata.step_index to each step's position.
func ReindexSteps(steps models.StepList) models.StepList {
	for i := range steps {
		if steps[i].Metadata != nil {
			steps[i].Metadata.StepIndex = i
		}
	}
	return steps
}

// TrackStatusFor derives the track status from its final step.
func TrackStatusFor(steps models.StepList) models.TrackStatus {
	if len(steps) > 0 && steps.Final().Status == models.StepStatusCompleted {
		return models.TrackStatusInReview
	}
	return models.TrackStatusInProgress
}

func finalOf(prev models.StepList) models.Step {
	if len(prev) > 0 && prev.Final().IsFinal {
		return prev[len(prev)-1 : len(prev)].Clone()[0]
	}
	return newFinalStep()
}

func stepName(text string, timestamp float64) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "Feedback at " + FormatTimestamp(timestamp)
	}
	if utf8.RuneCountInString(line) <= maxStepNameRune {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxStepNameRune-3])) + "..."
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past the hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
