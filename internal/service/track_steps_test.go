package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func countFinal(steps models.StepList) int {
	n := 0
	for _, s := range steps {
		if s.IsFinal {
			n++
		}
	}
	return n
}

func TestBuildRoundStepsEndsWithFinal(t *testing.T) {
	steps := BuildRoundSteps([]RoundItem{
		{Text: "See https://example.com/ref for the grade", Timestamp: 65},
		{Text: "", Timestamp: 3725, Images: []string{"https://img.test/a.png"}},
	}, fixedNow)

	require.Len(t, steps, 3)
	require.NoError(t, steps.Validate())
	assert.Equal(t, 1, countFinal(steps))
	assert.Equal(t, finalStepName, steps[2].Name)

	first := steps[0]
	assert.Equal(t, models.StepStatusPending, first.Status)
	assert.Equal(t, "See [LINK:0] for the grade", first.Metadata.Text)
	require.Len(t, first.Metadata.Links, 1)
	assert.Equal(t, "https://example.com/ref", first.Metadata.Links[0].URL)
	assert.Equal(t, "See https://example.com/ref for the grade", first.Name)
	assert.Equal(t, 0, first.Metadata.StepIndex)

	assert.Equal(t, "Feedback at 1:02:05", steps[1].Name)
	assert.Equal(t, 1, steps[1].Metadata.StepIndex)
}

func TestCompleteAllSetsLinkOnFinal(t *testing.T) {
	prev := threeStepRound()
	steps := CompleteAll(prev, "https://cdn.test/cut-v2.mp4")

	for _, s := range steps {
		assert.Equal(t, models.StepStatusCompleted, s.Status)
	}
	require.NotNil(t, steps.Final().DeliverableLink)
	assert.Equal(t, "https://cdn.test/cut-v2.mp4", *steps.Final().DeliverableLink)
	assert.Equal(t, models.StepStatusPending, prev[0].Status, "input must not be mutated")
	assert.Equal(t, models.TrackStatusInReview, TrackStatusFor(steps))
}

func TestApplyStepStatusFinalStep(t *testing.T) {
	prev := threeStepRound()
	video := models.MediaTypeVideo

	_, err := ApplyStepStatus(prev, 2, models.StepStatusCompleted, nil, &video, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = ApplyStepStatus(prev, 2, models.StepStatusCompleted, strPtr("https://cdn.test/v.mp4"), nil, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	change, err := ApplyStepStatus(prev, 2, models.StepStatusCompleted, strPtr("https://cdn.test/v.mp4"), &video, nil)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	require.NotNil(t, change.MediaType)
	assert.Equal(t, video, *change.MediaType)
	assert.Equal(t, models.TrackStatusInReview, TrackStatusFor(change.Steps))

	again, err := ApplyStepStatus(change.Steps, 2, models.StepStatusCompleted, strPtr("https://cdn.test/v.mp4"), &video, change.MediaType)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	reverted, err := ApplyStepStatus(change.Steps, 2, models.StepStatusPending, nil, nil, change.MediaType)
	require.NoError(t, err)
	assert.True(t, reverted.Changed)
	assert.Nil(t, reverted.Steps.Final().DeliverableLink)
	assert.Nil(t, reverted.MediaType)
}

func TestApplyStepStatusRejectsBadInput(t *testing.T) {
	prev := threeStepRound()
	_, err := ApplyStepStatus(prev, 3, models.StepStatusCompleted, nil, nil, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = ApplyStepStatus(prev, 0, models.StepStatus("done"), nil, nil, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRestructurePreservesMatchedSteps(t *testing.T) {
	prev := StepsFromComments([]models.ReviewComment{
		{ID: "c1", Comment: models.CommentBody{Text: "Color is off", Timestamp: 5}, CreatedAt: fixedNow},
		{ID: "c2", Comment: models.CommentBody{Text: "Cut the pause", Timestamp: 9}, CreatedAt: fixedNow},
	}, fixedNow)
	prev[0].Status = models.StepStatusCompleted

	steps := RestructureSteps(prev, []StepDraft{
		{CommentID: "c2", Text: "Cut the long pause", Timestamp: floatPtr(100)},
		{CommentID: "c1", Text: "Color is off"},
		{Text: "Add end card", Timestamp: floatPtr(58)},
	}, fixedNow)

	require.Len(t, steps, 4)
	require.NoError(t, steps.Validate())
	assert.Equal(t, 1, countFinal(steps))
	assert.True(t, steps[3].IsFinal)

	assert.Equal(t, "c2", steps[0].Metadata.CommentID)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, 9.0, steps[0].Metadata.Timestamp)
	assert.Equal(t, "Cut the long pause", steps[0].Metadata.Text)

	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
	assert.Equal(t, 5.0, steps[1].Metadata.Timestamp)

	assert.Equal(t, models.StepTypeGeneralRevision, steps[2].Metadata.Type)
	assert.Equal(t, models.StepStatusPending, steps[2].Status)
	assert.Equal(t, 58.0, steps[2].Metadata.Timestamp)
	assert.Equal(t, 2, steps[2].Metadata.StepIndex)
}

func TestRestructureWithNoDraftsKeepsOnlyFinal(t *testing.T) {
	prev := CompleteAll(threeStepRound(), "https://cdn.test/v.mp4")
	steps := RestructureSteps(prev, nil, fixedNow)

	require.Len(t, steps, 1)
	assert.True(t, steps[0].IsFinal)
	require.NotNil(t, steps[0].DeliverableLink)
	assert.Equal(t, "https://cdn.test/v.mp4", *steps[0].DeliverableLink)
}

func TestApplyContentUpdates(t *testing.T) {
	prev := threeStepRound()

	steps, err := ApplyContentUpdates(prev, []ContentUpdate{
		{Index: 0, Text: strPtr("Trim the intro, see https://example.com/x"), Timestamp: floatPtr(4)},
		{Index: 1, NewImages: []string{"https://img.test/1.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Trim the intro, see [LINK:0]", steps[0].Metadata.Text)
	assert.Equal(t, "Trim the intro, see https://example.com/x", steps[0].Name)
	assert.Equal(t, 4.0, steps[0].Metadata.Timestamp)
	assert.Equal(t, []string{"https://img.test/1.png"}, steps[1].Metadata.Images)
	assert.Equal(t, "Trim the intro", prev[0].Metadata.Text)

	_, err = ApplyContentUpdates(prev, []ContentUpdate{{Index: 2, Text: strPtr("x")}})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = ApplyContentUpdates(prev, []ContentUpdate{{Index: 0, NewImages: []string{"a", "b", "c", "d", "e"}}})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStepsFromCommentsOrdersByTimestamp(t *testing.T) {
	comments := []models.ReviewComment{
		{ID: "a", Comment: models.CommentBody{Text: "two", Timestamp: 2.0}},
		{ID: "b", Comment: models.CommentBody{Text: "ten and a half", Timestamp: 10.5}},
		{ID: "c", Comment: models.CommentBody{Text: "one", Timestamp: 1.0}},
		{ID: "d", Comment: models.CommentBody{Text: "also two", Timestamp: 2.0}},
	}
	steps := StepsFromComments(comments, fixedNow)

	require.Len(t, steps, 5)
	got := make([]string, 0, 4)
	for _, s := range steps[:4] {
		got = append(got, s.Metadata.CommentID)
		assert.Equal(t, models.StepStatusPending, s.Status)
	}
	assert.Equal(t, []string{"c", "a", "d", "b"}, got)
	assert.True(t, steps[4].IsFinal)
	require.NoError(t, steps.Validate())
}

func TestFormatTimestamp(t *testing.T) {
	cases := map[float64]string{0: "0:00", 9.9: "0:09", 65: "1:05", 3725: "1:02:05", -3: "0:00"}
	for in, want := range cases {
		assert.Equal(t, want, FormatTimestamp(in))
	}
}
