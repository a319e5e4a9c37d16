package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type trackFixture struct {
	svc      *TrackService
	tracks   *trackRepoStub
	projects *projectRepoStub
	comments *commentRepoStub
	host     *hostStub
	notifier *notifierStub
	logs     *observer.ObservedLogs
}

func newTrackFixture(track *models.Track) *trackFixture {
	tracks := newTrackRepoStub()
	if track != nil {
		tracks = newTrackRepoStub(track)
	}
	projects := newProjectRepoStub()
	comments := newCommentRepoStub(tracks)
	host := &hostStub{}
	notifier := &notifierStub{}
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	images := NewImagePipeline(host, ImagePipelineConfig{}, nil, logger)
	svc := NewTrackService(tracks, projects, NewAccessGuard(projects), images, nil, logger,
		WithTrackChangeNotifier(notifier),
		WithTrackClock(func() time.Time { return fixedNow }))
	return &trackFixture{svc: svc, tracks: tracks, projects: projects, comments: comments, host: host, notifier: notifier, logs: logs}
}

func TestTrackServiceCreateProject(t *testing.T) {
	f := newTrackFixture(nil)
	password := "abc123"

	result, err := f.svc.CreateProject(context.Background(), editorActor, dto.CreateProjectRequest{
		Title:      "  Launch teaser ",
		ClientName: "Acme",
		Password:   &password,
		FeedbackItems: []dto.FeedbackItem{
			{Text: "Open on the logo", Timestamp: 0},
			{Text: "Shorter outro", Timestamp: 31.5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch teaser", result.Project.Title)
	assert.Equal(t, editorProfile, result.Project.EditorID)
	assert.True(t, result.Project.PasswordProtected)
	require.NotNil(t, result.Project.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(*result.Project.PasswordHash), []byte(password)))

	require.Len(t, result.Track.Steps, 3)
	assert.Equal(t, 1, result.Track.RoundNumber)
	assert.True(t, result.Track.Steps[2].IsFinal)
	assert.Equal(t, 1, result.Track.Version)
}

func TestTrackServiceCreateProjectRequiresEditor(t *testing.T) {
	f := newTrackFixture(nil)
	req := dto.CreateProjectRequest{Title: "x", ClientName: "y"}

	_, err := f.svc.CreateProject(context.Background(), anonActor, req)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = f.svc.CreateProject(context.Background(), clientActor, req)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Nil(t, f.projects.created)
}

func TestTrackServiceDeliverRound(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	updated, err := f.svc.DeliverRound(context.Background(), editorActor, testTrackID, dto.DeliverRoundRequest{
		Version:         1,
		DeliverableLink: "https://cdn.test/cut-v2.mp4",
		MediaType:       "video",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, models.TrackStatusInReview, updated.Status)
	require.NotNil(t, updated.FinalDeliverableMediaType)
	assert.Equal(t, models.MediaTypeVideo, *updated.FinalDeliverableMediaType)
	for _, s := range updated.Steps {
		assert.Equal(t, models.StepStatusCompleted, s.Status)
	}
	assert.Equal(t, models.ProjectStatusInReview, f.tracks.projectState[testProjectID])
	assert.Equal(t, []TrackChange{{ProjectID: testProjectID, TrackID: testTrackID}}, f.notifier.changes)
}

func TestTrackServiceEditorOnly(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))
	req := dto.SetStepStatusRequest{Version: 1, Status: "completed"}

	_, err := f.svc.SetStepStatus(context.Background(), anonActor, testTrackID, 0, req)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = f.svc.SetStepStatus(context.Background(), otherActor, testTrackID, 0, req)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.SetStepStatus(context.Background(), editorActor, "missing", 0, req)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Zero(t, f.tracks.updateCalls)
}

func TestTrackServiceSetStepStatusIdempotent(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	updated, err := f.svc.SetStepStatus(context.Background(), editorActor, testTrackID, 0, dto.SetStepStatusRequest{Version: 1, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, updated.Steps[0].Status)
	assert.Equal(t, models.TrackStatusInProgress, updated.Status)
	assert.Equal(t, 1, f.tracks.updateCalls)

	same, err := f.svc.SetStepStatus(context.Background(), editorActor, testTrackID, 0, dto.SetStepStatusRequest{Version: 2, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 2, same.Version)
	assert.Equal(t, 1, f.tracks.updateCalls)

	media := "image"
	final, err := f.svc.SetStepStatus(context.Background(), editorActor, testTrackID, 2, dto.SetStepStatusRequest{
		Version: 2, Status: "completed", DeliverableLink: strPtr("https://cdn.test/still.png"), MediaType: &media,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackStatusInReview, final.Status)
	assert.Equal(t, models.ProjectStatusInReview, f.tracks.projectState[testProjectID])
}

func TestTrackServiceVersionConflict(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	_, err := f.svc.SetStepStatus(context.Background(), editorActor, testTrackID, 0, dto.SetStepStatusRequest{Version: 3, Status: "completed"})
	require.ErrorIs(t, err, appErrors.ErrVersionConflict)
	assert.Zero(t, f.tracks.updateCalls)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, map[string]interface{}{"current_version": 1}, appErr.Details)
}

func TestTrackServiceRejectedWriteIsClassified(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Track)
		want   *appErrors.Error
	}{
		{name: "concurrent edit", mutate: func(tr *models.Track) { tr.Version++ }, want: appErrors.ErrVersionConflict},
		{name: "client decided meanwhile", mutate: func(tr *models.Track) { tr.ClientDecision = models.DecisionApproved }, want: appErrors.ErrStateConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTrackFixture(pendingTrack(threeStepRound()))
			f.tracks.beforeUpdate = tc.mutate

			_, err := f.svc.SetStepStatus(context.Background(), editorActor, testTrackID, 1, dto.SetStepStatusRequest{Version: 1, Status: "completed"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, models.StepStatusPending, f.tracks.tracks[testTrackID].Steps[1].Status)
			assert.Empty(t, f.notifier.changes)
		})
	}
}

func TestTrackServiceRestructureSteps(t *testing.T) {
	prev := StepsFromComments([]models.ReviewComment{
		{ID: "c1", Comment: models.CommentBody{Text: "Color", Timestamp: 5}, CreatedAt: fixedNow},
	}, fixedNow)
	prev[0].Status = models.StepStatusCompleted
	f := newTrackFixture(pendingTrack(prev))

	updated, err := f.svc.RestructureSteps(context.Background(), editorActor, testTrackID, dto.RestructureStepsRequest{
		Version: 1,
		Steps: []dto.StepDescriptor{
			{Text: "New note", Timestamp: floatPtr(12)},
			{CommentID: "c1", Text: "Color grade warmer", Timestamp: floatPtr(99)},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Steps, 3)
	assert.Equal(t, models.StepStatusCompleted, updated.Steps[1].Status)
	assert.Equal(t, 5.0, updated.Steps[1].Metadata.Timestamp)
	assert.Equal(t, 1, countFinal(updated.Steps))
	assert.True(t, updated.Steps[2].IsFinal)
}

func TestTrackServiceUpdateStepContentUploads(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	updated, err := f.svc.UpdateStepContent(context.Background(), editorActor, testTrackID, dto.UpdateStepContentRequest{
		Version: 1,
		Updates: []dto.StepContentUpdate{{Index: 1, Text: strPtr("Music quieter under dialogue")}},
	}, map[int][]ImageUpload{0: {pngUpload("a.png"), pngUpload("b.png")}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.host.uploads())
	assert.Equal(t, []string{"https://img.test/a.png", "https://img.test/b.png"}, updated.Steps[0].Metadata.Images)
	assert.Equal(t, "Music quieter under dialogue", updated.Steps[1].Metadata.Text)
}

func TestTrackServiceUpdateStepContentRejectsBeforeUpload(t *testing.T) {
	big := pngUpload("big.png")
	big.Data = make([]byte, 6*1024*1024)
	gif := ImageUpload{Filename: "anim.gif", ContentType: "image/gif", Data: []byte("GIF89a....")}
	five := []ImageUpload{pngUpload("1.png"), pngUpload("2.png"), pngUpload("3.png"), pngUpload("4.png"), pngUpload("5.png")}

	for name, files := range map[string][]ImageUpload{"count": five, "size": {big}, "type": {gif}} {
		t.Run(name, func(t *testing.T) {
			f := newTrackFixture(pendingTrack(threeStepRound()))
			_, err := f.svc.UpdateStepContent(context.Background(), editorActor, testTrackID, dto.UpdateStepContentRequest{
				Version: 1,
				Updates: []dto.StepContentUpdate{{Index: 0, Text: strPtr("x")}},
			}, map[int][]ImageUpload{0: files})
			require.ErrorIs(t, err, appErrors.ErrValidation)
			assert.Zero(t, f.host.uploads())
			assert.Zero(t, f.tracks.updateCalls)
		})
	}
}

func TestTrackServiceOrphanedImagesAreLogged(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))
	f.tracks.updateErr = errors.New("connection reset")

	_, err := f.svc.UpdateStepContent(context.Background(), editorActor, testTrackID, dto.UpdateStepContentRequest{
		Version: 1,
		Updates: []dto.StepContentUpdate{{Index: 0, Text: strPtr("x")}},
	}, map[int][]ImageUpload{0: {pngUpload("kept.png")}})
	require.ErrorIs(t, err, appErrors.ErrPersistence)

	entries := f.logs.FilterMessage("orphaned_images").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"https://img.test/kept.png"}, entries[0].ContextMap()["urls"])
}

func TestTrackServiceUploadFailureFailsBatch(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))
	f.host.failOn = "b.png"

	_, err := f.svc.UpdateStepContent(context.Background(), editorActor, testTrackID, dto.UpdateStepContentRequest{
		Version: 1,
		Updates: []dto.StepContentUpdate{{Index: 0, Text: strPtr("x")}},
	}, map[int][]ImageUpload{0: {pngUpload("a.png"), pngUpload("b.png")}})
	require.ErrorIs(t, err, appErrors.ErrUpstream)
	assert.Zero(t, f.tracks.updateCalls)
}

func TestTrackServiceRequestRevisionsOrdersByTimestamp(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))
	for i, ts := range []float64{2.0, 10.5, 1.0} {
		f.comments.seed(models.ReviewComment{
			ID:            []string{"c-2", "c-10", "c-1"}[i],
			TrackID:       testTrackID,
			Comment:       models.CommentBody{Text: "note", Timestamp: ts},
			CommenterName: "Client",
		})
	}

	next, err := f.svc.RequestRevisions(context.Background(), anonActor, testProjectID, testTrackID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, next.RoundNumber)
	require.Len(t, next.Steps, 4)
	assert.Equal(t, 1.0, next.Steps[0].Metadata.Timestamp)
	assert.Equal(t, 2.0, next.Steps[1].Metadata.Timestamp)
	assert.Equal(t, 10.5, next.Steps[2].Metadata.Timestamp)
	assert.True(t, next.Steps[3].IsFinal)

	closed := f.tracks.tracks[testTrackID]
	assert.Equal(t, models.DecisionRevisionsRequested, closed.ClientDecision)
	assert.Equal(t, models.ProjectStatusInProgress, f.tracks.projectState[testProjectID])
}

func TestTrackServiceRequestRevisionsCarriesCommentsAddedBeforeTheLock(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))
	f.comments.seed(models.ReviewComment{
		ID: "c-early", TrackID: testTrackID, CommenterName: "Client",
		Comment: models.CommentBody{Text: "trim intro", Timestamp: 3},
	})
	// Lands after the service checked the round but before the decision is written.
	f.tracks.beforeRevision = func() {
		f.comments.seed(models.ReviewComment{
			ID: "c-late", TrackID: testTrackID, CommenterName: "Client",
			Comment: models.CommentBody{Text: "louder music", Timestamp: 1},
		})
	}

	next, err := f.svc.RequestRevisions(context.Background(), anonActor, testProjectID, testTrackID, 1)
	require.NoError(t, err)
	require.Len(t, next.Steps, 3)
	assert.Equal(t, "c-late", next.Steps[0].Metadata.CommentID)
	assert.Equal(t, "c-early", next.Steps[1].Metadata.CommentID)
	assert.True(t, next.Steps[2].IsFinal)
}

func TestTrackServiceApprove(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	approved, err := f.svc.Approve(context.Background(), anonActor, testProjectID, testTrackID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, approved.ClientDecision)
	assert.Equal(t, 2, approved.Version)
	assert.Equal(t, models.ProjectStatusCompleted, f.tracks.projectState[testProjectID])

	_, err = f.svc.Approve(context.Background(), anonActor, "project-2", testTrackID, 2)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTrackServiceClosedRoundRejectsTransitions(t *testing.T) {
	for _, decision := range []models.ClientDecision{models.DecisionApproved, models.DecisionRevisionsRequested} {
		t.Run(string(decision), func(t *testing.T) {
			track := pendingTrack(threeStepRound())
			track.ClientDecision = decision
			f := newTrackFixture(track)

			_, err := f.svc.RequestRevisions(context.Background(), anonActor, testProjectID, testTrackID, 1)
			require.ErrorIs(t, err, appErrors.ErrStateConflict)
			_, err = f.svc.Approve(context.Background(), anonActor, testProjectID, testTrackID, 1)
			require.ErrorIs(t, err, appErrors.ErrStateConflict)
			_, err = f.svc.DeliverRound(context.Background(), editorActor, testTrackID, dto.DeliverRoundRequest{
				Version: 1, DeliverableLink: "https://cdn.test/v.mp4", MediaType: "video",
			})
			require.ErrorIs(t, err, appErrors.ErrStateConflict)

			assert.Len(t, f.tracks.tracks, 1)
			assert.Equal(t, decision, f.tracks.tracks[testTrackID].ClientDecision)
			assert.Equal(t, 1, f.tracks.tracks[testTrackID].Version)
			assert.Zero(t, f.tracks.updateCalls)
		})
	}
}

func TestTrackServiceGetTrack(t *testing.T) {
	f := newTrackFixture(pendingTrack(threeStepRound()))

	view, err := f.svc.GetTrack(context.Background(), testProjectID, testTrackID)
	require.NoError(t, err)
	assert.Equal(t, "Brand film", view.ProjectTitle)
	assert.Equal(t, 1, view.RoundCount)
	assert.Equal(t, testTrackID, view.Track.ID)

	_, err = f.svc.GetTrack(context.Background(), "project-missing", testTrackID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
