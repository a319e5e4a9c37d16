package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

type commentFixture struct {
	svc      *CommentService
	tracks   *trackRepoStub
	comments *commentRepoStub
	host     *hostStub
	notifier *notifierStub
}

func newCommentFixture(decision models.ClientDecision) *commentFixture {
	track := pendingTrack(threeStepRound())
	track.ClientDecision = decision
	tracks := newTrackRepoStub(track)
	comments := newCommentRepoStub(tracks)
	host := &hostStub{}
	notifier := &notifierStub{}
	images := NewImagePipeline(host, ImagePipelineConfig{}, nil, nil)
	return &commentFixture{
		svc:      NewCommentService(comments, tracks, images, notifier, nil, nil),
		tracks:   tracks,
		comments: comments,
		host:     host,
		notifier: notifier,
	}
}

func seedComment(f *commentFixture, id string, owner *string, images ...string) {
	f.comments.seed(models.ReviewComment{
		ID:            id,
		TrackID:       testTrackID,
		Comment:       models.CommentBody{Text: "original", Timestamp: 4, Images: images},
		CommenterName: "someone",
		CommenterID:   owner,
	})
}

func TestCommentServiceAdd(t *testing.T) {
	f := newCommentFixture(models.DecisionPending)

	comment, err := f.svc.Add(context.Background(), clientActor, testProjectID, testTrackID, dto.CreateCommentRequest{
		Text:      "Logo is blurry, compare https://brand.test/logo.svg",
		Timestamp: 12.5,
	}, []ImageUpload{pngUpload("frame.png")})
	require.NoError(t, err)
	assert.Equal(t, "Logo is blurry, compare [LINK:0]", comment.Comment.Text)
	require.Len(t, comment.Comment.Links, 1)
	assert.Equal(t, []string{"https://img.test/frame.png"}, comment.Comment.Images)
	assert.Equal(t, "Cleo Client", comment.CommenterName)
	require.NotNil(t, comment.CommenterID)
	assert.Equal(t, clientActor.UserID, *comment.CommenterID)
	assert.Len(t, f.notifier.changes, 1)

	anon, err := f.svc.Add(context.Background(), anonActor, testProjectID, testTrackID, dto.CreateCommentRequest{Text: "hi", Timestamp: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, anon.CommenterID)
	assert.Equal(t, anonymousCommenter, anon.CommenterName)
}

func TestCommentServiceAddValidation(t *testing.T) {
	f := newCommentFixture(models.DecisionPending)

	_, err := f.svc.Add(context.Background(), anonActor, testProjectID, testTrackID, dto.CreateCommentRequest{Text: "   "}, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	five := []ImageUpload{pngUpload("1.png"), pngUpload("2.png"), pngUpload("3.png"), pngUpload("4.png"), pngUpload("5.png")}
	_, err = f.svc.Add(context.Background(), anonActor, testProjectID, testTrackID, dto.CreateCommentRequest{Text: "too many"}, five)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.host.uploads())
	assert.Zero(t, f.comments.writes)

	_, err = f.svc.Add(context.Background(), anonActor, testProjectID, "track-x", dto.CreateCommentRequest{Text: "x"}, nil)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCommentServiceClosedRound(t *testing.T) {
	owner := clientActor.UserID
	f := newCommentFixture(models.DecisionApproved)
	seedComment(f, "c1", &owner)

	_, err := f.svc.Add(context.Background(), clientActor, testProjectID, testTrackID, dto.CreateCommentRequest{Text: "late"}, []ImageUpload{pngUpload("late.png")})
	require.ErrorIs(t, err, appErrors.ErrStateConflict)

	_, err = f.svc.Edit(context.Background(), clientActor, testProjectID, testTrackID, "c1", dto.UpdateCommentRequest{Text: strPtr("changed")}, nil)
	require.ErrorIs(t, err, appErrors.ErrStateConflict)

	err = f.svc.Delete(context.Background(), clientActor, testProjectID, testTrackID, "c1")
	require.ErrorIs(t, err, appErrors.ErrStateConflict)

	assert.Zero(t, f.host.uploads())
	assert.Zero(t, f.comments.writes)
	assert.Equal(t, "original", f.comments.comments["c1"].Comment.Text)
}

func TestCommentServiceOwnership(t *testing.T) {
	owner := clientActor.UserID
	f := newCommentFixture(models.DecisionPending)
	seedComment(f, "anon", nil)
	seedComment(f, "owned", &owner)

	err := f.svc.Delete(context.Background(), clientActor, testProjectID, testTrackID, "anon")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Edit(context.Background(), otherActor, testProjectID, testTrackID, "owned", dto.UpdateCommentRequest{Text: strPtr("hijack")}, nil)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	err = f.svc.Delete(context.Background(), anonActor, testProjectID, testTrackID, "owned")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Zero(t, f.comments.writes)

	require.NoError(t, f.svc.Delete(context.Background(), anonActor, testProjectID, testTrackID, "anon"))
	_, err = f.svc.Edit(context.Background(), clientActor, testProjectID, testTrackID, "owned", dto.UpdateCommentRequest{Text: strPtr("mine")}, nil)
	require.NoError(t, err)
}

func TestCommentServiceOwnershipCheckedBeforeState(t *testing.T) {
	owner := clientActor.UserID
	f := newCommentFixture(models.DecisionRevisionsRequested)
	seedComment(f, "owned", &owner)

	err := f.svc.Delete(context.Background(), otherActor, testProjectID, testTrackID, "owned")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCommentServiceEditImages(t *testing.T) {
	owner := clientActor.UserID
	f := newCommentFixture(models.DecisionPending)
	seedComment(f, "c1", &owner, "https://img.test/a.png", "https://img.test/b.png", "https://img.test/c.png")

	edited, err := f.svc.Edit(context.Background(), clientActor, testProjectID, testTrackID, "c1", dto.UpdateCommentRequest{
		Timestamp:  floatPtr(20),
		KeepImages: []string{"https://img.test/c.png"},
	}, []ImageUpload{pngUpload("d.png")})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.test/c.png", "https://img.test/d.png"}, edited.Comment.Images)
	assert.Equal(t, 20.0, edited.Comment.Timestamp)
	assert.Equal(t, "original", edited.Comment.Text)

	_, err = f.svc.Edit(context.Background(), clientActor, testProjectID, testTrackID, "c1", dto.UpdateCommentRequest{
		KeepImages: []string{"https://elsewhere.test/x.png"},
	}, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	// Keeping everything leaves no room for three more images.
	_, err = f.svc.Edit(context.Background(), clientActor, testProjectID, testTrackID, "c1", dto.UpdateCommentRequest{},
		[]ImageUpload{pngUpload("e.png"), pngUpload("f.png"), pngUpload("g.png"), pngUpload("h.png")})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 1, f.host.uploads())
}

func TestCommentServiceListOrdersByTimestamp(t *testing.T) {
	f := newCommentFixture(models.DecisionPending)
	for i, ts := range []float64{30, 2, 15} {
		f.comments.seed(models.ReviewComment{
			ID:      []string{"late", "early", "mid"}[i],
			TrackID: testTrackID,
			Comment: models.CommentBody{Text: "n", Timestamp: ts},
		})
	}

	list, err := f.svc.List(context.Background(), testProjectID, testTrackID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "late", list[2].ID)
}
