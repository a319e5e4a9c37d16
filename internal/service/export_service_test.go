package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func newExportFixture() *ExportService {
	steps := BuildRoundSteps([]RoundItem{
		{Text: "Fix the flicker, ref https://ref.test/clip", Timestamp: 75, Images: []string{"https://img.test/1.png"}},
	}, fixedNow)
	steps = CompleteAll(steps, "https://cdn.test/final.mp4")
	tracks := newTrackRepoStub(pendingTrack(steps))
	projects := newProjectRepoStub()
	return NewExportService(tracks, NewAccessGuard(projects), nil)
}

func TestExportServiceRoundSheetCSV(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.RoundSheet(context.Background(), editorActor, testTrackID, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "round-1-track-1.csv", result.Filename)

	records, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"#", "Step", "Status", "Timestamp", "Feedback", "Images", "Deliverable"}, records[0])
	assert.Equal(t, []string{"1", "Fix the flicker, ref https://ref.test/clip", "completed", "1:15", "Fix the flicker, ref https://ref.test/clip", "1", ""}, records[1])
	assert.Equal(t, "https://cdn.test/final.mp4", records[2][6])
}

func TestExportServiceRoundSheetPDF(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.RoundSheet(context.Background(), editorActor, testTrackID, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Data, []byte("%PDF")))
}

func TestExportServiceRoundSheetGuards(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.RoundSheet(context.Background(), editorActor, testTrackID, "xlsx")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RoundSheet(context.Background(), models.AnonymousActor(), testTrackID, "csv")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.RoundSheet(context.Background(), otherActor, testTrackID, "csv")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
