package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/export"
	"github.com/noah-isme/cutreview-api/pkg/linkcodec"
)

// ExportFormat names a rendering of the round sheet.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult is a rendered document ready to be sent as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the feedback of a round for offline use by the editor.
type ExportService struct {
	tracks trackLoader
	guard  *AccessGuard
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(tracks trackLoader, guard *AccessGuard, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{tracks: tracks, guard: guard, logger: logger}
}

// RoundSheet renders the steps of a round in the requested format.
func (s *ExportService) RoundSheet(ctx context.Context, actor models.Actor, trackID string, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportCSV
	}
	if format != ExportCSV && format != ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if !actor.Authenticated {
		return nil, appErrors.ErrUnauthorized
	}
	track, err := loadTrack(ctx, s.tracks, trackID)
	if err != nil {
		return nil, err
	}
	project, err := s.guard.RequireProjectEditor(ctx, actor, track.ProjectID)
	if err != nil {
		return nil, err
	}

	sheet := RoundSheetOf(project.Title, track)
	var data []byte
	contentType := "text/csv"
	switch format {
	case ExportPDF:
		data, err = export.RenderPDF(sheet)
		contentType = "application/pdf"
	default:
		data, err = export.RenderCSV(sheet)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("round exported",
		zap.String("track_id", track.ID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)))
	return &ExportResult{
		Filename:    fmt.Sprintf("round-%d-%s.%s", track.RoundNumber, track.ID, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// RoundSheetOf tabulates the steps of track.
func RoundSheetOf(projectTitle string, track *models.Track) export.Sheet {
	sheet := export.Sheet{
		Title: fmt.Sprintf("%s - Round %d", projectTitle, track.RoundNumber),
		Columns: []export.Column{
			{Header: "#", Width: 0.5},
			{Header: "Step", Width: 2},
			{Header: "Status", Width: 1},
			{Header: "Timestamp", Width: 1},
			{Header: "Feedback", Width: 4},
			{Header: "Images", Width: 0.7},
			{Header: "Deliverable", Width: 2.5},
		},
		Rows: make([][]string, 0, len(track.Steps)),
	}
	for i, step := range track.Steps {
		var timestamp, text string
		images := 0
		if step.Metadata != nil {
			timestamp = FormatTimestamp(step.Metadata.Timestamp)
			text = linkcodec.Decode(step.Metadata.Text, step.Metadata.Links)
			images = len(step.Metadata.Images)
		}
		link := ""
		if step.DeliverableLink != nil {
			link = *step.DeliverableLink
		}
		sheet.Rows = append(sheet.Rows, []string{
			strconv.Itoa(i + 1),
			step.Name,
			string(step.Status),
			timestamp,
			text,
			strconv.Itoa(images),
			link,
		})
	}
	return sheet
}
