package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/cutreview-api/internal/models"
	"github.com/noah-isme/cutreview-api/internal/repository"
)

const (
	testProjectID = "project-1"
	testTrackID   = "track-1"
	editorUserID  = "user-editor"
	editorProfile = "profile-editor"
)

var (
	editorActor = models.Actor{UserID: editorUserID, Name: "Eddie Editor", Authenticated: true}
	clientActor = models.Actor{UserID: "user-client", Name: "Cleo Client", Authenticated: true}
	otherActor  = models.Actor{UserID: "user-other", Name: "Otto Other", Authenticated: true}
	anonActor   = models.AnonymousActor()
	fixedNow    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type trackRepoStub struct {
	tracks       map[string]*models.Track
	updateCalls  int
	lastUpdate   repository.UpdateStepsParams
	updateErr    error
	beforeUpdate func(*models.Track)
	projectState map[string]models.ProjectStatus
	nextID       int
	// comments is read while the closing round is held, like the SQL transaction does.
	comments       *commentRepoStub
	beforeRevision func()
}

func newTrackRepoStub(tracks ...*models.Track) *trackRepoStub {
	stub := &trackRepoStub{tracks: make(map[string]*models.Track), projectState: make(map[string]models.ProjectStatus)}
	for _, t := range tracks {
		stub.tracks[t.ID] = t
	}
	return stub
}

func (s *trackRepoStub) GetByID(ctx context.Context, id string) (*models.Track, error) {
	t, ok := s.tracks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *t
	copy.Steps = t.Steps.Clone()
	return &copy, nil
}

func (s *trackRepoStub) ListByProject(ctx context.Context, projectID string) ([]models.Track, error) {
	var out []models.Track
	for _, t := range s.tracks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (s *trackRepoStub) UpdateSteps(ctx context.Context, params repository.UpdateStepsParams) (int, error) {
	s.updateCalls++
	s.lastUpdate = params
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	t, ok := s.tracks[params.ID]
	if ok && s.beforeUpdate != nil {
		s.beforeUpdate(t)
	}
	if !ok || t.Version != params.ExpectedVersion || !t.Pending() {
		return 0, sql.ErrNoRows
	}
	t.Steps = params.Steps.Clone()
	t.Status = params.Status
	t.FinalDeliverableMediaType = params.MediaType
	t.Version++
	if params.ProjectStatus != nil {
		s.projectState[t.ProjectID] = *params.ProjectStatus
	}
	return t.Version, nil
}

func (s *trackRepoStub) RequestRevisions(ctx context.Context, params repository.RequestRevisionsParams) (*models.Track, error) {
	t, ok := s.tracks[params.CurrentTrackID]
	if !ok || t.ProjectID != params.ProjectID {
		return nil, sql.ErrNoRows
	}
	if !t.Pending() {
		return nil, repository.ErrDecisionMade
	}
	if t.Version != params.ExpectedVersion {
		return nil, repository.ErrVersionMismatch
	}
	if s.beforeRevision != nil {
		s.beforeRevision()
	}
	var comments []models.ReviewComment
	if s.comments != nil {
		comments, _ = s.comments.ListByTrack(ctx, t.ID)
	}
	t.ClientDecision = models.DecisionRevisionsRequested
	t.Version++
	s.nextID++
	next := &models.Track{
		ID:             fmt.Sprintf("track-next-%d", s.nextID),
		ProjectID:      t.ProjectID,
		RoundNumber:    t.RoundNumber + 1,
		Status:         models.TrackStatusInProgress,
		ClientDecision: models.DecisionPending,
		Steps:          params.BuildNextSteps(comments),
		Version:        1,
	}
	s.tracks[next.ID] = next
	s.projectState[t.ProjectID] = models.ProjectStatusInProgress
	return next, nil
}

func (s *trackRepoStub) Approve(ctx context.Context, params repository.ApproveParams) error {
	t, ok := s.tracks[params.TrackID]
	if !ok || t.ProjectID != params.ProjectID {
		return sql.ErrNoRows
	}
	if !t.Pending() {
		return repository.ErrDecisionMade
	}
	if t.Version != params.ExpectedVersion {
		return repository.ErrVersionMismatch
	}
	t.ClientDecision = models.DecisionApproved
	t.Version++
	s.projectState[t.ProjectID] = models.ProjectStatusCompleted
	return nil
}

type projectRepoStub struct {
	projects  map[string]*models.Project
	profiles  map[string]*models.Profile
	created   *models.Project
	createdTr *models.Track
	createErr error
}

func newProjectRepoStub() *projectRepoStub {
	return &projectRepoStub{
		projects: map[string]*models.Project{
			testProjectID: {ID: testProjectID, EditorID: editorProfile, Title: "Brand film", Status: models.ProjectStatusInProgress},
		},
		profiles: map[string]*models.Profile{
			editorUserID: {ID: editorProfile, UserID: editorUserID, DisplayName: "Eddie"},
			"user-other": {ID: "profile-other", UserID: "user-other", DisplayName: "Otto"},
		},
	}
}

func (s *projectRepoStub) CreateWithTrack(ctx context.Context, project *models.Project, track *models.Track) error {
	if s.createErr != nil {
		return s.createErr
	}
	project.ID = "project-new"
	track.ID = "track-new"
	track.ProjectID = project.ID
	track.ClientDecision = models.DecisionPending
	track.Version = 1
	s.created = project
	s.createdTr = track
	s.projects[project.ID] = project
	return nil
}

func (s *projectRepoStub) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (s *projectRepoStub) UpdatePassword(ctx context.Context, id string, hash *string) error {
	p, ok := s.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.PasswordHash = hash
	p.PasswordProtected = hash != nil
	return nil
}

func (s *projectRepoStub) FindProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

// commentRepoStub enforces the pending-round guard the way the SQL does.
type commentRepoStub struct {
	tracks   *trackRepoStub
	comments map[string]*models.ReviewComment
	order    []string
	writes   int
}

func newCommentRepoStub(tracks *trackRepoStub) *commentRepoStub {
	stub := &commentRepoStub{tracks: tracks, comments: make(map[string]*models.ReviewComment)}
	tracks.comments = stub
	return stub
}

func (s *commentRepoStub) seed(c models.ReviewComment) {
	copy := c
	s.comments[c.ID] = &copy
	s.order = append(s.order, c.ID)
}

func (s *commentRepoStub) pending(trackID string) bool {
	t, ok := s.tracks.tracks[trackID]
	return ok && t.Pending()
}

func (s *commentRepoStub) ListByTrack(ctx context.Context, trackID string) ([]models.ReviewComment, error) {
	var out []models.ReviewComment
	for _, id := range s.order {
		if c, ok := s.comments[id]; ok && c.TrackID == trackID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Comment.Timestamp < out[j].Comment.Timestamp })
	return out, nil
}

func (s *commentRepoStub) GetByID(ctx context.Context, id string) (*models.ReviewComment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (s *commentRepoStub) Create(ctx context.Context, comment *models.ReviewComment) error {
	if !s.pending(comment.TrackID) {
		return sql.ErrNoRows
	}
	s.writes++
	comment.ID = fmt.Sprintf("comment-%d", len(s.order)+1)
	comment.CreatedAt = fixedNow.Add(time.Duration(len(s.order)) * time.Second)
	s.seed(*comment)
	return nil
}

func (s *commentRepoStub) UpdateBody(ctx context.Context, id string, body models.CommentBody) error {
	c, ok := s.comments[id]
	if !ok || !s.pending(c.TrackID) {
		return sql.ErrNoRows
	}
	s.writes++
	c.Comment = body
	return nil
}

func (s *commentRepoStub) Delete(ctx context.Context, id string) error {
	c, ok := s.comments[id]
	if !ok || !s.pending(c.TrackID) {
		return sql.ErrNoRows
	}
	s.writes++
	delete(s.comments, id)
	return nil
}

type hostStub struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (h *hostStub) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failOn != "" && filename == h.failOn {
		return "", errors.New("host unavailable")
	}
	return "https://img.test/" + filename, nil
}

func (h *hostStub) uploads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type notifierStub struct {
	changes []TrackChange
}

func (n *notifierStub) TrackChanged(projectID, trackID string) {
	n.changes = append(n.changes, TrackChange{ProjectID: projectID, TrackID: trackID})
}

func pngUpload(name string) ImageUpload {
	data := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	return ImageUpload{Filename: name, ContentType: "image/png", Data: data}
}

func pendingTrack(steps models.StepList) *models.Track {
	return &models.Track{
		ID:             testTrackID,
		ProjectID:      testProjectID,
		RoundNumber:    1,
		Status:         models.TrackStatusInProgress,
		ClientDecision: models.DecisionPending,
		Steps:          steps,
		Version:        1,
	}
}

func threeStepRound() models.StepList {
	return BuildRoundSteps([]RoundItem{
		{Text: "Trim the intro", Timestamp: 3},
		{Text: "Louder music", Timestamp: 40},
	}, fixedNow)
}
