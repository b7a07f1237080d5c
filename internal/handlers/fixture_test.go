package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/autosave"
	"keyframes-backend/internal/export"
	"keyframes-backend/internal/handlers"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/services"
	"keyframes-backend/internal/timeline"
)

// store keeps projects, timelines and exports in memory.
type store struct {
	mu        sync.Mutex
	projects  map[uuid.UUID]models.Project
	timelines map[uuid.UUID]timeline.Snapshot
	exports   map[uuid.UUID]models.ExportRecord
}

func newStore() *store {
	return &store{
		projects:  make(map[uuid.UUID]models.Project),
		timelines: make(map[uuid.UUID]timeline.Snapshot),
		exports:   make(map[uuid.UUID]models.ExportRecord),
	}
}

func (s *store) ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Project, 0)
	for _, p := range s.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *store) GetProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return models.Project{}, apperr.NotFound("project", id.String())
	}
	return p, nil
}

func (s *store) CreateProject(ctx context.Context, p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *store) UpdateProject(ctx context.Context, p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return apperr.NotFound("project", id.String())
	}
	delete(s.projects, id)
	delete(s.timelines, id)
	for exportID, rec := range s.exports {
		if rec.ProjectID == id {
			delete(s.exports, exportID)
		}
	}
	return nil
}

func (s *store) LoadTimeline(ctx context.Context, projectID uuid.UUID) ([]timeline.Track, []timeline.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.timelines[projectID]
	return snap.Tracks, snap.Items, nil
}

func (s *store) SaveTimeline(ctx context.Context, snap timeline.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projects[snap.ProjectID]
	if snap.Version <= p.TimelineVersion {
		return nil
	}
	p.TimelineVersion = snap.Version
	s.projects[snap.ProjectID] = p
	s.timelines[snap.ProjectID] = snap
	return nil
}

func (s *store) CountReferences(ctx context.Context, assetID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, snap := range s.timelines {
		for _, it := range snap.Items {
			if it.MediaAssetID != nil && *it.MediaAssetID == assetID {
				n++
			}
		}
	}
	return n, nil
}

func (s *store) CreateExport(ctx context.Context, rec models.ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[rec.ID] = rec
	return nil
}

func (s *store) SetExportJob(ctx context.Context, id uuid.UUID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.exports[id]
	rec.JobID.String, rec.JobID.Valid = jobID, true
	s.exports[id] = rec
	return nil
}

func (s *store) UpdateExportStatus(ctx context.Context, id uuid.UUID, st export.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.exports[id]
	if export.State(rec.Status).Terminal() || st.Progress < rec.Progress {
		return nil
	}
	rec.Status = string(st.State)
	rec.Progress = st.Progress
	if st.ResultURL != "" {
		rec.FileURL.String, rec.FileURL.Valid = st.ResultURL, true
	}
	s.exports[id] = rec
	return nil
}

func (s *store) GetExport(ctx context.Context, id uuid.UUID) (models.ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.exports[id]
	if !ok {
		return models.ExportRecord{}, apperr.NotFound("export", id.String())
	}
	return rec, nil
}

type uploader struct{}

func (uploader) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "https://cdn.example/" + objectPath, nil
}

func (uploader) Remove(ctx context.Context, objectPath string) error { return nil }

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type server struct {
	router  *gin.Engine
	sess    middleware.Session
	editor  *services.EditorService
	exports *services.ExportService
	hub     *realtime.Hub
}

// newServer wires the API over in-memory stores. Requests carry sess unless
// the X-Test-Anonymous header is set.
func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newStore()
	assets := media.NewMemoryRegistry(st)
	bus := realtime.NewLocalBus()
	hub := realtime.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.StartForwarder(ctx, hub.Broadcast))

	editor := services.NewEditorService(st, assets, bus, nil,
		services.WithAutosaveOptions(autosave.WithDebounce(time.Hour)),
		services.WithUploader(uploader{}),
	)
	exports := services.NewExportService(editor, st, assets, export.NewSimulatedTransport("https://proj.supabase.co"), bus, nil, time.Second, 2)
	exports.ConfigurePoller(func(p *export.Poller) { p.After = immediate })
	t.Cleanup(func() {
		exports.Close()
		_ = editor.Close(context.Background())
	})

	s := &server{
		sess:    middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()},
		editor:  editor,
		exports: exports,
		hub:     hub,
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Anonymous") == "" {
			c.Set(middleware.SessionKey, s.sess)
		}
		c.Next()
	})
	handlers.Routes{
		Projects: handlers.NewProjectsHandler(editor),
		Timeline: handlers.NewTimelineHandler(editor),
		Assets:   handlers.NewAssetsHandler(editor),
		Exports:  handlers.NewExportsHandler(exports),
		Events:   handlers.NewEventsHandler(editor, hub, nil),
	}.Register(api)
	s.router = router
	return s
}

func (s *server) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, "/api/v1"+path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *server) project(t *testing.T) models.Project {
	t.Helper()
	w := s.do(http.MethodPost, "/projects", gin.H{"name": "Launch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Project
	decode(t, w, &p)
	return p
}

func (s *server) track(t *testing.T, projectID uuid.UUID, kind string) timeline.Track {
	t.Helper()
	w := s.do(http.MethodPost, "/projects/"+projectID.String()+"/tracks", gin.H{"name": kind, "track_type": kind})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tr timeline.Track
	decode(t, w, &tr)
	return tr
}

func httpRecorder(s *server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}
