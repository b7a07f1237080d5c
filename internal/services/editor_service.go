package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/autosave"
	"keyframes-backend/internal/logger"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/scene"
	"keyframes-backend/internal/timeline"
)

// ProjectStore persists projects and their timelines.
type ProjectStore interface {
	ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (models.Project, error)
	CreateProject(ctx context.Context, p models.Project) error
	UpdateProject(ctx context.Context, p models.Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	LoadTimeline(ctx context.Context, projectID uuid.UUID) ([]timeline.Track, []timeline.Item, error)
	SaveTimeline(ctx context.Context, snap timeline.Snapshot) error
}

// projectSession is an open project: its record, the live timeline and the
// autosaver that writes the timeline back.
type projectSession struct {
	mu      sync.RWMutex
	project models.Project

	assets    media.Resolver
	timeline  *timeline.Model
	autosaver *autosave.Scheduler
	events    *outbox
	unsub     func()

	// lastUsed is guarded by EditorService.mu.
	lastUsed time.Time
}

func (p *projectSession) Project() models.Project {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.project
}

type EditorOption func(*EditorService)

func WithAutosaveOptions(opts ...autosave.Option) EditorOption {
	return func(s *EditorService) { s.autosaveOpts = append(s.autosaveOpts, opts...) }
}

func WithUploader(up media.Uploader) EditorOption {
	return func(s *EditorService) { s.uploader = up }
}

// WithIdleEviction closes sessions that have not been used for idle. Zero
// keeps sessions open until Close.
func WithIdleEviction(idle time.Duration) EditorOption {
	return func(s *EditorService) { s.idle = idle }
}

func WithClock(now func() time.Time) EditorOption {
	return func(s *EditorService) { s.now = now }
}

// EditorService owns the open project sessions. Every call names the caller
// explicitly through a middleware.Session.
type EditorService struct {
	store    ProjectStore
	assets   media.Registry
	uploader media.Uploader
	bus      realtime.Bus
	log      *logger.Logger
	now      func() time.Time

	autosaveOpts []autosave.Option
	idle         time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*projectSession
	closed   bool

	stop    chan struct{}
	stopped chan struct{}
}

func NewEditorService(store ProjectStore, assets media.Registry, bus realtime.Bus, log *logger.Logger, opts ...EditorOption) *EditorService {
	if log == nil {
		log = logger.Nop()
	}
	if bus == nil {
		bus = realtime.NewLocalBus()
	}
	s := &EditorService{
		store:    store,
		assets:   assets,
		bus:      bus,
		log:      log.With("service", "EditorService"),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*projectSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idle > 0 {
		s.stop = make(chan struct{})
		s.stopped = make(chan struct{})
		go s.evictLoop()
	}
	return s
}

// canAccess requires the session's workspace to own the project. A session
// without a workspace sees nothing.
func canAccess(sess middleware.Session, p models.Project) bool {
	return sess.WorkspaceID != uuid.Nil && p.WorkspaceID == sess.WorkspaceID
}

func (s *EditorService) publish(msg realtime.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.log.Warn("failed to publish realtime message", "channel", msg.Channel, "event", msg.Event, "error", err)
	}
}

// open returns the session of projectID, loading it from the store on first
// use. Projects the caller cannot see are reported as not found.
func (s *EditorService) open(ctx context.Context, sess middleware.Session, projectID uuid.UUID) (*projectSession, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("editor service closed")
	}
	ps, ok := s.sessions[projectID]
	if ok {
		ps.lastUsed = s.now()
	}
	s.mu.Unlock()

	if !ok {
		loaded, err := s.load(ctx, projectID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if existing, raced := s.sessions[projectID]; raced {
			s.mu.Unlock()
			loaded.close()
			ps = existing
		} else {
			loaded.lastUsed = s.now()
			s.sessions[projectID] = loaded
			s.mu.Unlock()
			ps = loaded
			s.log.Info("opened project session", "project_id", projectID)
		}
	}

	if !canAccess(sess, ps.Project()) {
		return nil, apperr.NotFound("project", projectID.String())
	}
	return ps, nil
}

func (s *EditorService) load(ctx context.Context, projectID uuid.UUID) (*projectSession, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tracks, items, err := s.store.LoadTimeline(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ps := &projectSession{
		project: project,
		assets:  media.InWorkspace(s.assets, project.WorkspaceID),
		events:  newOutbox(s.publish),
	}
	ps.timeline = timeline.Load(projectID, ps.assets, tracks, items, timeline.WithVersion(project.TimelineVersion))

	log := s.log.With("project_id", projectID)
	opts := append([]autosave.Option{
		autosave.WithOnError(func(err error) {
			log.Error("autosave failed", "error", err)
			s.publish(realtime.AutosaveMessage(projectID, err))
		}),
		autosave.WithOnSaved(func() {
			log.Debug("timeline saved", "version", ps.timeline.Version())
		}),
	}, s.autosaveOpts...)
	ps.autosaver = autosave.New(func(ctx context.Context) error {
		return s.store.SaveTimeline(ctx, ps.timeline.Snapshot())
	}, opts...)

	// Runs under the timeline's writer lock: the bus is reached via the outbox.
	ps.unsub = ps.timeline.Subscribe(func(ev timeline.Event) {
		ps.events.push(realtime.TimelineMessage(ev))
		ps.autosaver.Touch()
	})
	return ps, nil
}

func (p *projectSession) close() {
	if p.unsub != nil {
		p.unsub()
	}
	p.autosaver.Close()
	p.events.close()
}

func (s *EditorService) ListProjects(ctx context.Context, sess middleware.Session) ([]models.Project, error) {
	if sess.WorkspaceID == uuid.Nil {
		return nil, apperr.Validation("workspace_id", "is required")
	}
	return s.store.ListProjects(ctx, sess.WorkspaceID)
}

func (s *EditorService) CreateProject(ctx context.Context, sess middleware.Session, req models.CreateProjectRequest) (models.Project, error) {
	if sess.WorkspaceID == uuid.Nil {
		return models.Project{}, apperr.Validation("workspace_id", "is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.Project{}, apperr.Validation("name", "must not be empty")
	}
	canvas := models.DefaultCanvas()
	if req.Canvas != nil {
		canvas = *req.Canvas
		if canvas.Duration == 0 {
			canvas.Duration = models.DefaultDuration
		}
		if canvas.Background == "" {
			canvas.Background = models.DefaultCanvas().Background
		}
	}
	if err := models.ValidateCanvas(canvas); err != nil {
		return models.Project{}, err
	}

	now := s.now().UTC()
	p := models.Project{
		ID:          uuid.New(),
		WorkspaceID: sess.WorkspaceID,
		OwnerID:     sess.UserID,
		Name:        name,
		Description: req.Description,
		Canvas:      canvas,
		Status:      models.ProjectDraft,
		Settings:    map[string]interface{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Reconcile()
	if err := s.store.CreateProject(ctx, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

func (s *EditorService) GetProject(ctx context.Context, sess middleware.Session, projectID uuid.UUID) (models.Project, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return models.Project{}, err
	}
	return ps.Project(), nil
}

func (s *EditorService) UpdateProject(ctx context.Context, sess middleware.Session, projectID uuid.UUID, req models.UpdateProjectRequest) (models.Project, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return models.Project{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	next := ps.project
	if err := req.Apply(&next); err != nil {
		return models.Project{}, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, next); err != nil {
		return models.Project{}, err
	}
	ps.project = next
	return next, nil
}

// DeleteProject removes a project together with its timeline and exports. The
// open session is saved and closed first so no autosave lands afterwards.
func (s *EditorService) DeleteProject(ctx context.Context, sess middleware.Session, projectID uuid.UUID) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !canAccess(sess, project) {
		return apperr.NotFound("project", projectID.String())
	}

	s.mu.Lock()
	ps, open := s.sessions[projectID]
	if open {
		delete(s.sessions, projectID)
	}
	s.mu.Unlock()
	if open {
		if err := ps.autosaver.Flush(ctx); err != nil {
			s.log.Warn("failed to save timeline before delete", "project_id", projectID, "error", err)
		}
		ps.close()
	}

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.log.Info("deleted project", "project_id", projectID, "user_id", sess.UserID)
	return nil
}

// ProjectSnapshot returns the project record together with a consistent
// snapshot of its timeline.
func (s *EditorService) ProjectSnapshot(ctx context.Context, sess middleware.Session, projectID uuid.UUID) (models.Project, timeline.Snapshot, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return models.Project{}, timeline.Snapshot{}, err
	}
	return ps.Project(), ps.timeline.Snapshot(), nil
}

func (s *EditorService) Timeline(ctx context.Context, sess middleware.Session, projectID uuid.UUID) (timeline.Snapshot, error) {
	_, snap, err := s.ProjectSnapshot(ctx, sess, projectID)
	return snap, err
}

func (s *EditorService) CreateTrack(ctx context.Context, sess middleware.Session, projectID uuid.UUID, name string, kind timeline.TrackKind) (timeline.Track, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return timeline.Track{}, err
	}
	return ps.timeline.CreateTrack(ctx, name, kind)
}

func (s *EditorService) UpdateTrack(ctx context.Context, sess middleware.Session, projectID, trackID uuid.UUID, patch timeline.TrackPatch) (timeline.Track, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return timeline.Track{}, err
	}
	if err := ps.timeline.UpdateTrack(ctx, trackID, patch); err != nil {
		return timeline.Track{}, err
	}
	tr, ok := ps.timeline.Snapshot().Track(trackID)
	if !ok {
		return timeline.Track{}, apperr.NotFound("track", trackID.String())
	}
	return tr, nil
}

func (s *EditorService) MoveTrack(ctx context.Context, sess middleware.Session, projectID, trackID uuid.UUID, index int) ([]timeline.Track, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return nil, err
	}
	if err := ps.timeline.MoveTrack(ctx, trackID, index); err != nil {
		return nil, err
	}
	return ps.timeline.Snapshot().Tracks, nil
}

func (s *EditorService) DeleteTrack(ctx context.Context, sess middleware.Session, projectID, trackID uuid.UUID) error {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return err
	}
	return ps.timeline.DeleteTrack(ctx, trackID)
}

func (s *EditorService) CreateItem(ctx context.Context, sess middleware.Session, projectID, trackID uuid.UUID, in timeline.ItemInput) (timeline.Item, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return timeline.Item{}, err
	}
	return ps.timeline.CreateItem(ctx, trackID, in)
}

func (s *EditorService) UpdateItem(ctx context.Context, sess middleware.Session, projectID, itemID uuid.UUID, patch timeline.ItemPatch) (timeline.Item, error) {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return timeline.Item{}, err
	}
	if err := ps.timeline.UpdateItem(ctx, itemID, patch); err != nil {
		return timeline.Item{}, err
	}
	it, ok := ps.timeline.Snapshot().Item(itemID)
	if !ok {
		return timeline.Item{}, apperr.NotFound("timeline item", itemID.String())
	}
	return it, nil
}

func (s *EditorService) DeleteItem(ctx context.Context, sess middleware.Session, projectID, itemID uuid.UUID) error {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return err
	}
	return ps.timeline.DeleteItem(ctx, itemID)
}

func (s *EditorService) ActiveItems(ctx context.Context, sess middleware.Session, projectID uuid.UUID, t int64) ([]timeline.Item, error) {
	if t < 0 {
		return nil, apperr.Validation("t", "must not be negative")
	}
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return nil, err
	}
	return ps.timeline.ActiveItemsAt(t), nil
}

// Scene composes the frame at t. Only assets of active items are resolved;
// missing assets become warnings on the scene.
func (s *EditorService) Scene(ctx context.Context, sess middleware.Session, projectID uuid.UUID, t int64) (scene.Scene, error) {
	if t < 0 {
		return scene.Scene{}, apperr.Validation("t", "must not be negative")
	}
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return scene.Scene{}, err
	}

	snap := ps.timeline.Snapshot()
	assets := scene.Assets{}
	for _, it := range snap.ActiveAt(t) {
		if it.MediaAssetID == nil {
			continue
		}
		id := *it.MediaAssetID
		if _, done := assets[id]; done {
			continue
		}
		a, err := ps.assets.ResolveAsset(ctx, id)
		if err != nil {
			if apperr.IsNotFound(err) {
				continue
			}
			return scene.Scene{}, apperr.External("media registry", err)
		}
		assets[id] = a
	}
	return scene.Compose(snap, assets, t), nil
}

func (s *EditorService) ListAssets(ctx context.Context, sess middleware.Session, workspaceID uuid.UUID) ([]models.MediaAsset, error) {
	if err := checkWorkspace(sess, workspaceID); err != nil {
		return nil, err
	}
	return s.assets.ListAssets(ctx, workspaceID)
}

func (s *EditorService) UploadAsset(ctx context.Context, sess middleware.Session, f media.File) (models.MediaAsset, error) {
	if err := checkWorkspace(sess, f.WorkspaceID); err != nil {
		return models.MediaAsset{}, err
	}
	if s.uploader == nil {
		return models.MediaAsset{}, apperr.External("storage", errors.New("no uploader configured"))
	}
	f.UploadedBy = sess.UserID
	return media.UploadMedia(ctx, s.assets, s.uploader, f)
}

// checkWorkspace requires workspaceID to be the session's workspace.
func checkWorkspace(sess middleware.Session, workspaceID uuid.UUID) error {
	if workspaceID == uuid.Nil {
		return apperr.Validation("workspace_id", "is required")
	}
	if sess.WorkspaceID == uuid.Nil || sess.WorkspaceID != workspaceID {
		return apperr.NotFound("workspace", workspaceID.String())
	}
	return nil
}

// DeleteAsset removes a media asset. Without force, any reference from an open
// timeline is a conflict; with force, referencing items in open timelines are
// detached first. Open timelines are saved before the registry checks stored
// references, so the store reflects live edits.
func (s *EditorService) DeleteAsset(ctx context.Context, sess middleware.Session, assetID uuid.UUID, force bool) (int, error) {
	asset, err := s.assets.ResolveAsset(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if err := checkWorkspace(sess, asset.WorkspaceID); err != nil {
		return 0, apperr.NotFound("media asset", assetID.String())
	}

	open := s.openSessions()
	if !force {
		for _, ps := range open {
			if n := ps.timeline.References(assetID); n > 0 {
				return 0, apperr.Conflict("media asset %s is referenced by %d timeline item(s)", assetID, n)
			}
		}
	}

	detached := 0
	for _, ps := range open {
		if force {
			n, err := ps.timeline.DetachAsset(ctx, assetID)
			if err != nil {
				return detached, err
			}
			detached += n
		}
		if err := ps.autosaver.Flush(ctx); err != nil {
			return detached, apperr.External("project store", err)
		}
	}

	if err := s.assets.DeleteAsset(ctx, assetID); err != nil {
		return detached, err
	}
	s.log.Info("deleted media asset", "asset_id", assetID, "detached_items", detached)

	if s.uploader != nil && asset.StoragePath != "" {
		if err := s.uploader.Remove(context.WithoutCancel(ctx), asset.StoragePath); err != nil {
			s.log.Error("failed to remove media object", "asset_id", assetID, "path", asset.StoragePath, "error", err)
		}
	}
	return detached, nil
}

func (s *EditorService) openSessions() []*projectSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*projectSession, 0, len(s.sessions))
	for _, ps := range s.sessions {
		out = append(out, ps)
	}
	return out
}

// Flush writes the project's pending timeline edits now.
func (s *EditorService) Flush(ctx context.Context, sess middleware.Session, projectID uuid.UUID) error {
	ps, err := s.open(ctx, sess, projectID)
	if err != nil {
		return err
	}
	return ps.autosaver.Flush(ctx)
}

// EvictIdle saves and closes every session not used for at least idle, and
// returns how many were closed. A session whose save fails stays open.
func (s *EditorService) EvictIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	stale := make(map[uuid.UUID]*projectSession)
	for id, ps := range s.sessions {
		if !ps.lastUsed.After(cutoff) {
			stale[id] = ps
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	evicted := 0
	for id, ps := range stale {
		if err := ps.autosaver.Flush(ctx); err != nil {
			s.log.Error("failed to save idle timeline", "project_id", id, "error", err)
			errs = append(errs, err)
			s.mu.Lock()
			if _, reopened := s.sessions[id]; !reopened && !s.closed {
				s.sessions[id] = ps
				s.mu.Unlock()
				continue
			}
			s.mu.Unlock()
		}
		ps.close()
		evicted++
		s.log.Info("closed idle project session", "project_id", id)
	}
	return evicted, errors.Join(errs...)
}

func (s *EditorService) evictLoop() {
	defer close(s.stopped)
	interval := s.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = s.EvictIdle(ctx, s.idle)
			cancel()
		}
	}
}

// Close saves every open timeline and stops their autosavers.
func (s *EditorService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.stop != nil && !s.closed {
		close(s.stop)
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*projectSession)
	s.mu.Unlock()

	var errs []error
	for id, ps := range sessions {
		if err := ps.autosaver.Flush(ctx); err != nil {
			s.log.Error("failed to save timeline on close", "project_id", id, "error", err)
			errs = append(errs, err)
		}
		ps.close()
	}
	if s.stopped != nil {
		<-s.stopped
	}
	return errors.Join(errs...)
}
