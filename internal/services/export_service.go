package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/export"
	"keyframes-backend/internal/logger"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/realtime"
)

// ExportStore persists project_exports rows.
type ExportStore interface {
	CreateExport(ctx context.Context, rec models.ExportRecord) error
	SetExportJob(ctx context.Context, id uuid.UUID, jobID string) error
	UpdateExportStatus(ctx context.Context, id uuid.UUID, s export.JobStatus) error
	GetExport(ctx context.Context, id uuid.UUID) (models.ExportRecord, error)
}

type ExportService struct {
	editor    *EditorService
	store     ExportStore
	assets    export.AssetResolver
	transport export.Transport
	bus       realtime.Bus
	log       *logger.Logger

	pollInterval time.Duration
	maxRetries   int
	// configure adjusts each poller before it runs; tests swap the clock.
	configure func(*export.Poller)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExportService(
	editor *EditorService,
	store ExportStore,
	assets export.AssetResolver,
	transport export.Transport,
	bus realtime.Bus,
	log *logger.Logger,
	pollInterval time.Duration,
	maxRetries int,
) *ExportService {
	if log == nil {
		log = logger.Nop()
	}
	if bus == nil {
		bus = realtime.NewLocalBus()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ExportService{
		editor:       editor,
		store:        store,
		assets:       assets,
		transport:    transport,
		bus:          bus,
		log:          log.With("service", "ExportService"),
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ConfigurePoller registers fn to adjust every poller before it runs.
func (s *ExportService) ConfigurePoller(fn func(*export.Poller)) {
	s.configure = fn
}

// SettingsFromRequest resolves a preset, then overlays explicit fields.
func SettingsFromRequest(req models.CreateExportRequest) (export.Settings, error) {
	var settings export.Settings
	if req.Preset != "" {
		preset, ok := export.Preset(req.Preset, req.Duration)
		if !ok {
			return export.Settings{}, apperr.Validation("preset", fmt.Sprintf("unknown preset %q", req.Preset))
		}
		settings = preset
	}
	if req.Format != "" {
		settings.Format = export.Format(req.Format)
	}
	if req.Quality != "" {
		settings.Quality = export.Quality(req.Quality)
	}
	if req.Width != 0 {
		settings.Resolution.Width = req.Width
	}
	if req.Height != 0 {
		settings.Resolution.Height = req.Height
	}
	if req.FPS != 0 {
		settings.FPS = req.FPS
	}
	if req.Duration != 0 {
		settings.Duration = req.Duration
	}
	return settings, nil
}

// Descriptor builds the export descriptor of a project without submitting it.
func (s *ExportService) Descriptor(ctx context.Context, sess middleware.Session, projectID uuid.UUID, settings export.Settings) (*export.Descriptor, error) {
	project, snap, err := s.editor.ProjectSnapshot(ctx, sess, projectID)
	if err != nil {
		return nil, err
	}
	return export.Build(ctx, project, snap, media.InWorkspace(s.assets, project.WorkspaceID), settings)
}

// StartExport records a pending export and hands it to the renderer. The job
// is followed in the background; progress lands in the export row and on the
// project's realtime channel.
func (s *ExportService) StartExport(ctx context.Context, sess middleware.Session, projectID uuid.UUID, settings export.Settings) (models.ExportRecord, *export.Descriptor, error) {
	d, err := s.Descriptor(ctx, sess, projectID, settings)
	if err != nil {
		return models.ExportRecord{}, nil, err
	}

	settingsJSON, err := json.Marshal(d.Settings)
	if err != nil {
		return models.ExportRecord{}, nil, fmt.Errorf("failed to encode export settings: %w", err)
	}
	rec := models.ExportRecord{
		ID:        d.ID,
		ProjectID: projectID,
		CreatedBy: sess.UserID,
		Settings:  settingsJSON,
		Status:    string(export.StatePending),
	}
	if err := s.store.CreateExport(ctx, rec); err != nil {
		return models.ExportRecord{}, nil, err
	}

	if len(d.Unresolved) > 0 {
		s.log.Warn("exporting with unresolved media assets", "export_id", d.ID, "unresolved", len(d.Unresolved))
	}

	s.wg.Add(1)
	go s.follow(d)

	return rec, d, nil
}

func (s *ExportService) follow(d *export.Descriptor) {
	defer s.wg.Done()

	log := s.log.With("export_id", d.ID, "project_id", d.ProjectID)
	poller := export.NewPoller(s.transport, s.pollInterval, s.maxRetries)
	poller.OnSubmit = func(jobID string) {
		if err := s.store.SetExportJob(s.ctx, d.ID, jobID); err != nil {
			log.Warn("failed to record export job id", "job_id", jobID, "error", err)
		}
		log.Info("export submitted", "job_id", jobID)
	}
	poller.OnUpdate = func(st export.JobStatus) {
		s.record(log, d, st)
	}
	if s.configure != nil {
		s.configure(poller)
	}

	_, final, err := poller.Run(s.ctx, d, export.NewTracker())
	if err == nil {
		log.Info("export finished", "status", final.State, "progress", final.Progress)
		return
	}
	if s.ctx.Err() != nil {
		log.Warn("export tracking stopped", "error", err)
		return
	}

	log.Error("export failed", "error", err)
	failed := export.JobStatus{State: export.StateFailed, Progress: final.Progress, Error: err.Error()}
	s.record(log, d, failed)
}

func (s *ExportService) record(log *logger.Logger, d *export.Descriptor, st export.JobStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.UpdateExportStatus(ctx, d.ID, st); err != nil {
		log.Error("failed to update export status", "status", st.State, "error", err)
	}

	var msg realtime.Message
	switch st.State {
	case export.StateCompleted:
		msg = realtime.ExportCompletedMessage(d.ProjectID, d.ID, st.ResultURL)
	case export.StateFailed:
		msg = realtime.ExportFailedMessage(d.ProjectID, d.ID, st.Error)
	default:
		msg = realtime.ExportProgressMessage(d.ProjectID, d.ID, st.Progress)
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		log.Warn("failed to publish export status", "error", err)
	}
}

// GetExport returns an export record the caller can see.
func (s *ExportService) GetExport(ctx context.Context, sess middleware.Session, exportID uuid.UUID) (models.ExportRecord, error) {
	rec, err := s.store.GetExport(ctx, exportID)
	if err != nil {
		return models.ExportRecord{}, err
	}
	if _, err := s.editor.GetProject(ctx, sess, rec.ProjectID); err != nil {
		if apperr.IsNotFound(err) {
			return models.ExportRecord{}, apperr.NotFound("export", exportID.String())
		}
		return models.ExportRecord{}, err
	}
	return rec, nil
}

// EDL renders the project's current timeline as a CMX3600 edit decision list.
func (s *ExportService) EDL(ctx context.Context, sess middleware.Session, projectID uuid.UUID) (string, error) {
	d, err := s.Descriptor(ctx, sess, projectID, export.Settings{})
	if err != nil {
		return "", err
	}
	return d.EDL(), nil
}

// Close stops following running exports and waits for the followers to exit.
func (s *ExportService) Close() {
	s.cancel()
	s.wg.Wait()
}
