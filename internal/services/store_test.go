package services_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/export"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/timeline"
)

// memStore is an in-memory ProjectStore, ExportStore and ReferenceCounter.
type memStore struct {
	mu        sync.Mutex
	projects  map[uuid.UUID]models.Project
	timelines map[uuid.UUID]timeline.Snapshot
	exports   map[uuid.UUID]models.ExportRecord
	saves     int
}

func newMemStore() *memStore {
	return &memStore{
		projects:  make(map[uuid.UUID]models.Project),
		timelines: make(map[uuid.UUID]timeline.Snapshot),
		exports:   make(map[uuid.UUID]models.ExportRecord),
	}
}

func (m *memStore) ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Project, 0)
	for _, p := range m.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return models.Project{}, apperr.NotFound("project", id.String())
	}
	return p, nil
}

func (m *memStore) CreateProject(ctx context.Context, p models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) UpdateProject(ctx context.Context, p models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return apperr.NotFound("project", p.ID.String())
	}
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return apperr.NotFound("project", id.String())
	}
	delete(m.projects, id)
	delete(m.timelines, id)
	return nil
}

func (m *memStore) LoadTimeline(ctx context.Context, projectID uuid.UUID) ([]timeline.Track, []timeline.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.timelines[projectID]
	return snap.Tracks, snap.Items, nil
}

func (m *memStore) SaveTimeline(ctx context.Context, snap timeline.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.projects[snap.ProjectID]
	if snap.Version <= p.TimelineVersion {
		return nil
	}
	p.TimelineVersion = snap.Version
	m.projects[snap.ProjectID] = p
	m.timelines[snap.ProjectID] = snap
	m.saves++
	return nil
}

func (m *memStore) savedTimeline(projectID uuid.UUID) timeline.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timelines[projectID]
}

func (m *memStore) CountReferences(ctx context.Context, assetID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, snap := range m.timelines {
		for _, it := range snap.Items {
			if it.MediaAssetID != nil && *it.MediaAssetID == assetID {
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) CreateExport(ctx context.Context, rec models.ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[rec.ID] = rec
	return nil
}

func (m *memStore) SetExportJob(ctx context.Context, id uuid.UUID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.exports[id]
	rec.JobID.String, rec.JobID.Valid = jobID, true
	m.exports[id] = rec
	return nil
}

func (m *memStore) UpdateExportStatus(ctx context.Context, id uuid.UUID, s export.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.exports[id]
	if export.State(rec.Status).Terminal() || s.Progress < rec.Progress {
		return nil
	}
	rec.Status = string(s.State)
	rec.Progress = s.Progress
	if s.ResultURL != "" {
		rec.FileURL.String, rec.FileURL.Valid = s.ResultURL, true
	}
	if s.Error != "" {
		rec.ErrorMessage.String, rec.ErrorMessage.Valid = s.Error, true
	}
	m.exports[id] = rec
	return nil
}

func (m *memStore) GetExport(ctx context.Context, id uuid.UUID) (models.ExportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.exports[id]
	if !ok {
		return models.ExportRecord{}, apperr.NotFound("export", id.String())
	}
	return rec, nil
}

// recorder collects messages published on a bus.
type recorder struct {
	mu   sync.Mutex
	msgs []realtime.Message
}

func (r *recorder) add(m realtime.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}
