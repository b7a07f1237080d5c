// Package media is the media asset registry boundary: the metadata store the
// timeline resolves asset references against. Uploading bytes is delegated to
// an Uploader.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
)

type Registry interface {
	ListAssets(ctx context.Context, workspaceID uuid.UUID) ([]models.MediaAsset, error)
	ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error)
	RegisterAsset(ctx context.Context, meta Metadata) (models.MediaAsset, error)
	CompleteUpload(ctx context.Context, id uuid.UUID, url string, size int64) (models.MediaAsset, error)
	DeleteAsset(ctx context.Context, id uuid.UUID) error
}

// Resolver looks up a single asset.
type Resolver interface {
	ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error)
}

type workspaceResolver struct {
	resolver    Resolver
	workspaceID uuid.UUID
}

// InWorkspace restricts r to the assets of workspaceID. Assets of any other
// workspace resolve as not found.
func InWorkspace(r Resolver, workspaceID uuid.UUID) Resolver {
	return workspaceResolver{resolver: r, workspaceID: workspaceID}
}

func (w workspaceResolver) ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error) {
	a, err := w.resolver.ResolveAsset(ctx, id)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if a.WorkspaceID != w.workspaceID {
		return models.MediaAsset{}, apperr.NotFound("media asset", id.String())
	}
	return a, nil
}

// ReferenceCounter reports how many timeline items point at an asset. The
// registry refuses to delete assets with a non-zero count.
type ReferenceCounter interface {
	CountReferences(ctx context.Context, assetID uuid.UUID) (int, error)
}

// Metadata describes an asset at registration, before its bytes are stored.
type Metadata struct {
	Name         string             `json:"name"`
	OriginalName string             `json:"original_name"`
	Kind         models.MediaKind   `json:"media_type"`
	MimeType     string             `json:"mime_type"`
	StoragePath  string             `json:"file_path"`
	Duration     *int64             `json:"duration,omitempty"`
	Dimensions   *models.Dimensions `json:"dimensions,omitempty"`
	WorkspaceID  uuid.UUID          `json:"workspace_id"`
	ProjectID    *uuid.UUID         `json:"project_id,omitempty"`
	UploadedBy   uuid.UUID          `json:"uploaded_by"`
}

func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return apperr.Validation("name", "must not be empty")
	}
	if strings.TrimSpace(m.OriginalName) == "" {
		return apperr.Validation("original_name", "must not be empty")
	}
	if !m.Kind.Valid() {
		return apperr.Validation("media_type", fmt.Sprintf("unknown media type %q", m.Kind))
	}
	if m.WorkspaceID == uuid.Nil {
		return apperr.Validation("workspace_id", "is required")
	}
	if m.Duration != nil && *m.Duration < 0 {
		return apperr.Validation("duration", "must not be negative")
	}
	if m.Dimensions != nil && (m.Dimensions.Width < 0 || m.Dimensions.Height < 0) {
		return apperr.Validation("dimensions", "must not be negative")
	}
	return nil
}

// KindFromMime guesses the media kind of an upload from its content type and
// file name. Unknown types return "".
func KindFromMime(mimeType, filename string) models.MediaKind {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mt, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(mt, "audio/"):
		return models.MediaAudio
	case strings.HasPrefix(mt, "font/"):
		return models.MediaFont
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		return models.MediaImage
	case ".mp4", ".mov", ".webm", ".mkv":
		return models.MediaVideo
	case ".mp3", ".wav", ".ogg", ".m4a", ".aac":
		return models.MediaAudio
	case ".ttf", ".otf", ".woff", ".woff2":
		return models.MediaFont
	}
	return ""
}

// MemoryRegistry keeps assets in memory. It backs the CLI and tests.
type MemoryRegistry struct {
	mu     sync.RWMutex
	assets map[uuid.UUID]models.MediaAsset
	refs   ReferenceCounter
	now    func() time.Time
}

func NewMemoryRegistry(refs ReferenceCounter) *MemoryRegistry {
	return &MemoryRegistry{
		assets: make(map[uuid.UUID]models.MediaAsset),
		refs:   refs,
		now:    time.Now,
	}
}

// SetReferenceCounter replaces the counter consulted by DeleteAsset.
func (r *MemoryRegistry) SetReferenceCounter(refs ReferenceCounter) {
	r.mu.Lock()
	r.refs = refs
	r.mu.Unlock()
}

// Put stores an asset as-is. Used to seed the registry from a descriptor.
func (r *MemoryRegistry) Put(asset models.MediaAsset) {
	r.mu.Lock()
	r.assets[asset.ID] = asset.Clone()
	r.mu.Unlock()
}

func (r *MemoryRegistry) ListAssets(ctx context.Context, workspaceID uuid.UUID) ([]models.MediaAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.MediaAsset, 0)
	for _, a := range r.assets {
		if a.WorkspaceID == workspaceID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *MemoryRegistry) ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error) {
	if err := ctx.Err(); err != nil {
		return models.MediaAsset{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return models.MediaAsset{}, apperr.NotFound("media asset", id.String())
	}
	return a.Clone(), nil
}

func (r *MemoryRegistry) RegisterAsset(ctx context.Context, meta Metadata) (models.MediaAsset, error) {
	if err := meta.Validate(); err != nil {
		return models.MediaAsset{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.MediaAsset{}, err
	}

	asset := NewAsset(meta, r.now())
	r.mu.Lock()
	r.assets[asset.ID] = asset
	r.mu.Unlock()
	return asset.Clone(), nil
}

func (r *MemoryRegistry) CompleteUpload(ctx context.Context, id uuid.UUID, url string, size int64) (models.MediaAsset, error) {
	if err := ctx.Err(); err != nil {
		return models.MediaAsset{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return models.MediaAsset{}, apperr.NotFound("media asset", id.String())
	}
	if err := applyUpload(&a, url, size); err != nil {
		return models.MediaAsset{}, err
	}
	r.assets[id] = a
	return a.Clone(), nil
}

func (r *MemoryRegistry) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.RLock()
	_, ok := r.assets[id]
	refs := r.refs
	r.mu.RUnlock()
	if !ok {
		return apperr.NotFound("media asset", id.String())
	}

	if err := CheckUnreferenced(ctx, refs, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.assets, id)
	r.mu.Unlock()
	return nil
}

// NewAsset builds the record for freshly registered metadata.
func NewAsset(meta Metadata, now time.Time) models.MediaAsset {
	return models.MediaAsset{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(meta.Name),
		OriginalName: meta.OriginalName,
		Kind:         meta.Kind,
		MimeType:     meta.MimeType,
		StoragePath:  meta.StoragePath,
		Duration:     meta.Duration,
		Dimensions:   meta.Dimensions,
		WorkspaceID:  meta.WorkspaceID,
		ProjectID:    meta.ProjectID,
		UploadedBy:   meta.UploadedBy,
		CreatedAt:    now.UTC(),
	}.Clone()
}

// applyUpload sets URL and size, which may happen only once per asset.
func applyUpload(a *models.MediaAsset, url string, size int64) error {
	if a.Uploaded() {
		return apperr.Conflict("media asset %s upload already completed", a.ID)
	}
	if strings.TrimSpace(url) == "" {
		return apperr.Validation("file_url", "must not be empty")
	}
	if size < 0 {
		return apperr.Validation("file_size", "must not be negative")
	}
	a.URL = &url
	a.FileSize = size
	return nil
}

// CheckUnreferenced returns a ConflictError when any item still references id.
// A nil counter allows the delete.
func CheckUnreferenced(ctx context.Context, refs ReferenceCounter, id uuid.UUID) error {
	if refs == nil {
		return nil
	}
	n, err := refs.CountReferences(ctx, id)
	if err != nil {
		return apperr.External("reference count", err)
	}
	if n > 0 {
		return apperr.Conflict("media asset %s is referenced by %d timeline item(s)", id, n)
	}
	return nil
}
