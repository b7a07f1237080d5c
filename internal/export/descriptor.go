// Package export freezes a project into a self-sufficient job descriptor and
// tracks the external render job that consumes it.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/scene"
	"keyframes-backend/internal/timeline"
)

// DescriptorVersion is bumped whenever the JSON layout changes incompatibly.
const DescriptorVersion = 1

// resolveConcurrency bounds parallel asset lookups during Build.
const resolveConcurrency = 8

// AssetResolver is the registry lookup Build needs.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error)
}

// Descriptor is everything a renderer needs to reproduce the project at any
// time without calling back into the editor. Treat it as immutable; accessors
// return copies.
type Descriptor struct {
	Version         int                              `json:"version"`
	ID              uuid.UUID                        `json:"id"`
	ProjectID       uuid.UUID                        `json:"project_id"`
	ProjectName     string                           `json:"project_name"`
	Canvas          models.Canvas                    `json:"canvas"`
	Settings        Settings                         `json:"settings"`
	TimelineVersion uint64                           `json:"timeline_version"`
	Tracks          []timeline.Track                 `json:"tracks"`
	Items           []timeline.Item                  `json:"items"`
	Assets          map[uuid.UUID]models.MediaAsset `json:"assets"`
	Unresolved      []uuid.UUID                      `json:"unresolved_assets,omitempty"`
	CreatedAt       time.Time                        `json:"created_at"`
}

// Build snapshots the project, its timeline and every referenced asset. Assets
// the resolver reports as missing are listed in Unresolved; any other lookup
// failure aborts the build.
func Build(ctx context.Context, project models.Project, snap timeline.Snapshot, resolver AssetResolver, settings Settings) (*Descriptor, error) {
	settings = settings.WithDefaults(project)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	assets, unresolved, err := resolveAssets(ctx, snap, resolver)
	if err != nil {
		return nil, err
	}

	full := timeline.NewSnapshot(snap.ProjectID, snap.Version, snap.Tracks, snap.Items)
	return &Descriptor{
		Version:         DescriptorVersion,
		ID:              uuid.New(),
		ProjectID:       project.ID,
		ProjectName:     project.Name,
		Canvas:          project.Canvas,
		Settings:        settings,
		TimelineVersion: snap.Version,
		Tracks:          full.Tracks,
		Items:           full.Items,
		Assets:          assets,
		Unresolved:      unresolved,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func resolveAssets(ctx context.Context, snap timeline.Snapshot, resolver AssetResolver) (map[uuid.UUID]models.MediaAsset, []uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, it := range snap.Items {
		if it.MediaAssetID == nil {
			continue
		}
		if _, ok := seen[*it.MediaAssetID]; ok {
			continue
		}
		seen[*it.MediaAssetID] = struct{}{}
		ids = append(ids, *it.MediaAssetID)
	}

	assets := make(map[uuid.UUID]models.MediaAsset, len(ids))
	if len(ids) == 0 {
		return assets, nil, nil
	}
	if resolver == nil {
		return nil, nil, apperr.External("media registry", fmt.Errorf("no registry configured"))
	}

	var (
		mu         sync.Mutex
		unresolved []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			asset, err := resolver.ResolveAsset(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case apperr.IsNotFound(err):
				unresolved = append(unresolved, id)
				return nil
			case err != nil:
				return fmt.Errorf("failed to resolve asset %s: %w", id, err)
			}
			assets[id] = asset.Clone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(unresolved, func(i, j int) bool { return unresolved[i].String() < unresolved[j].String() })
	return assets, unresolved, nil
}

// Snapshot rebuilds the timeline snapshot the descriptor was taken from.
func (d *Descriptor) Snapshot() timeline.Snapshot {
	return timeline.NewSnapshot(d.ProjectID, d.TimelineVersion, d.Tracks, d.Items)
}

// Asset looks up a frozen asset; it makes the descriptor a scene.AssetIndex.
func (d *Descriptor) Asset(id uuid.UUID) (models.MediaAsset, bool) {
	a, ok := d.Assets[id]
	if !ok {
		return models.MediaAsset{}, false
	}
	return a.Clone(), true
}

// ComposeAt reconstructs the scene at t from the descriptor alone.
func (d *Descriptor) ComposeAt(t int64) scene.Scene {
	return scene.Compose(d.Snapshot(), d, t)
}

// Frames is the number of frames the renderer will produce.
func (d *Descriptor) Frames() int64 {
	return d.Settings.Duration * int64(d.Settings.FPS) / 1000
}

func (d *Descriptor) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Parse decodes a descriptor produced by Marshal.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if d.Version != DescriptorVersion {
		return nil, apperr.Validation("version", fmt.Sprintf("unsupported descriptor version %d", d.Version))
	}
	if d.Assets == nil {
		d.Assets = make(map[uuid.UUID]models.MediaAsset)
	}
	return &d, nil
}
