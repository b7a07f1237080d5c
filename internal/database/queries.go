package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/timeline"
)

// ProjectRow mirrors the projects table. canvas_data and settings are JSONB.
type ProjectRow struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	OwnerID          uuid.UUID
	Name             string
	Description      string
	CanvasData       []byte
	TimelineDuration int64
	Status           string
	Settings         []byte
	ThumbnailURL     string
	TimelineVersion  int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ToProject decodes the JSON columns and reconciles the two duration fields.
func (r ProjectRow) ToProject() (models.Project, error) {
	p := models.Project{
		ID:               r.ID,
		WorkspaceID:      r.WorkspaceID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		Description:      r.Description,
		Canvas:           models.DefaultCanvas(),
		TimelineDuration: r.TimelineDuration,
		Status:           models.ProjectStatus(r.Status),
		ThumbnailURL:     r.ThumbnailURL,
		TimelineVersion:  uint64(r.TimelineVersion),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	p.Canvas.Duration = 0
	if len(r.CanvasData) > 0 {
		if err := json.Unmarshal(r.CanvasData, &p.Canvas); err != nil {
			return models.Project{}, fmt.Errorf("failed to decode canvas data: %w", err)
		}
	}
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &p.Settings); err != nil {
			return models.Project{}, fmt.Errorf("failed to decode project settings: %w", err)
		}
	}
	p.Reconcile()
	return p, nil
}

type TrackRow struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	TrackType string
	Position  int
	IsVisible bool
	IsLocked  bool
	Height    int
	CreatedAt time.Time
}

func (r TrackRow) ToTrack() timeline.Track {
	return timeline.Track{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Kind:      timeline.TrackKind(r.TrackType),
		Position:  r.Position,
		Visible:   r.IsVisible,
		Locked:    r.IsLocked,
		Height:    r.Height,
		CreatedAt: r.CreatedAt,
	}
}

type ItemRow struct {
	ID           uuid.UUID
	TrackID      uuid.UUID
	ProjectID    uuid.UUID
	MediaAssetID uuid.NullUUID
	StartTime    int64
	Duration     int64
	EndTime      int64
	Properties   []byte
	LayerOrder   int
	CreatedAt    time.Time
}

func (r ItemRow) ToItem() (timeline.Item, error) {
	it := timeline.Item{
		ID:         r.ID,
		TrackID:    r.TrackID,
		ProjectID:  r.ProjectID,
		StartTime:  r.StartTime,
		Duration:   r.Duration,
		EndTime:    r.EndTime,
		LayerOrder: r.LayerOrder,
		CreatedAt:  r.CreatedAt,
	}
	if r.MediaAssetID.Valid {
		id := r.MediaAssetID.UUID
		it.MediaAssetID = &id
	}
	if len(r.Properties) > 0 {
		if err := json.Unmarshal(r.Properties, &it.Properties); err != nil {
			return timeline.Item{}, fmt.Errorf("failed to decode item properties: %w", err)
		}
	}
	return it, nil
}

type AssetRow struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	ProjectID    uuid.NullUUID
	UploadedBy   uuid.UUID
	Name         string
	OriginalName string
	MediaType    string
	MimeType     string
	FilePath     string
	FileURL      sql.NullString
	FileSize     int64
	Duration     sql.NullInt64
	Width        sql.NullInt32
	Height       sql.NullInt32
	CreatedAt    time.Time
}

func (r AssetRow) ToAsset() models.MediaAsset {
	a := models.MediaAsset{
		ID:           r.ID,
		Name:         r.Name,
		OriginalName: r.OriginalName,
		Kind:         models.MediaKind(r.MediaType),
		MimeType:     r.MimeType,
		StoragePath:  r.FilePath,
		FileSize:     r.FileSize,
		WorkspaceID:  r.WorkspaceID,
		UploadedBy:   r.UploadedBy,
		CreatedAt:    r.CreatedAt,
	}
	if r.FileURL.Valid {
		u := r.FileURL.String
		a.URL = &u
	}
	if r.Duration.Valid {
		d := r.Duration.Int64
		a.Duration = &d
	}
	if r.Width.Valid && r.Height.Valid {
		a.Dimensions = &models.Dimensions{Width: int(r.Width.Int32), Height: int(r.Height.Int32)}
	}
	if r.ProjectID.Valid {
		id := r.ProjectID.UUID
		a.ProjectID = &id
	}
	return a
}

// ScanArgs returns destinations in the column order of the asset queries.
func (r *AssetRow) ScanArgs() []interface{} {
	return []interface{}{
		&r.ID, &r.WorkspaceID, &r.ProjectID, &r.UploadedBy, &r.Name, &r.OriginalName,
		&r.MediaType, &r.MimeType, &r.FilePath, &r.FileURL, &r.FileSize,
		&r.Duration, &r.Width, &r.Height, &r.CreatedAt,
	}
}

const AssetColumns = `id, workspace_id, project_id, uploaded_by, name, original_name,
	media_type, mime_type, file_path, file_url, file_size, duration, width, height, created_at`

func (r *ProjectRow) ScanArgs() []interface{} {
	return []interface{}{
		&r.ID, &r.WorkspaceID, &r.OwnerID, &r.Name, &r.Description, &r.CanvasData,
		&r.TimelineDuration, &r.Status, &r.Settings, &r.ThumbnailURL, &r.TimelineVersion,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

const ProjectColumns = `id, workspace_id, owner_id, name, description, canvas_data,
	timeline_duration, status, settings, thumbnail_url, timeline_version, created_at, updated_at`
