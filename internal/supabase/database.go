package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/database"
	"keyframes-backend/internal/export"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/timeline"
)

// DatabaseClient is the Postgres store for projects, timelines, media assets
// and export jobs.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func notFound(err error, kind string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id.String())
	}
	return err
}

func (d *DatabaseClient) ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+database.ProjectColumns+`
		FROM projects
		WHERE workspace_id = $1
		ORDER BY updated_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]models.Project, 0)
	for rows.Next() {
		var row database.ProjectRow
		if err := rows.Scan(row.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p, err := row.ToProject()
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (d *DatabaseClient) GetProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	var row database.ProjectRow
	err := d.db.QueryRowContext(ctx, `
		SELECT `+database.ProjectColumns+`
		FROM projects
		WHERE id = $1
	`, id).Scan(row.ScanArgs()...)
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to get project: %w", notFound(err, "project", id))
	}
	return row.ToProject()
}

func projectJSON(p models.Project) ([]byte, []byte, error) {
	canvas, err := json.Marshal(p.Canvas)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode canvas data: %w", err)
	}
	settings := p.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode project settings: %w", err)
	}
	return canvas, settingsJSON, nil
}

func (d *DatabaseClient) CreateProject(ctx context.Context, p models.Project) error {
	canvas, settings, err := projectJSON(p)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO projects (id, workspace_id, owner_id, name, description, canvas_data,
			timeline_duration, status, settings, thumbnail_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.WorkspaceID, p.OwnerID, p.Name, p.Description, canvas,
		p.TimelineDuration, string(p.Status), settings, p.ThumbnailURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (d *DatabaseClient) UpdateProject(ctx context.Context, p models.Project) error {
	canvas, settings, err := projectJSON(p)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET name = $2, description = $3, canvas_data = $4, timeline_duration = $5,
			status = $6, settings = $7, thumbnail_url = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Name, p.Description, canvas, p.TimelineDuration,
		string(p.Status), settings, p.ThumbnailURL, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("project", p.ID.String())
	}
	return nil
}

// DeleteProject removes a project. Its tracks, items and exports cascade.
func (d *DatabaseClient) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("project", id.String())
	}
	return nil
}

func (d *DatabaseClient) LoadTimeline(ctx context.Context, projectID uuid.UUID) ([]timeline.Track, []timeline.Item, error) {
	trackRows, err := d.db.QueryContext(ctx, `
		SELECT id, project_id, name, track_type, position, is_visible, is_locked, height, created_at
		FROM timeline_tracks
		WHERE project_id = $1
		ORDER BY position ASC
	`, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tracks: %w", err)
	}
	defer trackRows.Close()

	var tracks []timeline.Track
	for trackRows.Next() {
		var r database.TrackRow
		if err := trackRows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.TrackType, &r.Position,
			&r.IsVisible, &r.IsLocked, &r.Height, &r.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, r.ToTrack())
	}
	if err := trackRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to load tracks: %w", err)
	}

	itemRows, err := d.db.QueryContext(ctx, `
		SELECT id, track_id, project_id, media_asset_id, start_time, duration, end_time,
			properties, layer_order, created_at
		FROM timeline_items
		WHERE project_id = $1
		ORDER BY start_time ASC
	`, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer itemRows.Close()

	var items []timeline.Item
	for itemRows.Next() {
		var r database.ItemRow
		if err := itemRows.Scan(&r.ID, &r.TrackID, &r.ProjectID, &r.MediaAssetID, &r.StartTime,
			&r.Duration, &r.EndTime, &r.Properties, &r.LayerOrder, &r.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it, err := r.ToItem()
		if err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to load items: %w", err)
	}

	return tracks, items, nil
}

// SaveTimeline replaces the stored tracks and items of a project with snap.
// A snapshot older than the stored timeline_version is ignored.
func (d *DatabaseClient) SaveTimeline(ctx context.Context, snap timeline.Snapshot) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET timeline_version = $2, updated_at = NOW()
		WHERE id = $1 AND timeline_version < $2
	`, snap.ProjectID, int64(snap.Version))
	if err != nil {
		return fmt.Errorf("failed to save timeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_items WHERE project_id = $1`, snap.ProjectID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_tracks WHERE project_id = $1`, snap.ProjectID); err != nil {
		return fmt.Errorf("failed to clear tracks: %w", err)
	}

	for _, t := range snap.Tracks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_tracks (id, project_id, name, track_type, position, is_visible, is_locked, height, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, snap.ProjectID, t.Name, string(t.Kind), t.Position, t.Visible, t.Locked, t.Height, t.CreatedAt); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
	}

	for _, it := range snap.Items {
		props := it.Properties
		if props == nil {
			props = timeline.Properties{}
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("failed to encode item properties: %w", err)
		}
		assetID := uuid.NullUUID{}
		if it.MediaAssetID != nil {
			assetID = uuid.NullUUID{UUID: *it.MediaAssetID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_items (id, track_id, project_id, media_asset_id, start_time, duration,
				end_time, properties, layer_order, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, it.ID, it.TrackID, snap.ProjectID, assetID, it.StartTime, it.Duration,
			it.EndTime, propsJSON, it.LayerOrder, it.CreatedAt); err != nil {
			return fmt.Errorf("failed to save item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit timeline: %w", err)
	}
	return nil
}

// CountReferences counts stored timeline items that use assetID.
func (d *DatabaseClient) CountReferences(ctx context.Context, assetID uuid.UUID) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_items WHERE media_asset_id = $1`, assetID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count asset references: %w", err)
	}
	return n, nil
}

func (d *DatabaseClient) ListAssets(ctx context.Context, workspaceID uuid.UUID) ([]models.MediaAsset, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+database.AssetColumns+`
		FROM media_assets
		WHERE workspace_id = $1
		ORDER BY created_at DESC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	defer rows.Close()

	assets := make([]models.MediaAsset, 0)
	for rows.Next() {
		var row database.AssetRow
		if err := rows.Scan(row.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan media asset: %w", err)
		}
		assets = append(assets, row.ToAsset())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	return assets, nil
}

func (d *DatabaseClient) ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error) {
	var row database.AssetRow
	err := d.db.QueryRowContext(ctx, `
		SELECT `+database.AssetColumns+`
		FROM media_assets
		WHERE id = $1
	`, id).Scan(row.ScanArgs()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MediaAsset{}, apperr.NotFound("media asset", id.String())
		}
		return models.MediaAsset{}, fmt.Errorf("failed to get media asset: %w", err)
	}
	return row.ToAsset(), nil
}

func (d *DatabaseClient) RegisterAsset(ctx context.Context, meta media.Metadata) (models.MediaAsset, error) {
	if err := meta.Validate(); err != nil {
		return models.MediaAsset{}, err
	}
	a := media.NewAsset(meta, time.Now())

	var width, height sql.NullInt32
	if a.Dimensions != nil {
		width = sql.NullInt32{Int32: int32(a.Dimensions.Width), Valid: true}
		height = sql.NullInt32{Int32: int32(a.Dimensions.Height), Valid: true}
	}
	var duration sql.NullInt64
	if a.Duration != nil {
		duration = sql.NullInt64{Int64: *a.Duration, Valid: true}
	}
	projectID := uuid.NullUUID{}
	if a.ProjectID != nil {
		projectID = uuid.NullUUID{UUID: *a.ProjectID, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO media_assets (id, workspace_id, project_id, uploaded_by, name, original_name,
			media_type, mime_type, file_path, file_size, duration, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13)
	`, a.ID, a.WorkspaceID, projectID, a.UploadedBy, a.Name, a.OriginalName,
		string(a.Kind), a.MimeType, a.StoragePath, duration, width, height, a.CreatedAt)
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("failed to register media asset: %w", err)
	}
	return a, nil
}

// CompleteUpload sets the URL and size of an asset. The file_url IS NULL
// guard makes a second completion a conflict.
func (d *DatabaseClient) CompleteUpload(ctx context.Context, id uuid.UUID, url string, size int64) (models.MediaAsset, error) {
	if url == "" {
		return models.MediaAsset{}, apperr.Validation("file_url", "must not be empty")
	}
	if size < 0 {
		return models.MediaAsset{}, apperr.Validation("file_size", "must not be negative")
	}

	var row database.AssetRow
	err := d.db.QueryRowContext(ctx, `
		UPDATE media_assets
		SET file_url = $2, file_size = $3
		WHERE id = $1 AND file_url IS NULL
		RETURNING `+database.AssetColumns,
		id, url, size,
	).Scan(row.ScanArgs()...)
	if err == nil {
		return row.ToAsset(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.MediaAsset{}, fmt.Errorf("failed to complete upload: %w", err)
	}

	if _, err := d.ResolveAsset(ctx, id); err != nil {
		return models.MediaAsset{}, err
	}
	return models.MediaAsset{}, apperr.Conflict("media asset %s upload already completed", id)
}

func (d *DatabaseClient) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	if _, err := d.ResolveAsset(ctx, id); err != nil {
		return err
	}
	if err := media.CheckUnreferenced(ctx, d, id); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}
	return nil
}

func (d *DatabaseClient) CreateExport(ctx context.Context, rec models.ExportRecord) error {
	settings := rec.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO project_exports (id, project_id, created_by, settings, status, progress)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.ProjectID, rec.CreatedBy, []byte(settings), rec.Status, rec.Progress)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	return nil
}

func (d *DatabaseClient) SetExportJob(ctx context.Context, id uuid.UUID, jobID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE project_exports
		SET job_id = $2, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`, id, jobID)
	if err != nil {
		return fmt.Errorf("failed to set export job: %w", err)
	}
	return nil
}

// UpdateExportStatus writes s unless the row is already terminal or further
// along; the guard keeps concurrent writers from moving a job backwards.
func (d *DatabaseClient) UpdateExportStatus(ctx context.Context, id uuid.UUID, s export.JobStatus) error {
	var fileURL sql.NullString
	if s.ResultURL != "" {
		fileURL = sql.NullString{String: s.ResultURL, Valid: true}
	}
	var fileSize sql.NullInt64
	if s.FileSize > 0 {
		fileSize = sql.NullInt64{Int64: s.FileSize, Valid: true}
	}
	var errMsg sql.NullString
	if s.Error != "" {
		errMsg = sql.NullString{String: s.Error, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
		UPDATE project_exports
		SET status = $2, progress = $3,
			file_url = COALESCE($4, file_url),
			file_size = COALESCE($5, file_size),
			error_message = COALESCE($6, error_message),
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1
			AND status NOT IN ('completed', 'failed')
			AND progress <= $3
	`, id, string(s.State), s.Progress, fileURL, fileSize, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update export status: %w", err)
	}
	return nil
}

func (d *DatabaseClient) GetExport(ctx context.Context, id uuid.UUID) (models.ExportRecord, error) {
	var rec models.ExportRecord
	var settings []byte
	err := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, created_by, job_id, settings, status, progress,
			file_url, file_size, error_message, started_at, completed_at
		FROM project_exports
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.ProjectID, &rec.CreatedBy, &rec.JobID, &settings, &rec.Status,
		&rec.Progress, &rec.FileURL, &rec.FileSize, &rec.ErrorMessage, &rec.StartedAt, &rec.CompletedAt)
	if err != nil {
		return models.ExportRecord{}, fmt.Errorf("failed to get export: %w", notFound(err, "export", id))
	}
	rec.Settings = settings
	return rec, nil
}

func (d *DatabaseClient) IsWorkspaceMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	var member bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)
	`, workspaceID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check workspace membership: %w", err)
	}
	return member, nil
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
