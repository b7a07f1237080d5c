package models

import "time"

type HealthResponse struct {
	Status string `json:"status"`
}

type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

type AssetListResponse struct {
	Assets []MediaAsset `json:"assets"`
}

type DeleteAssetResponse struct {
	AssetID  string `json:"asset_id"`
	Detached int    `json:"detached_items"`
}

type ExportResponse struct {
	ExportID         string     `json:"export_id"`
	ProjectID        string     `json:"project_id"`
	JobID            string     `json:"job_id,omitempty"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	FileURL          string     `json:"file_url,omitempty"`
	FileSize         int64      `json:"file_size,omitempty"`
	Error            string     `json:"error_message,omitempty"`
	UnresolvedAssets []string   `json:"unresolved_assets,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewExportResponse flattens the nullable columns of an export record.
func NewExportResponse(rec ExportRecord) ExportResponse {
	resp := ExportResponse{
		ExportID:  rec.ID.String(),
		ProjectID: rec.ProjectID.String(),
		JobID:     rec.JobID.String,
		Status:    rec.Status,
		Progress:  rec.Progress,
		FileURL:   rec.FileURL.String,
		FileSize:  rec.FileSize.Int64,
		Error:     rec.ErrorMessage.String,
	}
	if rec.StartedAt.Valid {
		t := rec.StartedAt.Time
		resp.StartedAt = &t
	}
	if rec.CompletedAt.Valid {
		t := rec.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}
