package supabase

import (
	"context"
	"fmt"
	"time"

	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/export"
)

type exportRow struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	FileURL      *string    `json:"file_url"`
	FileSize     *int64     `json:"file_size"`
	ErrorMessage *string    `json:"error_message"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

func (r exportRow) status() export.JobStatus {
	s := export.JobStatus{
		State:    export.State(r.Status),
		Progress: r.Progress,
	}
	if r.FileURL != nil {
		s.ResultURL = *r.FileURL
	}
	if r.FileSize != nil {
		s.FileSize = *r.FileSize
	}
	if r.ErrorMessage != nil {
		s.Error = *r.ErrorMessage
	}
	if r.UpdatedAt != nil {
		s.UpdatedAt = *r.UpdatedAt
	}
	return s
}

// ReadJob reads the project_exports row the export function keeps up to date.
// It satisfies export.StatusReader.
func (c *Client) ReadJob(ctx context.Context, jobID string) (export.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return export.JobStatus{}, err
	}

	var rows []exportRow
	_, err := c.Supabase.From("project_exports").
		Select("id,status,progress,file_url,file_size,error_message,updated_at", "", false).
		Eq("id", jobID).
		ExecuteTo(&rows)
	if err != nil {
		return export.JobStatus{}, apperr.External("supabase", fmt.Errorf("failed to read export %s: %w", jobID, err))
	}
	if len(rows) == 0 {
		return export.JobStatus{}, apperr.NotFound("export", jobID)
	}
	return rows[0].status(), nil
}
