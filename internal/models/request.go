package models

import (
	"strings"

	"keyframes-backend/internal/apperr"
)

type CreateProjectRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description,omitempty"`
	Canvas      *Canvas `json:"canvas,omitempty"`
}

// UpdateProjectRequest is a partial project update. Duration changes both the
// canvas and the timeline length.
type UpdateProjectRequest struct {
	Name         *string                `json:"name,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Status       *ProjectStatus         `json:"status,omitempty"`
	Duration     *int64                 `json:"duration,omitempty"`
	Width        *int                   `json:"width,omitempty"`
	Height       *int                   `json:"height,omitempty"`
	FrameRate    *float64               `json:"frame_rate,omitempty"`
	Background   *string                `json:"background,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
	ThumbnailURL *string                `json:"thumbnail_url,omitempty"`
}

// ValidateCanvas checks the render configuration of a new or updated project.
func ValidateCanvas(c Canvas) error {
	if c.Width <= 0 || c.Height <= 0 {
		return apperr.Validation("canvas", "width and height must be positive")
	}
	if c.FrameRate <= 0 || c.FrameRate > 120 {
		return apperr.Validation("frame_rate", "must be in (0, 120]")
	}
	if c.Duration <= 0 {
		return apperr.Validation("duration", "must be positive")
	}
	return nil
}

// Apply validates the request and applies it to p. p is left unchanged when
// the request is invalid.
func (r UpdateProjectRequest) Apply(p *Project) error {
	next := *p
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return apperr.Validation("name", "must not be empty")
		}
		next.Name = name
	}
	if r.Description != nil {
		next.Description = *r.Description
	}
	if r.Status != nil {
		if err := next.SetStatus(*r.Status); err != nil {
			return err
		}
	}
	if r.Duration != nil {
		if err := next.SetDuration(*r.Duration); err != nil {
			return err
		}
	}
	if r.Width != nil {
		next.Canvas.Width = *r.Width
	}
	if r.Height != nil {
		next.Canvas.Height = *r.Height
	}
	if r.FrameRate != nil {
		next.Canvas.FrameRate = *r.FrameRate
	}
	if r.Background != nil {
		next.Canvas.Background = *r.Background
	}
	if err := ValidateCanvas(next.Canvas); err != nil {
		return err
	}
	if r.Settings != nil {
		merged := make(map[string]interface{}, len(next.Settings)+len(r.Settings))
		for k, v := range next.Settings {
			merged[k] = v
		}
		for k, v := range r.Settings {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		next.Settings = merged
	}
	if r.ThumbnailURL != nil {
		next.ThumbnailURL = *r.ThumbnailURL
	}
	*p = next
	return nil
}

type CreateTrackRequest struct {
	Name      string `json:"name" binding:"required"`
	TrackType string `json:"track_type" binding:"required"`
}

type MoveTrackRequest struct {
	Index *int `json:"index" binding:"required"`
}

// CreateExportRequest selects a preset or spells out the settings. Zero values
// fall back to the project's canvas.
type CreateExportRequest struct {
	Preset   string `json:"preset,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FPS      int    `json:"fps,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
