package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
)

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectPublished ProjectStatus = "published"
	ProjectArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	return s == ProjectDraft || s == ProjectPublished || s == ProjectArchived
}

// DefaultDuration is the timeline length of a new project, in milliseconds.
const DefaultDuration int64 = 30000

// Canvas is the render configuration of a project.
type Canvas struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	Duration   int64   `json:"duration"`
	Background string  `json:"background"`
}

func DefaultCanvas() Canvas {
	return Canvas{
		Width:      1920,
		Height:     1080,
		FrameRate:  30,
		Duration:   DefaultDuration,
		Background: "#ffffff",
	}
}

type Project struct {
	ID               uuid.UUID              `json:"id"`
	WorkspaceID      uuid.UUID              `json:"workspace_id"`
	OwnerID          uuid.UUID              `json:"owner_id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Canvas           Canvas                 `json:"canvas"`
	TimelineDuration int64                  `json:"timeline_duration"`
	Status           ProjectStatus          `json:"status"`
	Settings         map[string]interface{} `json:"settings,omitempty"`
	ThumbnailURL     string                 `json:"thumbnail_url,omitempty"`
	TimelineVersion  uint64                 `json:"timeline_version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// SetDuration changes the project length, keeping canvas and timeline in step.
func (p *Project) SetDuration(ms int64) error {
	if ms <= 0 {
		return apperr.Validation("duration", "must be positive")
	}
	p.Canvas.Duration = ms
	p.TimelineDuration = ms
	return nil
}

// Reconcile restores the canvas/timeline duration invariant on a record loaded
// from storage. The canvas value wins; the timeline value is used only when
// the canvas carries none.
func (p *Project) Reconcile() {
	switch {
	case p.Canvas.Duration > 0:
		p.TimelineDuration = p.Canvas.Duration
	case p.TimelineDuration > 0:
		p.Canvas.Duration = p.TimelineDuration
	default:
		p.Canvas.Duration = DefaultDuration
		p.TimelineDuration = DefaultDuration
	}
}

// SetStatus applies a status transition. An archived project has to go back
// to draft before it can be published again.
func (p *Project) SetStatus(next ProjectStatus) error {
	if !next.Valid() {
		return apperr.Validation("status", fmt.Sprintf("unknown status %q", next))
	}
	if p.Status == ProjectArchived && next == ProjectPublished {
		return apperr.Validation("status", "archived projects must return to draft before publishing")
	}
	p.Status = next
	return nil
}

// DurationValue is the reconciled project length in milliseconds.
func (p *Project) DurationValue() time.Duration {
	return time.Duration(p.Canvas.Duration) * time.Millisecond
}
