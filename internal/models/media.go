package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	MediaImage      MediaKind = "image"
	MediaVideo      MediaKind = "video"
	MediaAudio      MediaKind = "audio"
	MediaFont       MediaKind = "font"
	MediaElement    MediaKind = "element"
	MediaTransition MediaKind = "transition"
	MediaSticker    MediaKind = "sticker"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaAudio, MediaFont, MediaElement, MediaTransition, MediaSticker:
		return true
	}
	return false
}

// TimeBased reports whether assets of this kind carry a playable duration.
func (k MediaKind) TimeBased() bool {
	return k == MediaVideo || k == MediaAudio
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MediaAsset is an uploaded file usable in a project. Kind never changes after
// registration; URL and FileSize are set once, when the upload completes.
type MediaAsset struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	OriginalName string      `json:"original_name"`
	Kind         MediaKind   `json:"media_type"`
	MimeType     string      `json:"mime_type"`
	StoragePath  string      `json:"file_path"`
	URL          *string     `json:"file_url"`
	FileSize     int64       `json:"file_size"`
	Duration     *int64      `json:"duration,omitempty"`
	Dimensions   *Dimensions `json:"dimensions,omitempty"`
	WorkspaceID  uuid.UUID   `json:"workspace_id"`
	ProjectID    *uuid.UUID  `json:"project_id,omitempty"`
	UploadedBy   uuid.UUID   `json:"uploaded_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Uploaded reports whether the upload has completed and the asset has a URL.
func (a MediaAsset) Uploaded() bool {
	return a.URL != nil && *a.URL != ""
}

// Clone returns a deep copy so callers can hand assets across goroutines.
func (a MediaAsset) Clone() MediaAsset {
	out := a
	if a.URL != nil {
		u := *a.URL
		out.URL = &u
	}
	if a.Duration != nil {
		d := *a.Duration
		out.Duration = &d
	}
	if a.Dimensions != nil {
		dim := *a.Dimensions
		out.Dimensions = &dim
	}
	if a.ProjectID != nil {
		p := *a.ProjectID
		out.ProjectID = &p
	}
	return out
}
