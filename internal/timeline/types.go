package timeline

import (
	"time"

	"github.com/google/uuid"
)

type TrackKind string

const (
	TrackVideo   TrackKind = "video"
	TrackAudio   TrackKind = "audio"
	TrackText    TrackKind = "text"
	TrackImage   TrackKind = "image"
	TrackOverlay TrackKind = "overlay"
)

func (k TrackKind) Valid() bool {
	switch k {
	case TrackVideo, TrackAudio, TrackText, TrackImage, TrackOverlay:
		return true
	}
	return false
}

// Track is an ordered lane of items. Position is unique within a project and
// positions are always dense, so Position doubles as the track's index.
type Track struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Kind      TrackKind `json:"track_type"`
	Position  int       `json:"position"`
	Visible   bool      `json:"is_visible"`
	Locked    bool      `json:"is_locked"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Properties is the free-form bag carried by an item: transform fields,
// text content, font, color. Values follow encoding/json conventions.
type Properties map[string]interface{}

// Clone deep-copies nested maps and slices.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Properties:
		return t.Clone()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Type returns the self-described content type ("text", "shape", ...) or "".
func (p Properties) Type() string {
	s, _ := p["type"].(string)
	return s
}

// Item places content on a track across [StartTime, EndTime], in milliseconds.
// EndTime always equals StartTime + Duration.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	TrackID      uuid.UUID  `json:"track_id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	MediaAssetID *uuid.UUID `json:"media_asset_id"`
	StartTime    int64      `json:"start_time"`
	Duration     int64      `json:"duration"`
	EndTime      int64      `json:"end_time"`
	Properties   Properties `json:"properties"`
	LayerOrder   int        `json:"layer_order"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ActiveAt reports whether t falls inside the item's closed interval.
func (i Item) ActiveAt(t int64) bool {
	return i.StartTime <= t && t <= i.EndTime
}

func (i Item) Clone() Item {
	out := i
	if i.MediaAssetID != nil {
		id := *i.MediaAssetID
		out.MediaAssetID = &id
	}
	out.Properties = i.Properties.Clone()
	return out
}

// ItemInput carries the fields of a new item. A nil LayerOrder places the item
// above everything already on its track.
type ItemInput struct {
	StartTime    int64      `json:"start_time"`
	Duration     int64      `json:"duration"`
	MediaAssetID *uuid.UUID `json:"media_asset_id,omitempty"`
	Properties   Properties `json:"properties,omitempty"`
	LayerOrder   *int       `json:"layer_order,omitempty"`
}

// ItemPatch is a partial item update. Properties are merged key by key; a nil
// value removes the key.
type ItemPatch struct {
	TrackID         *uuid.UUID             `json:"track_id,omitempty"`
	StartTime       *int64                 `json:"start_time,omitempty"`
	Duration        *int64                 `json:"duration,omitempty"`
	MediaAssetID    *uuid.UUID             `json:"media_asset_id,omitempty"`
	ClearMediaAsset bool                   `json:"clear_media_asset,omitempty"`
	Properties      map[string]interface{} `json:"properties,omitempty"`
	LayerOrder      *int                   `json:"layer_order,omitempty"`
}

type TrackPatch struct {
	Name     *string    `json:"name,omitempty"`
	Kind     *TrackKind `json:"track_type,omitempty"`
	Position *int       `json:"position,omitempty"`
	Visible  *bool      `json:"is_visible,omitempty"`
	Locked   *bool      `json:"is_locked,omitempty"`
	Height   *int       `json:"height,omitempty"`
}
