// Package scene turns the items active at a playhead position into an ordered
// list of render objects. Composition is a pure function of a timeline
// snapshot, an asset index and a time.
package scene

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/timeline"
)

type ObjectKind string

const (
	ObjectImage ObjectKind = "image"
	ObjectVideo ObjectKind = "video"
	ObjectText  ObjectKind = "text"
	ObjectShape ObjectKind = "shape"
)

const (
	DefaultFontSize   = 24.0
	DefaultFontFamily = "Arial"
	DefaultColor      = "#000000"
	DefaultShapeFill  = "#000000"
)

// AssetIndex is a synchronous asset lookup. Composition never performs I/O, so
// callers resolve assets up front (the export descriptor, or a session cache).
type AssetIndex interface {
	Asset(id uuid.UUID) (models.MediaAsset, bool)
}

// Assets is the map-backed AssetIndex.
type Assets map[uuid.UUID]models.MediaAsset

func (a Assets) Asset(id uuid.UUID) (models.MediaAsset, bool) {
	asset, ok := a[id]
	return asset, ok
}

type TextStyle struct {
	Content    string  `json:"content"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
	Color      string  `json:"color"`
}

type ShapeStyle struct {
	Shape  string  `json:"shape"`
	Fill   string  `json:"fill"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`
}

// RenderObject is one visual layer of a scene. MediaTime is the offset into a
// video source, in milliseconds, that should be shown at the composed time.
type RenderObject struct {
	ItemID        uuid.UUID   `json:"item_id"`
	TrackID       uuid.UUID   `json:"track_id"`
	TrackPosition int         `json:"track_position"`
	LayerOrder    int         `json:"layer_order"`
	Kind          ObjectKind  `json:"kind"`
	AssetID       *uuid.UUID  `json:"asset_id,omitempty"`
	Source        string      `json:"source,omitempty"`
	MediaTime     int64       `json:"media_time,omitempty"`
	X             float64     `json:"x"`
	Y             float64     `json:"y"`
	ScaleX        float64     `json:"scale_x"`
	ScaleY        float64     `json:"scale_y"`
	Rotation      float64     `json:"rotation"`
	Opacity       float64     `json:"opacity"`
	Text          *TextStyle  `json:"text,omitempty"`
	Shape         *ShapeStyle `json:"shape,omitempty"`
}

// AudioCue is an audio item playing at the composed time.
type AudioCue struct {
	ItemID    uuid.UUID `json:"item_id"`
	AssetID   uuid.UUID `json:"asset_id"`
	Source    string    `json:"source"`
	MediaTime int64     `json:"media_time"`
	Volume    float64   `json:"volume"`
}

type Scene struct {
	Time     int64                      `json:"time"`
	Version  uint64                     `json:"version"`
	Objects  []RenderObject             `json:"objects"`
	Audio    []AudioCue                 `json:"audio,omitempty"`
	Warnings []apperr.ResolutionWarning `json:"warnings,omitempty"`
}

// Compose builds the scene at time at. Objects keep the paint order of
// Snapshot.ActiveAt. Items on hidden tracks are left out; items whose media
// cannot be resolved are skipped and reported as warnings.
func Compose(snap timeline.Snapshot, assets AssetIndex, at int64) Scene {
	sc := Scene{Time: at, Version: snap.Version, Objects: []RenderObject{}}

	tracks := make(map[uuid.UUID]timeline.Track, len(snap.Tracks))
	for _, tr := range snap.Tracks {
		tracks[tr.ID] = tr
	}

	for _, it := range snap.ActiveAt(at) {
		tr := tracks[it.TrackID]
		if !tr.Visible {
			continue
		}

		if it.MediaAssetID == nil {
			obj, warn := inlineObject(it, tr)
			if warn != nil {
				sc.Warnings = append(sc.Warnings, *warn)
				continue
			}
			sc.Objects = append(sc.Objects, obj)
			continue
		}

		assetID := *it.MediaAssetID
		var asset models.MediaAsset
		ok := false
		if assets != nil {
			asset, ok = assets.Asset(assetID)
		}
		switch {
		case !ok:
			sc.Warnings = append(sc.Warnings, warning(it, assetID, "media asset not found"))
			continue
		case !asset.Uploaded():
			sc.Warnings = append(sc.Warnings, warning(it, assetID, "media asset has no url"))
			continue
		}

		if asset.Kind == models.MediaAudio {
			sc.Audio = append(sc.Audio, AudioCue{
				ItemID:    it.ID,
				AssetID:   assetID,
				Source:    *asset.URL,
				MediaTime: at - it.StartTime,
				Volume:    clamp(number(it.Properties, "volume", 1), 0, 1),
			})
			continue
		}

		obj := baseObject(it, tr)
		obj.AssetID = &assetID
		obj.Source = *asset.URL
		obj.Kind = ObjectImage
		if asset.Kind == models.MediaVideo {
			obj.Kind = ObjectVideo
			obj.MediaTime = at - it.StartTime
		}
		sc.Objects = append(sc.Objects, obj)
	}

	return sc
}

func inlineObject(it timeline.Item, tr timeline.Track) (RenderObject, *apperr.ResolutionWarning) {
	obj := baseObject(it, tr)
	p := it.Properties

	switch p.Type() {
	case "text":
		obj.Kind = ObjectText
		obj.Text = &TextStyle{
			Content:    str(p, "text", ""),
			FontSize:   number(p, "fontSize", DefaultFontSize),
			FontFamily: str(p, "fontFamily", DefaultFontFamily),
			Color:      str(p, "color", DefaultColor),
		}
		return obj, nil
	case "shape":
		obj.Kind = ObjectShape
		obj.Shape = &ShapeStyle{
			Shape:  str(p, "shape", "rect"),
			Fill:   str(p, "fill", str(p, "color", DefaultShapeFill)),
			Width:  number(p, "width", 0),
			Height: number(p, "height", 0),
			Radius: number(p, "radius", 0),
		}
		return obj, nil
	}

	if detached, ok := p[timeline.DetachedAssetKey].(string); ok {
		w := apperr.ResolutionWarning{ItemID: it.ID.String(), AssetID: detached, Reason: "media asset was deleted"}
		return RenderObject{}, &w
	}
	w := apperr.ResolutionWarning{ItemID: it.ID.String(), Reason: "item has no media and no known content type"}
	return RenderObject{}, &w
}

func baseObject(it timeline.Item, tr timeline.Track) RenderObject {
	p := it.Properties
	scale := number(p, "scale", 1)
	return RenderObject{
		ItemID:        it.ID,
		TrackID:       it.TrackID,
		TrackPosition: tr.Position,
		LayerOrder:    it.LayerOrder,
		X:             number(p, "x", 0),
		Y:             number(p, "y", 0),
		ScaleX:        number(p, "scaleX", scale),
		ScaleY:        number(p, "scaleY", scale),
		Rotation:      number(p, "rotation", 0),
		Opacity:       clamp(number(p, "opacity", 1), 0, 1),
	}
}

func warning(it timeline.Item, assetID uuid.UUID, reason string) apperr.ResolutionWarning {
	return apperr.ResolutionWarning{ItemID: it.ID.String(), AssetID: assetID.String(), Reason: reason}
}

// number reads a numeric property. JSON-decoded bags carry float64 or
// json.Number; anything else, including NaN, falls back to def.
func number(p timeline.Properties, key string, def float64) float64 {
	var f float64
	switch v := p[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return def
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func str(p timeline.Properties, key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
