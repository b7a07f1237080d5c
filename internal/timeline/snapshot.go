package timeline

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Snapshot is an immutable, version-stamped view of a project's timeline.
// Tracks are ordered by position; items by start time, then id.
type Snapshot struct {
	ProjectID uuid.UUID `json:"project_id"`
	Version   uint64    `json:"version"`
	Tracks    []Track   `json:"tracks"`
	Items     []Item    `json:"items"`
}

// NewSnapshot builds a snapshot from loose tracks and items, ordering them the
// same way the model does. Inputs are copied.
func NewSnapshot(projectID uuid.UUID, version uint64, tracks []Track, items []Item) Snapshot {
	ts := make([]Track, len(tracks))
	copy(ts, tracks)
	sort.SliceStable(ts, func(a, b int) bool { return ts[a].Position < ts[b].Position })

	is := make([]Item, len(items))
	for i, item := range items {
		is[i] = item.Clone()
	}
	sortItems(is)

	return Snapshot{ProjectID: projectID, Version: version, Tracks: ts, Items: is}
}

func sortItems(items []Item) {
	sort.Slice(items, func(a, b int) bool {
		if items[a].StartTime != items[b].StartTime {
			return items[a].StartTime < items[b].StartTime
		}
		return bytes.Compare(items[a].ID[:], items[b].ID[:]) < 0
	})
}

func (s Snapshot) Track(id uuid.UUID) (Track, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

func (s Snapshot) Item(id uuid.UUID) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ItemsOnTrack returns the items of one track in start-time order.
func (s Snapshot) ItemsOnTrack(trackID uuid.UUID) []Item {
	var out []Item
	for _, it := range s.Items {
		if it.TrackID == trackID {
			out = append(out, it)
		}
	}
	return out
}

// End returns the largest item end time, or 0 for an empty timeline.
func (s Snapshot) End() int64 {
	var end int64
	for _, it := range s.Items {
		if it.EndTime > end {
			end = it.EndTime
		}
	}
	return end
}

// ActiveAt returns every item with StartTime <= t <= EndTime in paint order:
// track position ascending, then layer order ascending. Later entries are
// drawn on top.
func (s Snapshot) ActiveAt(t int64) []Item {
	positions := make(map[uuid.UUID]int, len(s.Tracks))
	for _, tr := range s.Tracks {
		positions[tr.ID] = tr.Position
	}
	return activeAt(s.Items, positions, t)
}

func activeAt(items []Item, positions map[uuid.UUID]int, t int64) []Item {
	var out []Item
	for _, it := range items {
		if _, ok := positions[it.TrackID]; !ok {
			continue
		}
		if it.ActiveAt(t) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		pa, pb := positions[out[a].TrackID], positions[out[b].TrackID]
		if pa != pb {
			return pa < pb
		}
		if out[a].LayerOrder != out[b].LayerOrder {
			return out[a].LayerOrder < out[b].LayerOrder
		}
		if out[a].StartTime != out[b].StartTime {
			return out[a].StartTime < out[b].StartTime
		}
		return bytes.Compare(out[a].ID[:], out[b].ID[:]) < 0
	})
	return out
}
