package timeline

import (
	"github.com/google/uuid"
)

type EventType string

const (
	TrackCreated EventType = "track.created"
	TrackUpdated EventType = "track.updated"
	TrackDeleted EventType = "track.deleted"
	ItemCreated  EventType = "item.created"
	ItemUpdated  EventType = "item.updated"
	ItemDeleted  EventType = "item.deleted"
)

// Event describes one committed mutation. Version is the snapshot version the
// mutation produced, so a consumer can tell whether it has missed a delta.
type Event struct {
	Type      EventType   `json:"type"`
	ProjectID uuid.UUID   `json:"project_id"`
	Version   uint64      `json:"version"`
	TrackID   uuid.UUID   `json:"track_id"`
	ItemID    uuid.UUID   `json:"item_id"`
	Track     *Track      `json:"track,omitempty"`
	Item      *Item       `json:"item,omitempty"`
	Removed   []uuid.UUID `json:"removed_items,omitempty"`
}

// Subscribe registers fn for every committed mutation. fn runs synchronously in
// commit order while the writer lock is held, so it must not block or call
// mutating methods of the same model.
func (m *Model) Subscribe(fn func(Event)) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Model) publish(ev Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for i := 0; i < m.nextSub; i++ {
		if fn, ok := m.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
