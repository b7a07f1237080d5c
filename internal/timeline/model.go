// Package timeline holds the authoritative tracks and items of one project and
// answers which items are active at a given time.
//
// Mutations are serialized through a single writer lock and published as
// immutable snapshots, so readers (scene composition, export, scrubbing) never
// block on writers and always observe every mutation that has returned.
package timeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/models"
)

// AssetLookup resolves media asset references. media.Registry satisfies it.
type AssetLookup interface {
	ResolveAsset(ctx context.Context, id uuid.UUID) (models.MediaAsset, error)
}

type Model struct {
	projectID uuid.UUID
	assets    AssetLookup
	now       func() time.Time
	opts      options

	writeMu sync.Mutex
	state   atomic.Pointer[state]

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// state is never modified after it has been stored; writers clone it.
type state struct {
	version uint64
	tracks  []Track
	items   map[uuid.UUID]Item
}

func (s *state) clone() *state {
	next := &state{
		version: s.version,
		tracks:  make([]Track, len(s.tracks)),
		items:   make(map[uuid.UUID]Item, len(s.items)),
	}
	copy(next.tracks, s.tracks)
	for id, it := range s.items {
		next.items[id] = it
	}
	return next
}

func (s *state) trackIndex(id uuid.UUID) int {
	for i, t := range s.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *state) reindex() {
	for i := range s.tracks {
		s.tracks[i].Position = i
	}
}

func (s *state) positions() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(s.tracks))
	for _, t := range s.tracks {
		out[t.ID] = t.Position
	}
	return out
}

// DetachedAssetKey marks an item whose media asset was removed underneath it.
const DetachedAssetKey = "detached_asset_id"

type Option func(*Model)

type options struct {
	baseVersion uint64
}

// WithClock overrides the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithVersion starts the version counter at v, so a timeline reloaded from
// storage keeps counting from the version that was saved.
func WithVersion(v uint64) Option {
	return func(m *Model) { m.opts.baseVersion = v }
}

// New returns an empty timeline for projectID.
func New(projectID uuid.UUID, assets AssetLookup, opts ...Option) *Model {
	m := &Model{
		projectID: projectID,
		assets:    assets,
		now:       time.Now,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&state{version: m.opts.baseVersion, items: make(map[uuid.UUID]Item)})
	return m
}

// Load rebuilds a timeline from persisted rows. Track positions are
// normalized to a dense 0..n-1 ordering, end times are recomputed, and items
// whose track is missing are dropped.
func Load(projectID uuid.UUID, assets AssetLookup, tracks []Track, items []Item, opts ...Option) *Model {
	m := New(projectID, assets, opts...)

	snap := NewSnapshot(projectID, 0, tracks, items)
	st := &state{
		version: m.opts.baseVersion,
		tracks:  snap.Tracks,
		items:   make(map[uuid.UUID]Item, len(snap.Items)),
	}
	st.reindex()
	for i := range st.tracks {
		st.tracks[i].ProjectID = projectID
	}
	for _, it := range snap.Items {
		if st.trackIndex(it.TrackID) < 0 {
			continue
		}
		it.ProjectID = projectID
		it.EndTime = it.StartTime + it.Duration
		st.items[it.ID] = it
	}
	m.state.Store(st)
	return m
}

func (m *Model) ProjectID() uuid.UUID { return m.projectID }

// Version counts committed mutations, starting from WithVersion's value.
func (m *Model) Version() uint64 { return m.state.Load().version }

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() Snapshot {
	st := m.state.Load()
	items := make([]Item, 0, len(st.items))
	for _, it := range st.items {
		items = append(items, it)
	}
	return NewSnapshot(m.projectID, st.version, st.tracks, items)
}

// ActiveItemsAt returns every item with StartTime <= t <= EndTime, ordered
// by track position then layer order.
func (m *Model) ActiveItemsAt(t int64) []Item {
	st := m.state.Load()
	items := make([]Item, 0, len(st.items))
	for _, it := range st.items {
		items = append(items, it)
	}
	active := activeAt(items, st.positions(), t)
	for i := range active {
		active[i] = active[i].Clone()
	}
	return active
}

// References counts items that point at assetID.
func (m *Model) References(assetID uuid.UUID) int {
	n := 0
	for _, it := range m.state.Load().items {
		if it.MediaAssetID != nil && *it.MediaAssetID == assetID {
			n++
		}
	}
	return n
}

// commit publishes next as the new state. Callers hold writeMu.
func (m *Model) commit(next *state, ev Event) Event {
	next.version++
	ev.ProjectID = m.projectID
	ev.Version = next.version
	m.state.Store(next)
	m.publish(ev)
	return ev
}

func (m *Model) CreateTrack(ctx context.Context, name string, kind TrackKind) (Track, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Track{}, apperr.Validation("name", "must not be empty")
	}
	if !kind.Valid() {
		return Track{}, apperr.Validation("track_type", fmt.Sprintf("unknown track type %q", kind))
	}
	if err := ctx.Err(); err != nil {
		return Track{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.state.Load().clone()
	track := Track{
		ID:        uuid.New(),
		ProjectID: m.projectID,
		Name:      name,
		Kind:      kind,
		Position:  len(next.tracks),
		Visible:   true,
		CreatedAt: m.now().UTC(),
	}
	next.tracks = append(next.tracks, track)

	m.commit(next, Event{Type: TrackCreated, TrackID: track.ID, Track: &track})
	return track, nil
}

func (m *Model) UpdateTrack(ctx context.Context, id uuid.UUID, patch TrackPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.state.Load().clone()
	idx := next.trackIndex(id)
	if idx < 0 {
		return apperr.NotFound("track", id.String())
	}
	track := next.tracks[idx]

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return apperr.Validation("name", "must not be empty")
		}
		track.Name = name
	}
	if patch.Kind != nil {
		if !patch.Kind.Valid() {
			return apperr.Validation("track_type", fmt.Sprintf("unknown track type %q", *patch.Kind))
		}
		track.Kind = *patch.Kind
	}
	if patch.Position != nil && *patch.Position != track.Position {
		pos := *patch.Position
		if pos < 0 || pos >= len(next.tracks) {
			return apperr.Validation("position", fmt.Sprintf("must be between 0 and %d", len(next.tracks)-1))
		}
		return apperr.Conflict("position %d is already held by track %s", pos, next.tracks[pos].ID)
	}
	if patch.Visible != nil {
		track.Visible = *patch.Visible
	}
	if patch.Locked != nil {
		track.Locked = *patch.Locked
	}
	if patch.Height != nil {
		if *patch.Height < 0 {
			return apperr.Validation("height", "must not be negative")
		}
		track.Height = *patch.Height
	}

	next.tracks[idx] = track
	m.commit(next, Event{Type: TrackUpdated, TrackID: id, Track: &track})
	return nil
}

// MoveTrack places a track at index, shifting the tracks in between so
// positions stay dense.
func (m *Model) MoveTrack(ctx context.Context, id uuid.UUID, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.state.Load().clone()
	from := next.trackIndex(id)
	if from < 0 {
		return apperr.NotFound("track", id.String())
	}
	if index < 0 || index >= len(next.tracks) {
		return apperr.Validation("position", fmt.Sprintf("must be between 0 and %d", len(next.tracks)-1))
	}
	if index == from {
		return nil
	}

	track := next.tracks[from]
	rest := append(next.tracks[:from:from], next.tracks[from+1:]...)
	reordered := make([]Track, 0, len(next.tracks))
	reordered = append(reordered, rest[:index]...)
	reordered = append(reordered, track)
	reordered = append(reordered, rest[index:]...)
	next.tracks = reordered
	next.reindex()

	moved := next.tracks[index]
	m.commit(next, Event{Type: TrackUpdated, TrackID: id, Track: &moved})
	return nil
}

// DeleteTrack removes every item on the track, then the track, then closes
// the gap in positions. A locked track is a conflict, as for DeleteItem.
func (m *Model) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.state.Load().clone()
	idx := next.trackIndex(id)
	if idx < 0 {
		return apperr.NotFound("track", id.String())
	}
	if next.tracks[idx].Locked {
		return apperr.Conflict("track %s is locked", id)
	}

	var removed []uuid.UUID
	for itemID, it := range next.items {
		if it.TrackID == id {
			delete(next.items, itemID)
			removed = append(removed, itemID)
		}
	}
	next.tracks = append(next.tracks[:idx:idx], next.tracks[idx+1:]...)
	next.reindex()

	m.commit(next, Event{Type: TrackDeleted, TrackID: id, Removed: removed})
	return nil
}

func (m *Model) CreateItem(ctx context.Context, trackID uuid.UUID, in ItemInput) (Item, error) {
	if in.StartTime < 0 {
		return Item{}, apperr.Validation("start_time", "must not be negative")
	}
	if in.Duration <= 0 {
		return Item{}, apperr.Validation("duration", "must be positive")
	}
	if in.MediaAssetID == nil && in.Properties.Type() == "" {
		return Item{}, apperr.Validation("properties.type", "required when no media asset is referenced")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.state.Load()
	idx := cur.trackIndex(trackID)
	if idx < 0 {
		return Item{}, apperr.NotFound("track", trackID.String())
	}
	if cur.tracks[idx].Locked {
		return Item{}, apperr.Conflict("track %s is locked", trackID)
	}
	if in.MediaAssetID != nil {
		if err := m.checkAsset(ctx, *in.MediaAssetID); err != nil {
			return Item{}, err
		}
	}

	next := cur.clone()
	layer := 0
	if in.LayerOrder != nil {
		layer = *in.LayerOrder
	} else {
		layer = topLayer(next, trackID) + 1
	}

	item := Item{
		ID:         uuid.New(),
		TrackID:    trackID,
		ProjectID:  m.projectID,
		StartTime:  in.StartTime,
		Duration:   in.Duration,
		EndTime:    in.StartTime + in.Duration,
		Properties: in.Properties.Clone(),
		LayerOrder: layer,
		CreatedAt:  m.now().UTC(),
	}
	if item.Properties == nil {
		item.Properties = Properties{}
	}
	if in.MediaAssetID != nil {
		assetID := *in.MediaAssetID
		item.MediaAssetID = &assetID
	}
	next.items[item.ID] = item

	out := item.Clone()
	m.commit(next, Event{Type: ItemCreated, TrackID: trackID, ItemID: item.ID, Item: &out})
	return item.Clone(), nil
}

// selfDescribing reports whether an item can be composed: it references an
// asset, describes its own content, or is a placeholder left by DetachAsset.
func selfDescribing(it Item) bool {
	if it.MediaAssetID != nil || it.Properties.Type() != "" {
		return true
	}
	_, detached := it.Properties[DetachedAssetKey]
	return detached
}

func topLayer(s *state, trackID uuid.UUID) int {
	top := -1
	for _, it := range s.items {
		if it.TrackID == trackID && it.LayerOrder > top {
			top = it.LayerOrder
		}
	}
	return top
}

func (m *Model) checkAsset(ctx context.Context, id uuid.UUID) error {
	if m.assets == nil {
		return apperr.External("media registry", fmt.Errorf("no registry configured"))
	}
	if _, err := m.assets.ResolveAsset(ctx, id); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NotFound("media asset", id.String())
		}
		return err
	}
	return nil
}

func (m *Model) UpdateItem(ctx context.Context, id uuid.UUID, patch ItemPatch) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.state.Load()
	item, ok := cur.items[id]
	if !ok {
		return apperr.NotFound("timeline item", id.String())
	}
	if idx := cur.trackIndex(item.TrackID); idx >= 0 && cur.tracks[idx].Locked {
		return apperr.Conflict("track %s is locked", item.TrackID)
	}

	updated := item
	if patch.TrackID != nil && *patch.TrackID != item.TrackID {
		idx := cur.trackIndex(*patch.TrackID)
		if idx < 0 {
			return apperr.NotFound("track", patch.TrackID.String())
		}
		if cur.tracks[idx].Locked {
			return apperr.Conflict("track %s is locked", *patch.TrackID)
		}
		updated.TrackID = *patch.TrackID
	}
	if patch.StartTime != nil {
		updated.StartTime = *patch.StartTime
	}
	if patch.Duration != nil {
		updated.Duration = *patch.Duration
	}
	if updated.StartTime < 0 {
		return apperr.Validation("start_time", "must not be negative")
	}
	if updated.Duration <= 0 {
		return apperr.Validation("duration", "must be positive")
	}
	updated.EndTime = updated.StartTime + updated.Duration

	if patch.LayerOrder != nil {
		updated.LayerOrder = *patch.LayerOrder
	}
	if patch.Properties != nil {
		props := item.Properties.Clone()
		if props == nil {
			props = Properties{}
		}
		for k, v := range patch.Properties {
			if v == nil {
				delete(props, k)
				continue
			}
			props[k] = cloneValue(v)
		}
		updated.Properties = props
	}

	switch {
	case patch.ClearMediaAsset:
		updated.MediaAssetID = nil
	case patch.MediaAssetID != nil:
		if err := m.checkAsset(ctx, *patch.MediaAssetID); err != nil {
			return err
		}
		assetID := *patch.MediaAssetID
		updated.MediaAssetID = &assetID
	}
	if !selfDescribing(updated) {
		return apperr.Validation("properties.type", "required when no media asset is referenced")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next := cur.clone()
	next.items[id] = updated

	out := updated.Clone()
	m.commit(next, Event{Type: ItemUpdated, TrackID: updated.TrackID, ItemID: id, Item: &out})
	return nil
}

func (m *Model) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.state.Load()
	item, ok := cur.items[id]
	if !ok {
		return apperr.NotFound("timeline item", id.String())
	}
	if idx := cur.trackIndex(item.TrackID); idx >= 0 && cur.tracks[idx].Locked {
		return apperr.Conflict("track %s is locked", item.TrackID)
	}

	next := cur.clone()
	delete(next.items, id)

	m.commit(next, Event{Type: ItemDeleted, TrackID: item.TrackID, ItemID: id})
	return nil
}

// DetachAsset clears the media reference of every item pointing at assetID and
// returns how many were changed. Detached items compose with a resolution
// warning until they get new content.
func (m *Model) DetachAsset(ctx context.Context, assetID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.state.Load().clone()
	var changed []Item
	for id, it := range next.items {
		if it.MediaAssetID == nil || *it.MediaAssetID != assetID {
			continue
		}
		it.MediaAssetID = nil
		props := it.Properties.Clone()
		if props == nil {
			props = Properties{}
		}
		props[DetachedAssetKey] = assetID.String()
		it.Properties = props
		next.items[id] = it
		changed = append(changed, it)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	// One commit covers every detached item; each still gets its own event.
	next.version++
	m.state.Store(next)
	for _, it := range changed {
		out := it.Clone()
		m.publish(Event{
			Type:      ItemUpdated,
			ProjectID: m.projectID,
			Version:   next.version,
			TrackID:   it.TrackID,
			ItemID:    it.ID,
			Item:      &out,
		})
	}
	return len(changed), nil
}
