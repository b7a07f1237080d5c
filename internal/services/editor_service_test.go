package services_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/apperr"
	"keyframes-backend/internal/autosave"
	"keyframes-backend/internal/media"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/services"
	"keyframes-backend/internal/timeline"
)

type fixture struct {
	store    *memStore
	assets   *media.MemoryRegistry
	uploader *fakeUploader
	bus      *realtime.LocalBus
	events   *recorder
	editor   *services.EditorService
	sess     middleware.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		uploader: &fakeUploader{},
		bus:      realtime.NewLocalBus(),
		events:   &recorder{},
		sess:     middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()},
	}
	f.assets = media.NewMemoryRegistry(f.store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.bus.StartForwarder(ctx, f.events.add))

	f.editor = f.newEditor()
	t.Cleanup(func() { _ = f.editor.Close(context.Background()) })
	return f
}

func (f *fixture) newEditor(opts ...services.EditorOption) *services.EditorService {
	opts = append([]services.EditorOption{
		services.WithAutosaveOptions(autosave.WithDebounce(time.Hour)),
		services.WithUploader(f.uploader),
	}, opts...)
	return services.NewEditorService(f.store, f.assets, f.bus, nil, opts...)
}

func (f *fixture) project(t *testing.T) models.Project {
	t.Helper()
	p, err := f.editor.CreateProject(context.Background(), f.sess, models.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	return p
}

func (f *fixture) uploadedAsset(t *testing.T, kind models.MediaKind) models.MediaAsset {
	t.Helper()
	ctx := context.Background()
	a, err := f.assets.RegisterAsset(ctx, media.Metadata{
		Name:         "beach",
		OriginalName: "beach.png",
		Kind:         kind,
		WorkspaceID:  f.sess.WorkspaceID,
		UploadedBy:   f.sess.UserID,
	})
	require.NoError(t, err)
	a, err = f.assets.CompleteUpload(ctx, a.ID, "https://cdn.example/beach.png", 1024)
	require.NoError(t, err)
	return a
}

// foreignAsset registers an uploaded asset in a workspace the fixture session
// does not belong to.
func (f *fixture) foreignAsset(t *testing.T) models.MediaAsset {
	t.Helper()
	ctx := context.Background()
	a, err := f.assets.RegisterAsset(ctx, media.Metadata{
		Name:         "private",
		OriginalName: "private.png",
		Kind:         models.MediaImage,
		WorkspaceID:  uuid.New(),
		UploadedBy:   uuid.New(),
	})
	require.NoError(t, err)
	a, err = f.assets.CompleteUpload(ctx, a.ID, "https://cdn.example/private.png", 2048)
	require.NoError(t, err)
	return a
}

// seedTimeline stores a one-item timeline pointing at assetID, as if it had
// been saved earlier.
func (f *fixture) seedTimeline(projectID, assetID uuid.UUID) {
	track := timeline.Track{ID: uuid.New(), ProjectID: projectID, Name: "Images", Kind: timeline.TrackImage, Visible: true}
	item := timeline.Item{ID: uuid.New(), TrackID: track.ID, ProjectID: projectID, MediaAssetID: &assetID, Duration: 1000}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.timelines[projectID] = timeline.NewSnapshot(projectID, 0, []timeline.Track{track}, []timeline.Item{item})
}

// stalledBus holds every Publish until release is closed.
type stalledBus struct {
	release chan struct{}

	mu        sync.Mutex
	published []realtime.Message
}

func (b *stalledBus) Publish(ctx context.Context, msg realtime.Message) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.published = append(b.published, msg)
	b.mu.Unlock()
	return nil
}

func (b *stalledBus) StartForwarder(context.Context, func(realtime.Message)) error { return nil }

func (b *stalledBus) Close() error { return nil }

func (b *stalledBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type fakeUploader struct {
	mu      sync.Mutex
	paths   []string
	removed []string
}

func (u *fakeUploader) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, objectPath)
	return "https://cdn.example/" + objectPath, nil
}

func (u *fakeUploader) Remove(ctx context.Context, objectPath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.removed = append(u.removed, objectPath)
	return nil
}

func (u *fakeUploader) removedPaths() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.removed...)
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.project(t)
	assert.Equal(t, f.sess.WorkspaceID, p.WorkspaceID)
	assert.Equal(t, f.sess.UserID, p.OwnerID)
	assert.Equal(t, models.ProjectDraft, p.Status)
	assert.Equal(t, models.DefaultDuration, p.TimelineDuration)

	_, err := f.editor.CreateProject(ctx, middleware.Session{UserID: uuid.New()}, models.CreateProjectRequest{Name: "x"})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.editor.CreateProject(ctx, f.sess, models.CreateProjectRequest{Name: "x", Canvas: &models.Canvas{Width: -1, Height: 10, FrameRate: 30}})
	assert.True(t, apperr.IsValidation(err))

	list, err := f.editor.ListProjects(ctx, f.sess)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetProject_OtherWorkspaceIsNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)

	other := middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()}
	_, err := f.editor.GetProject(context.Background(), other, p.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.editor.CreateTrack(context.Background(), other, p.ID, "Video", timeline.TrackVideo)
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	duration := int64(15000)
	updated, err := f.editor.UpdateProject(ctx, f.sess, p.ID, models.UpdateProjectRequest{Duration: &duration})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), updated.Canvas.Duration)

	stored, err := f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), stored.TimelineDuration)

	bad := int64(-1)
	_, err = f.editor.UpdateProject(ctx, f.sess, p.ID, models.UpdateProjectRequest{Duration: &bad})
	assert.True(t, apperr.IsValidation(err))
}

func TestTimelineEdits_PublishAndAutosave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	track, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Titles", timeline.TrackText)
	require.NoError(t, err)
	item, err := f.editor.CreateItem(ctx, f.sess, p.ID, track.ID, timeline.ItemInput{
		StartTime:  0,
		Duration:   5000,
		Properties: timeline.Properties{"type": "text", "text": "Hello"},
	})
	require.NoError(t, err)

	start := int64(1000)
	moved, err := f.editor.UpdateItem(ctx, f.sess, p.ID, item.ID, timeline.ItemPatch{StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), moved.EndTime)

	want := []string{"track.created", "item.created", "item.updated"}
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, f.events.events()) }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.store.savedTimeline(p.ID).Items, "nothing saved before the debounce window")

	require.NoError(t, f.editor.Flush(ctx, f.sess, p.ID))
	saved := f.store.savedTimeline(p.ID)
	assert.Equal(t, uint64(3), saved.Version)
	require.Len(t, saved.Items, 1)
	assert.Equal(t, int64(1000), saved.Items[0].StartTime)
}

func TestReopenedProjectContinuesVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	_, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Video", timeline.TrackVideo)
	require.NoError(t, err)
	require.NoError(t, f.editor.Close(ctx))

	reopened := f.newEditor()
	defer reopened.Close(ctx)

	snap, err := reopened.Timeline(ctx, f.sess, p.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	require.Len(t, snap.Tracks, 1)

	_, err = reopened.CreateTrack(ctx, f.sess, p.ID, "Audio", timeline.TrackAudio)
	require.NoError(t, err)
	require.NoError(t, reopened.Flush(ctx, f.sess, p.ID))
	assert.Len(t, f.store.savedTimeline(p.ID).Tracks, 2)
}

func TestScene(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	asset := f.uploadedAsset(t, models.MediaImage)

	track, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Images", timeline.TrackImage)
	require.NoError(t, err)
	_, err = f.editor.CreateItem(ctx, f.sess, p.ID, track.ID, timeline.ItemInput{
		StartTime: 0, Duration: 4000, MediaAssetID: &asset.ID,
		Properties: timeline.Properties{"x": 100.0, "opacity": 0.5},
	})
	require.NoError(t, err)

	sc, err := f.editor.Scene(ctx, f.sess, p.ID, 2000)
	require.NoError(t, err)
	require.Len(t, sc.Objects, 1)
	assert.Equal(t, "https://cdn.example/beach.png", sc.Objects[0].Source)
	assert.Equal(t, 100.0, sc.Objects[0].X)
	assert.Equal(t, 0.5, sc.Objects[0].Opacity)
	assert.Empty(t, sc.Warnings)

	empty, err := f.editor.Scene(ctx, f.sess, p.ID, 4001)
	require.NoError(t, err)
	assert.Empty(t, empty.Objects)

	active, err := f.editor.ActiveItems(ctx, f.sess, p.ID, 4000)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = f.editor.Scene(ctx, f.sess, p.ID, -1)
	assert.True(t, apperr.IsValidation(err))
}

func TestDeleteAsset_ReferencedIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	asset := f.uploadedAsset(t, models.MediaImage)

	track, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Images", timeline.TrackImage)
	require.NoError(t, err)
	_, err = f.editor.CreateItem(ctx, f.sess, p.ID, track.ID, timeline.ItemInput{StartTime: 0, Duration: 1000, MediaAssetID: &asset.ID})
	require.NoError(t, err)

	_, err = f.editor.DeleteAsset(ctx, f.sess, asset.ID, false)
	assert.True(t, apperr.IsConflict(err))
	_, err = f.assets.ResolveAsset(ctx, asset.ID)
	assert.NoError(t, err)
	assert.Empty(t, f.uploader.removedPaths())
}

func TestDeleteAsset_ForceDetaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	asset := f.uploadedAsset(t, models.MediaImage)

	track, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Images", timeline.TrackImage)
	require.NoError(t, err)
	item, err := f.editor.CreateItem(ctx, f.sess, p.ID, track.ID, timeline.ItemInput{StartTime: 0, Duration: 1000, MediaAssetID: &asset.ID})
	require.NoError(t, err)
	require.NoError(t, f.editor.Flush(ctx, f.sess, p.ID))

	detached, err := f.editor.DeleteAsset(ctx, f.sess, asset.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, detached)

	_, err = f.assets.ResolveAsset(ctx, asset.ID)
	assert.True(t, apperr.IsNotFound(err))

	snap, err := f.editor.Timeline(ctx, f.sess, p.ID)
	require.NoError(t, err)
	it, ok := snap.Item(item.ID)
	require.True(t, ok)
	assert.Nil(t, it.MediaAssetID)

	sc, err := f.editor.Scene(ctx, f.sess, p.ID, 500)
	require.NoError(t, err)
	require.Len(t, sc.Warnings, 1)
	assert.Equal(t, asset.ID.String(), sc.Warnings[0].AssetID)
}

func TestDeleteAsset_OtherWorkspace(t *testing.T) {
	f := newFixture(t)
	asset := f.uploadedAsset(t, models.MediaImage)

	other := middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()}
	_, err := f.editor.DeleteAsset(context.Background(), other, asset.ID, false)
	assert.True(t, apperr.IsNotFound(err))
}

func TestUploadAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	asset, err := f.editor.UploadAsset(ctx, f.sess, media.File{
		Filename:    "intro.mp4",
		ContentType: "video/mp4",
		Size:        11,
		Body:        strings.NewReader("video-bytes"),
		WorkspaceID: f.sess.WorkspaceID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, asset.Kind)
	assert.True(t, asset.Uploaded())
	assert.Equal(t, f.sess.UserID, asset.UploadedBy)

	list, err := f.editor.ListAssets(ctx, f.sess, f.sess.WorkspaceID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.editor.ListAssets(ctx, f.sess, uuid.New())
	assert.True(t, apperr.IsNotFound(err))
}

func TestSessionWithoutWorkspaceSeesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	asset := f.uploadedAsset(t, models.MediaImage)

	// Same user as the owner, but no workspace selected.
	lone := middleware.Session{UserID: f.sess.UserID}

	_, err := f.editor.GetProject(ctx, lone, p.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.editor.ListAssets(ctx, lone, f.sess.WorkspaceID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.editor.UploadAsset(ctx, lone, media.File{
		Filename:    "b.png",
		ContentType: "image/png",
		Size:        3,
		Body:        strings.NewReader("png"),
		WorkspaceID: f.sess.WorkspaceID,
	})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.editor.DeleteAsset(ctx, lone, asset.ID, true)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.assets.ResolveAsset(ctx, asset.ID)
	assert.NoError(t, err)
}

func TestCreateItem_ForeignAssetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	foreign := f.foreignAsset(t)

	track, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Images", timeline.TrackImage)
	require.NoError(t, err)
	_, err = f.editor.CreateItem(ctx, f.sess, p.ID, track.ID, timeline.ItemInput{StartTime: 0, Duration: 1000, MediaAssetID: &foreign.ID})
	assert.True(t, apperr.IsNotFound(err))

	owner := middleware.Session{UserID: foreign.UploadedBy, WorkspaceID: foreign.WorkspaceID}
	_, err = f.editor.DeleteAsset(ctx, owner, foreign.ID, false)
	assert.NoError(t, err)
}

func TestScene_ForeignAssetIsNotComposed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	foreign := f.foreignAsset(t)
	f.seedTimeline(p.ID, foreign.ID)

	sc, err := f.editor.Scene(ctx, f.sess, p.ID, 500)
	require.NoError(t, err)
	for _, obj := range sc.Objects {
		assert.NotEqual(t, *foreign.URL, obj.Source)
	}
	require.Len(t, sc.Warnings, 1)
	assert.Equal(t, foreign.ID.String(), sc.Warnings[0].AssetID)
}

func TestDeleteAsset_RemovesStoredObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	asset, err := f.editor.UploadAsset(ctx, f.sess, media.File{
		Filename:    "b.png",
		ContentType: "image/png",
		Size:        3,
		Body:        strings.NewReader("png"),
		WorkspaceID: f.sess.WorkspaceID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, asset.StoragePath)

	_, err = f.editor.DeleteAsset(ctx, f.sess, asset.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{asset.StoragePath}, f.uploader.removedPaths())
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	_, err := f.editor.CreateTrack(ctx, f.sess, p.ID, "Video", timeline.TrackVideo)
	require.NoError(t, err)

	other := middleware.Session{UserID: uuid.New(), WorkspaceID: uuid.New()}
	assert.True(t, apperr.IsNotFound(f.editor.DeleteProject(ctx, other, p.ID)))
	_, err = f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.editor.DeleteProject(ctx, f.sess, p.ID))
	_, err = f.store.GetProject(ctx, p.ID)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.editor.GetProject(ctx, f.sess, p.ID)
	assert.True(t, apperr.IsNotFound(err))

	assert.True(t, apperr.IsNotFound(f.editor.DeleteProject(ctx, f.sess, uuid.New())))
}

func TestTimelineEdits_DoNotWaitOnBus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	bus := &stalledBus{release: make(chan struct{})}
	editor := services.NewEditorService(f.store, f.assets, bus, nil,
		services.WithAutosaveOptions(autosave.WithDebounce(time.Hour)),
	)

	done := make(chan error, 1)
	go func() {
		_, err := editor.CreateTrack(ctx, f.sess, p.ID, "Video", timeline.TrackVideo)
		if err == nil {
			_, err = editor.CreateTrack(ctx, f.sess, p.ID, "Audio", timeline.TrackAudio)
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeline edits waited on the bus")
	}
	assert.Equal(t, 0, bus.count())

	close(bus.release)
	require.Eventually(t, func() bool { return bus.count() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, editor.Close(ctx))
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestEvictIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	editor := f.newEditor(services.WithClock(clock.Now))
	defer editor.Close(ctx)

	idle := f.project(t)
	busy := f.project(t)

	_, err := editor.CreateTrack(ctx, f.sess, idle.ID, "Video", timeline.TrackVideo)
	require.NoError(t, err)
	clock.Advance(45 * time.Minute)
	_, err = editor.Timeline(ctx, f.sess, busy.ID)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)

	n, err := editor.EvictIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.store.savedTimeline(idle.ID).Tracks, 1, "pending edits saved before close")

	snap, err := editor.Timeline(ctx, f.sess, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)

	n, err = editor.EvictIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIdleEvictionRunsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	editor := f.newEditor(services.WithClock(clock.Now), services.WithIdleEviction(time.Second))
	defer editor.Close(ctx)

	p := f.project(t)
	_, err := editor.CreateTrack(ctx, f.sess, p.ID, "Video", timeline.TrackVideo)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return len(f.store.savedTimeline(p.ID).Tracks) == 1
	}, 3*time.Second, 20*time.Millisecond)
}
