package playlist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playsync/storage"
)

func newTestStore(t *testing.T) *storage.JSONStore {
	t.Helper()
	store, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "test.json"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestPlaylist(t *testing.T, store storage.Store) *storage.Playlist {
	t.Helper()
	p, err := store.AddPlaylist(context.Background(), storage.NewPlaylist("test"))
	require.NoError(t, err)
	return p
}

// failingStore wraps a real store and fails playlist updates on demand, to
// exercise the compensating cleanup paths.
type failingStore struct {
	storage.Store
	failUpdate bool
}

func (f *failingStore) UpdatePlaylist(ctx context.Context, p *storage.Playlist) (*storage.Playlist, error) {
	if f.failUpdate {
		return nil, errors.New("disk full")
	}
	return f.Store.UpdatePlaylist(ctx, p)
}

func TestAddStreams(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
		storage.NewStream("two", "https://example.com/2"),
	})
	require.NoError(t, err)
	require.Len(t, added, 2)

	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{added[0].ID, added[1].ID}, got.StreamIDs)
}

func TestAddStreams_SkipsDuplicates(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	first, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same URI, same name, and an in-batch duplicate pair
	second, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("other", "https://example.com/1"),
		storage.NewStream("one", "https://example.com/elsewhere"),
		storage.NewStream("fresh", "https://example.com/3"),
		storage.NewStream("fresh", "https://example.com/3b"),
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "fresh", second[0].Name)

	// Skipped candidates were never persisted
	streams, err := store.ListStreams(ctx, true)
	require.NoError(t, err)
	assert.Len(t, streams, 2)
}

func TestAddStreams_AllowDuplicates(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	ctx := context.Background()

	p := storage.NewPlaylist("test")
	p.AllowDuplicates = true
	p, err := store.AddPlaylist(ctx, p)
	require.NoError(t, err)

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)
	assert.Len(t, added, 2)
}

func TestAddStreams_NothingAdded(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	_, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)
	assert.Nil(t, added)
}

func TestAddStreams_RollbackOnUpdateFailure(t *testing.T) {
	store := newTestStore(t)
	wrapped := &failingStore{Store: store, failUpdate: true}
	svc := NewService(wrapped, nil)
	ctx := context.Background()

	p, err := store.AddPlaylist(ctx, storage.NewPlaylist("test"))
	require.NoError(t, err)

	_, err = svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.Error(t, err)

	// The stream persisted before the failed update was removed again
	streams, err := store.ListStreams(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, streams)

	// The stored playlist holds no dangling reference to the removed stream
	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Empty(t, got.StreamIDs)
}

func TestAddSources_RollbackOnUpdateFailure(t *testing.T) {
	store := newTestStore(t)
	wrapped := &failingStore{Store: store, failUpdate: true}
	svc := NewService(wrapped, nil)
	ctx := context.Background()

	p, err := store.AddPlaylist(ctx, storage.NewPlaylist("test"))
	require.NoError(t, err)

	_, err = svc.AddSources(ctx, p.ID, []*storage.Source{
		storage.NewSource("chan", "https://www.youtube.com/@chan"),
	})
	require.Error(t, err)

	sources, err := store.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, sources)

	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Empty(t, got.SourceIDs)
}

func TestDeleteStreams(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
		storage.NewStream("two", "https://example.com/2"),
	})
	require.NoError(t, err)

	deleted, err := svc.DeleteStreams(ctx, p.ID, []string{added[0].ID, "missing"}, false, false)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	// Soft-deleted and unlinked; the other stream is untouched
	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{added[1].ID}, got.StreamIDs)

	_, err = store.GetStream(ctx, added[0].ID, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetStream(ctx, added[0].ID, true)
	assert.NoError(t, err)
}

func TestDeleteStreams_Permanent(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)

	_, err = svc.DeleteStreams(ctx, p.ID, []string{added[0].ID}, false, true)
	require.NoError(t, err)

	_, err = store.GetStream(ctx, added[0].ID, true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRestoreStreams_Relinks(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)
	_, err = svc.DeleteStreams(ctx, p.ID, []string{added[0].ID}, false, false)
	require.NoError(t, err)

	restored, err := svc.RestoreStreams(ctx, p.ID, []string{added[0].ID})
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Nil(t, restored[0].Deleted)

	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{added[0].ID}, got.StreamIDs)
}

func TestRestoreStreams_DuplicateStaysUnlinked(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("one", "https://example.com/1"),
	})
	require.NoError(t, err)
	_, err = svc.DeleteStreams(ctx, p.ID, []string{added[0].ID}, false, false)
	require.NoError(t, err)

	// A live stream with the same URI now occupies the slot
	_, err = svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("replacement", "https://example.com/1"),
	})
	require.NoError(t, err)

	restored, err := svc.RestoreStreams(ctx, p.ID, []string{added[0].ID})
	require.NoError(t, err)
	require.Len(t, restored, 1)

	// Restored at the store level but not re-linked
	st, err := store.GetStream(ctx, added[0].ID, false)
	require.NoError(t, err)
	assert.Nil(t, st.Deleted)

	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.NotContains(t, got.StreamIDs, added[0].ID)
}

func TestStreamsByPlaylist_SkipsDangling(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	ctx := context.Background()

	st, err := store.AddStream(ctx, storage.NewStream("one", "https://example.com/1"))
	require.NoError(t, err)

	p := storage.NewPlaylist("test")
	p.StreamIDs = []string{"gone", st.ID}
	p, err = store.AddPlaylist(ctx, p)
	require.NoError(t, err)

	streams, err := svc.StreamsByPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, st.ID, streams[0].ID)
}

func TestSourcesByPlaylist_FetchEnabledOnly(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	disabled := storage.NewSource("off", "https://www.youtube.com/@off")
	disabled.EnableFetch = false
	added, err := svc.AddSources(ctx, p.ID, []*storage.Source{
		storage.NewSource("on", "https://www.youtube.com/@on"),
		disabled,
	})
	require.NoError(t, err)
	require.Len(t, added, 2)

	all, err := svc.SourcesByPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := svc.SourcesByPlaylist(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "on", enabled[0].Name)
}

func TestMoveStream(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("a", "https://example.com/a"),
		storage.NewStream("b", "https://example.com/b"),
		storage.NewStream("c", "https://example.com/c"),
	})
	require.NoError(t, err)
	a, b, c := added[0].ID, added[1].ID, added[2].ID

	require.NoError(t, svc.MoveStream(ctx, p.ID, 0, 2))
	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{b, c, a}, got.StreamIDs)

	require.NoError(t, svc.MoveStream(ctx, p.ID, 2, 0))
	got, err = store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, got.StreamIDs)
}

func TestMoveStream_OutOfRange(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	added, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{
		storage.NewStream("a", "https://example.com/a"),
	})
	require.NoError(t, err)

	err = svc.MoveStream(ctx, p.ID, 0, 1)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = svc.MoveStream(ctx, p.ID, -1, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Rejected moves leave the list untouched
	got, err := store.GetPlaylist(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{added[0].ID}, got.StreamIDs)
}

func TestAddSources_SkipsDuplicates(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	first, err := svc.AddSources(ctx, p.ID, []*storage.Source{
		storage.NewSource("chan", "https://www.youtube.com/@chan"),
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.AddSources(ctx, p.ID, []*storage.Source{
		storage.NewSource("chan", "https://www.youtube.com/@other"),
	})
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestDeleteSources_KeepsStreams(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	p := newTestPlaylist(t, store)
	ctx := context.Background()

	sources, err := svc.AddSources(ctx, p.ID, []*storage.Source{
		storage.NewSource("chan", "https://www.youtube.com/@chan"),
	})
	require.NoError(t, err)

	st := storage.NewStream("clip", "https://example.com/v")
	st.StreamSourceID = sources[0].ID
	streams, err := svc.AddStreams(ctx, p.ID, []*storage.Stream{st})
	require.NoError(t, err)

	_, err = svc.DeleteSources(ctx, p.ID, []string{sources[0].ID}, false, false)
	require.NoError(t, err)

	// Streams produced by the source survive its deletion
	got, err := store.GetStream(ctx, streams[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, sources[0].ID, got.StreamSourceID)
}
