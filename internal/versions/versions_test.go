package versions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/stretchr/testify/require"
)

type recordingArchive struct {
	mu   sync.Mutex
	got  map[string]document.Version
	fail bool
}

func (a *recordingArchive) Archive(_ context.Context, docID string, v document.Version) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("bucket gone")
	}
	if a.got == nil {
		a.got = map[string]document.Version{}
	}
	a.got[docID+"/"+v.ID] = v
	return nil
}

func (a *recordingArchive) Fetch(_ context.Context, docID, versionID string) (document.Version, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return document.Version{}, errors.New("bucket gone")
	}
	v, ok := a.got[docID+"/"+versionID]
	if !ok {
		return document.Version{}, document.ErrVersionNotFound
	}
	return v, nil
}

func setup(t *testing.T, archive Archive) (*Manager, *service.Store, string) {
	t.Helper()
	store := service.NewMemoryStore()
	d, err := store.Create(context.Background(), "doc")
	require.NoError(t, err)
	return NewManager(store, archive), store, d.ID
}

func TestVersionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, store, id := setup(t, nil)

	_, err := store.ApplyContentUpdate(ctx, id, []string{"one", "two"})
	require.NoError(t, err)

	v, err := m.Create(ctx, id, "e", "s")
	require.NoError(t, err)
	require.Equal(t, "v1", v.ID)
	require.Equal(t, []string{"one", "two"}, v.Pages)

	_, err = store.ApplyContentUpdate(ctx, id, []string{"changed"})
	require.NoError(t, err)

	restored, err := m.Restore(ctx, id, v.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, restored.Pages)
	require.Len(t, restored.Versions, 1)
	require.Equal(t, "v1", restored.Versions[0].ID)

	// restored pages do not alias the stored version
	restored.Pages[0] = "scribble"
	list, err := m.List(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, list[0].Pages)
}

func TestCreateVersionNewestFirst(t *testing.T) {
	ctx := context.Background()
	m, store, id := setup(t, nil)

	_, err := m.Create(ctx, id, "ann", "  ")
	require.NoError(t, err)
	_, err = store.ApplyContentUpdate(ctx, id, []string{"later"})
	require.NoError(t, err)
	v2, err := m.Create(ctx, id, "ben", "second")
	require.NoError(t, err)
	require.Equal(t, "v2", v2.ID)

	list, err := m.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "v2", list[0].ID)
	require.Equal(t, "v1", list[1].ID)
	require.Equal(t, DefaultSummary, list[1].Summary)
	require.Equal(t, "ann", list[1].Editor)
	require.Equal(t, []string{""}, list[1].Pages)
}

func TestRestoreUnknownVersion(t *testing.T) {
	m, _, id := setup(t, nil)
	_, err := m.Restore(context.Background(), id, "v9")
	require.ErrorIs(t, err, document.ErrVersionNotFound)
	require.True(t, document.IsNotFound(err))

	_, err = m.Restore(context.Background(), "missing", "v1")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestRestoreRefusedWhileLocked(t *testing.T) {
	ctx := context.Background()
	m, store, id := setup(t, nil)
	v, err := m.Create(ctx, id, "e", "s")
	require.NoError(t, err)
	_, err = store.SetLocked(ctx, id, true)
	require.NoError(t, err)

	_, err = m.Restore(ctx, id, v.ID)
	require.ErrorIs(t, err, document.ErrLocked)
}

func TestCreateArchivesSnapshot(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchive{}
	m, _, id := setup(t, archive)

	v, err := m.Create(ctx, id, "e", "s")
	require.NoError(t, err)
	m.Wait()

	archive.mu.Lock()
	defer archive.mu.Unlock()
	require.Equal(t, v, archive.got[id+"/v1"])
}

func TestArchiveFailureDoesNotFailCreate(t *testing.T) {
	m, _, id := setup(t, &recordingArchive{fail: true})
	_, err := m.Create(context.Background(), id, "e", "s")
	require.NoError(t, err)
	m.Wait()
}

func TestRestoreFallsBackToArchive(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchive{}
	m, store, id := setup(t, archive)
	// history was lost but the snapshot survives in the bucket
	require.NoError(t, archive.Archive(ctx, id, document.Version{ID: "v7", Summary: "old", Pages: []string{"from", "bucket"}}))

	restored, err := m.Restore(ctx, id, "v7")
	require.NoError(t, err)
	require.Equal(t, []string{"from", "bucket"}, restored.Pages)
	require.Empty(t, restored.Versions)

	got, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"from", "bucket"}, got.Pages)

	_, err = m.Restore(ctx, id, "v8")
	require.ErrorIs(t, err, document.ErrVersionNotFound)

	_, err = store.SetLocked(ctx, id, true)
	require.NoError(t, err)
	_, err = m.Restore(ctx, id, "v7")
	require.ErrorIs(t, err, document.ErrLocked)
}

func TestRestoreArchiveUnavailable(t *testing.T) {
	m, _, id := setup(t, &recordingArchive{fail: true})
	_, err := m.Restore(context.Background(), id, "v1")
	require.ErrorIs(t, err, document.ErrVersionNotFound)
}
