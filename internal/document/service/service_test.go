package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/repository"
	"github.com/stretchr/testify/require"
)

// flakyRepo fails Save on demand.
type flakyRepo struct {
	*repository.MemoryRepo
	failSave bool
}

func (f *flakyRepo) Save(ctx context.Context, d *document.Document) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.MemoryRepo.Save(ctx, d)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t }
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestStoreCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	d, err := s.Create(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, document.DefaultTitle, d.Title)
	require.Equal(t, []string{""}, d.Pages)
	require.False(t, d.IsLocked)
	require.Equal(t, d.CreatedAt, d.UpdatedAt)

	got, err := s.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)

	_, err = s.Load(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestStoreApplyContentUpdateBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithClock(fixedClock()))
	d, err := s.Create(ctx, "notes")
	require.NoError(t, err)

	u1, err := s.ApplyContentUpdate(ctx, d.ID, []string{"hello"})
	require.NoError(t, err)
	require.True(t, u1.UpdatedAt.After(d.UpdatedAt), "clock did not move but updated_at must")

	u2, err := s.ApplyContentUpdate(ctx, d.ID, nil)
	require.NoError(t, err)
	require.True(t, u2.UpdatedAt.After(u1.UpdatedAt))
	require.Equal(t, []string{""}, u2.Pages, "empty pages normalize to one empty page")
}

func TestStoreLockedRefusesContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)
	_, err = s.ApplyContentUpdate(ctx, d.ID, []string{"before"})
	require.NoError(t, err)

	_, err = s.SetLocked(ctx, d.ID, true)
	require.NoError(t, err)

	_, err = s.ApplyContentUpdate(ctx, d.ID, []string{"after"})
	require.ErrorIs(t, err, document.ErrLocked)

	title := "renamed"
	_, err = s.Replace(ctx, d.ID, &title, []string{"after"})
	require.ErrorIs(t, err, document.ErrLocked)

	got, err := s.Replace(ctx, d.ID, &title, nil)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)
	require.Equal(t, []string{"before"}, got.Pages)
}

func TestStoreFailedSaveKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{MemoryRepo: repository.NewMemoryRepo()}
	s := NewStore(repo)
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)
	_, err = s.ApplyContentUpdate(ctx, d.ID, []string{"good"})
	require.NoError(t, err)

	repo.failSave = true
	_, err = s.ApplyContentUpdate(ctx, d.ID, []string{"lost"})
	require.Error(t, err)

	got, err := s.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, got.Pages)
}

func TestStoreLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)

	got, err := s.Load(ctx, d.ID)
	require.NoError(t, err)
	got.Pages[0] = "scribble"

	again, err := s.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "", again.Pages[0])
}

func TestStoreConcurrentUpdatesAreWhole(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("w%d", i)
			_, err := s.ApplyContentUpdate(ctx, d.ID, []string{tag, tag, tag})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Pages, 3)
	require.Equal(t, got.Pages[0], got.Pages[1])
	require.Equal(t, got.Pages[1], got.Pages[2])
}

func TestStoreEnsure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Ensure(ctx, "room-1", false)
	require.ErrorIs(t, err, document.ErrNotFound)

	d, err := s.Ensure(ctx, "room-1", true)
	require.NoError(t, err)
	require.Equal(t, "room-1", d.ID)
	require.Equal(t, []string{""}, d.Pages)

	again, err := s.Ensure(ctx, "room-1", true)
	require.NoError(t, err)
	require.Equal(t, d.CreatedAt, again.CreatedAt)
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithClock(steppingClock()))
	a, err := s.Create(ctx, "a")
	require.NoError(t, err)
	b, err := s.Create(ctx, "b")
	require.NoError(t, err)
	_, err = s.ApplyContentUpdate(ctx, a.ID, []string{"newer"})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)

	require.NoError(t, s.Delete(ctx, b.ID))
	_, err = s.Load(ctx, b.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, b.ID), document.ErrNotFound)
}

// blockingRepo parks Get until released.
type blockingRepo struct {
	*repository.MemoryRepo
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.MemoryRepo.Get(ctx, id)
}

func lockCount(s *Store) int {
	n := 0
	s.locks.Range(func(any, any) bool { n++; return true })
	return n
}

func TestStoreDeleteForgetsLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)
	_, err = s.ApplyContentUpdate(ctx, d.ID, []string{"x"})
	require.NoError(t, err)
	require.Equal(t, 1, lockCount(s))

	require.NoError(t, s.Delete(ctx, d.ID))
	require.Equal(t, 0, lockCount(s))

	_, err = s.Load(ctx, "never-existed")
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = s.ApplyContentUpdate(ctx, "never-existed", nil)
	require.ErrorIs(t, err, document.ErrNotFound)
	require.Equal(t, 0, lockCount(s))
}

func TestStoreLoadRacingDeleteDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{MemoryRepo: repository.NewMemoryRepo()}
	s := NewStore(repo)
	d, err := s.Create(ctx, "t")
	require.NoError(t, err)
	s.cache.Remove(d.ID)

	repo.entered = make(chan struct{})
	repo.release = make(chan struct{})
	loaded := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx, d.ID)
		loaded <- err
	}()
	<-repo.entered
	repo.entered = nil

	deleted := make(chan error, 1)
	go func() { deleted <- s.Delete(ctx, d.ID) }()
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	require.NoError(t, <-loaded)
	require.NoError(t, <-deleted)

	_, err = s.Load(ctx, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
}
