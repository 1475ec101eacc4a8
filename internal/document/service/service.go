package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/repository"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 10 * time.Minute
)

// Store is the authoritative document state. Reads are served from an
// in-memory LRU; every mutation is written through to the repository as a
// whole document before the cache is refreshed.
type Store struct {
	repo  repository.Repository
	cache *expirable.LRU[string, *document.Document]
	locks sync.Map // map[string]*sync.Mutex
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

// WithCache sizes the in-memory document cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Store) {
		if size <= 0 {
			size = defaultCacheSize
		}
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		s.cache = expirable.NewLRU[string, *document.Document](size, nil, ttl)
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		cache: expirable.NewLRU[string, *document.Document](defaultCacheSize, nil, defaultCacheTTL),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryStore returns a Store backed by the in-memory repository.
func NewMemoryStore(opts ...Option) *Store {
	return NewStore(repository.NewMemoryRepo(), opts...)
}

// lock acquires the per-document mutex. An entry removed by Delete while we
// waited on it is stale, so we retry with the current one.
func (s *Store) lock(id string) *sync.Mutex {
	for {
		v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		if cur, ok := s.locks.Load(id); ok && cur == mu {
			return mu
		}
		mu.Unlock()
	}
}

// unlock releases mu and forgets it when the document does not exist.
func (s *Store) unlock(id string, mu *sync.Mutex, gone bool) {
	if gone {
		s.locks.CompareAndDelete(id, mu)
	}
	mu.Unlock()
}

// timestamp truncates to milliseconds so values survive a Mongo round-trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// touch advances UpdatedAt strictly, even when the clock has not moved.
func (s *Store) touch(d *document.Document) {
	now := s.timestamp()
	if !now.After(d.UpdatedAt) {
		now = d.UpdatedAt.Add(time.Millisecond)
	}
	d.UpdatedAt = now
}

// Create stores a new document with a fresh id and a single empty page.
func (s *Store) Create(ctx context.Context, title string) (*document.Document, error) {
	return s.create(ctx, s.newID(), title)
}

func (s *Store) create(ctx context.Context, id, title string) (*document.Document, error) {
	if strings.TrimSpace(title) == "" {
		title = document.DefaultTitle
	}
	now := s.timestamp()
	d := &document.Document{
		ID:        id,
		Title:     title,
		Pages:     []string{""},
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []document.Version{},
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.cache.Add(id, d.Clone())
	return d, nil
}

// Load returns a copy of the document. A cache miss is filled under the
// document lock so a concurrent Delete cannot be undone by a stale read.
func (s *Store) Load(ctx context.Context, id string) (*document.Document, error) {
	if d, ok := s.cache.Get(id); ok {
		return d.Clone(), nil
	}
	mu := s.lock(id)
	d, err := s.current(ctx, id)
	s.unlock(id, mu, errors.Is(err, document.ErrNotFound))
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Ensure loads the document; when create is set an unknown id is created
// under that id instead of failing.
func (s *Store) Ensure(ctx context.Context, id string, create bool) (*document.Document, error) {
	d, err := s.Load(ctx, id)
	if err == nil || !create || !errors.Is(err, document.ErrNotFound) {
		return d, err
	}
	d, err = s.create(ctx, id, "")
	if errors.Is(err, document.ErrExists) {
		return s.Load(ctx, id)
	}
	return d, err
}

// current returns the cached instance; callers must not mutate it and must
// hold the document lock.
func (s *Store) current(ctx context.Context, id string) (*document.Document, error) {
	if d, ok := s.cache.Get(id); ok {
		return d, nil
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, d)
	return d, nil
}

// List returns every document, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*document.Document, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	mu := s.lock(id)
	err := s.repo.Delete(ctx, id)
	if err == nil {
		s.cache.Remove(id)
	}
	s.unlock(id, mu, err == nil || errors.Is(err, document.ErrNotFound))
	return err
}

// Mutate is the single read-modify-write path. fn works on a private copy;
// if fn or the repository write fails, the previous state stays in place.
func (s *Store) Mutate(ctx context.Context, id string, fn func(d *document.Document) error) (*document.Document, error) {
	mu := s.lock(id)
	cur, err := s.current(ctx, id)
	if err != nil {
		s.unlock(id, mu, errors.Is(err, document.ErrNotFound))
		return nil, err
	}
	defer mu.Unlock()
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Pages = document.ClonePages(next.Pages)
	s.touch(next)
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save document %s: %w", id, err)
	}
	s.cache.Add(id, next.Clone())
	return next, nil
}

// ApplyContentUpdate replaces the pages wholesale. Locked documents refuse it.
func (s *Store) ApplyContentUpdate(ctx context.Context, id string, pages []string) (*document.Document, error) {
	return s.Mutate(ctx, id, func(d *document.Document) error {
		if d.IsLocked {
			return document.ErrLocked
		}
		d.Pages = document.ClonePages(pages)
		return nil
	})
}

func (s *Store) SetTitle(ctx context.Context, id, title string) (*document.Document, error) {
	return s.Mutate(ctx, id, func(d *document.Document) error {
		d.Title = title
		return nil
	})
}

func (s *Store) SetLocked(ctx context.Context, id string, locked bool) (*document.Document, error) {
	return s.Mutate(ctx, id, func(d *document.Document) error {
		d.IsLocked = locked
		return nil
	})
}

// Replace applies a REST PUT: title and pages are each optional. A pages
// change on a locked document is refused; a title change is not.
func (s *Store) Replace(ctx context.Context, id string, title *string, pages []string) (*document.Document, error) {
	return s.Mutate(ctx, id, func(d *document.Document) error {
		if pages != nil {
			if d.IsLocked {
				return document.ErrLocked
			}
			d.Pages = document.ClonePages(pages)
		}
		if title != nil {
			d.Title = *title
		}
		return nil
	})
}
