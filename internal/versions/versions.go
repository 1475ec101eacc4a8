// Package versions creates, lists, and restores immutable page snapshots.
package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gogotex/pagesync/pkg/metrics"
)

// DefaultSummary is recorded when a version is saved without a summary.
const DefaultSummary = "Manual Save"

const archiveTimeout = 30 * time.Second

// Archive receives a copy of every created version. Failures are logged and
// never affect the live document. Fetch returns an error wrapping
// document.ErrVersionNotFound for a version it never stored.
type Archive interface {
	Archive(ctx context.Context, docID string, v document.Version) error
	Fetch(ctx context.Context, docID, versionID string) (document.Version, error)
}

type Manager struct {
	store   *service.Store
	archive Archive
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewManager returns a Manager. archive may be nil.
func NewManager(store *service.Store, archive Archive) *Manager {
	return &Manager{store: store, archive: archive, now: time.Now}
}

// Create snapshots the current pages and prepends the version to history.
// Ids are v1, v2, ... in creation order.
func (m *Manager) Create(ctx context.Context, docID, editor, summary string) (document.Version, error) {
	if strings.TrimSpace(summary) == "" {
		summary = DefaultSummary
	}
	var created document.Version
	_, err := m.store.Mutate(ctx, docID, func(d *document.Document) error {
		v := document.Version{
			ID:        fmt.Sprintf("v%d", len(d.Versions)+1),
			Editor:    editor,
			Timestamp: m.now().UTC().Truncate(time.Millisecond),
			Summary:   summary,
			Pages:     document.ClonePages(d.Pages),
		}
		d.Versions = append([]document.Version{v}, d.Versions...)
		created = v.Clone()
		return nil
	})
	if err != nil {
		return document.Version{}, fmt.Errorf("create version: %w", err)
	}
	metrics.VersionsCreated.Inc()
	m.archiveAsync(docID, created)
	return created, nil
}

// List returns the version history, newest first.
func (m *Manager) List(ctx context.Context, docID string) ([]document.Version, error) {
	d, err := m.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if d.Versions == nil {
		return []document.Version{}, nil
	}
	return d.Versions, nil
}

// Restore copies a version's pages back into the live document. History is
// left exactly as it was and no new version is created. A version missing
// from the embedded history is looked up in the archive.
func (m *Manager) Restore(ctx context.Context, docID, versionID string) (*document.Document, error) {
	d, err := m.restore(ctx, docID, versionID, nil)
	if m.archive == nil || !errors.Is(err, document.ErrVersionNotFound) {
		return d, err
	}
	v, ferr := m.archive.Fetch(ctx, docID, versionID)
	if ferr != nil {
		if !errors.Is(ferr, document.ErrVersionNotFound) {
			logger.Warnf("versions: fetch archived %s/%s failed: %v", docID, versionID, ferr)
		}
		return nil, err
	}
	if v.ID != versionID {
		return nil, err
	}
	logger.Infof("versions: restoring %s/%s from the archive", docID, versionID)
	return m.restore(ctx, docID, versionID, &v)
}

func (m *Manager) restore(ctx context.Context, docID, versionID string, archived *document.Version) (*document.Document, error) {
	return m.store.Mutate(ctx, docID, func(d *document.Document) error {
		if d.IsLocked {
			return document.ErrLocked
		}
		v, ok := d.FindVersion(versionID)
		if !ok && archived != nil {
			v, ok = *archived, true
		}
		if !ok {
			return fmt.Errorf("%s: %w", versionID, document.ErrVersionNotFound)
		}
		d.Pages = document.ClonePages(v.Pages)
		return nil
	})
}

func (m *Manager) archiveAsync(docID string, v document.Version) {
	if m.archive == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := m.archive.Archive(ctx, docID, v); err != nil {
			logger.Warnf("versions: archive %s/%s failed: %v", docID, v.ID, err)
		}
	}()
}

// Wait blocks until pending archive uploads have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
