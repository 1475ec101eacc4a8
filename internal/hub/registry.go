package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/internal/events"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/versions"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gogotex/pagesync/pkg/metrics"
)

type Options struct {
	InboxSize int
	// AutoCreate makes joining an unknown document id create it.
	AutoCreate         bool
	RosterSyncInterval time.Duration
}

type entry struct {
	hub  *Hub
	refs int
}

// Registry starts a hub for a document on first join and stops it when the
// last session leaves. Documents never share a hub or a lock.
type Registry struct {
	store    *service.Store
	versions *versions.Manager
	events   events.Publisher
	mirror   presence.Mirror
	opts     Options

	mu   sync.Mutex
	hubs map[string]*entry
}

// NewRegistry wires the hub dependencies. pub and mirror may be nil.
func NewRegistry(store *service.Store, vm *versions.Manager, pub events.Publisher, mirror presence.Mirror, opts Options) *Registry {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Registry{
		store:    store,
		versions: vm,
		events:   pub,
		mirror:   mirror,
		opts:     opts,
		hubs:     make(map[string]*entry),
	}
}

// Join attaches s to the hub for docID, starting the hub if needed.
func (r *Registry) Join(ctx context.Context, docID string, s *Session) (*Hub, error) {
	h, err := r.acquire(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := h.Join(ctx, s); err != nil {
		r.release(h)
		return nil, err
	}
	return h, nil
}

// Leave detaches s; the hub stops once nobody is left.
func (r *Registry) Leave(h *Hub, s *Session) {
	h.Leave(s)
	r.release(h)
}

func (r *Registry) acquire(ctx context.Context, docID string) (*Hub, error) {
	r.mu.Lock()
	if e, ok := r.hubs[docID]; ok {
		e.refs++
		r.mu.Unlock()
		return e.hub, nil
	}
	r.mu.Unlock()

	doc, err := r.store.Ensure(ctx, docID, r.opts.AutoCreate)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.hubs[docID]; ok {
		e.refs++
		return e.hub, nil
	}
	h := newHub(doc, r.store, r.versions, r.events, r.opts.InboxSize)
	r.hubs[docID] = &entry{hub: h, refs: 1}
	metrics.ActiveHubs.Inc()
	logger.Debugf("registry: started hub for %s", docID)
	return h, nil
}

func (r *Registry) release(h *Hub) {
	r.mu.Lock()
	e, ok := r.hubs[h.docID]
	if !ok || e.hub != h {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.hubs, h.docID)
	metrics.ActiveHubs.Dec()
	r.mu.Unlock()

	h.Close()
	r.clearMirror(h.docID)
	logger.Debugf("registry: stopped idle hub for %s", h.docID)
}

// Lookup returns the running hub for docID, if any.
func (r *Registry) Lookup(docID string) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.hubs[docID]
	if !ok {
		return nil, false
	}
	return e.hub, true
}

// Restore rolls a document back to a version, through its hub when one is
// running so connected sessions see the change.
func (r *Registry) Restore(ctx context.Context, docID, versionID string) (*document.Document, error) {
	if h, ok := r.Lookup(docID); ok {
		doc, err := h.Restore(ctx, versionID)
		if !errors.Is(err, ErrClosed) {
			return doc, err
		}
	}
	return r.versions.Restore(ctx, docID, versionID)
}

// Replace applies a REST update, through the hub when one is running.
func (r *Registry) Replace(ctx context.Context, docID string, title *string, pages []string) (*document.Document, error) {
	if h, ok := r.Lookup(docID); ok {
		doc, err := h.Replace(ctx, title, pages)
		if !errors.Is(err, ErrClosed) {
			return doc, err
		}
	}
	return r.store.Replace(ctx, docID, title, pages)
}

// Delete removes the document and disconnects everyone editing it.
func (r *Registry) Delete(ctx context.Context, docID string) error {
	if err := r.store.Delete(ctx, docID); err != nil {
		return err
	}
	r.mu.Lock()
	e, ok := r.hubs[docID]
	if ok {
		delete(r.hubs, docID)
		metrics.ActiveHubs.Dec()
	}
	r.mu.Unlock()
	if ok {
		e.hub.Close()
		logger.Infof("registry: closed hub for deleted document %s", docID)
	}
	r.clearMirror(docID)
	_ = r.events.Publish(ctx, events.Event{Type: events.DocumentDeleted, DocumentID: docID, At: time.Now().UTC()})
	return nil
}

// Users lists who is connected: the local hub first, then the shared mirror.
func (r *Registry) Users(ctx context.Context, docID string) ([]presence.Session, error) {
	if h, ok := r.Lookup(docID); ok {
		users, err := h.Users(ctx)
		if !errors.Is(err, ErrClosed) {
			return users, err
		}
	}
	if r.mirror != nil {
		users, err := r.mirror.Load(ctx, docID)
		if err != nil {
			return nil, err
		}
		if users != nil {
			return users, nil
		}
	}
	return []presence.Session{}, nil
}

// Run mirrors every live roster until ctx ends. It returns immediately when
// no mirror is configured.
func (r *Registry) Run(ctx context.Context) {
	if r.mirror == nil {
		return
	}
	interval := r.opts.RosterSyncInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.SyncRosters(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SyncRosters writes each running hub's roster to the mirror once.
func (r *Registry) SyncRosters(ctx context.Context) {
	if r.mirror == nil {
		return
	}
	for _, h := range r.running() {
		users, err := h.Users(ctx)
		if err != nil {
			continue
		}
		if err := r.mirror.Store(ctx, h.docID, users); err != nil {
			logger.Warnf("registry: mirror roster for %s failed: %v", h.docID, err)
		}
	}
}

func (r *Registry) running() []*Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Hub, 0, len(r.hubs))
	for _, e := range r.hubs {
		out = append(out, e.hub)
	}
	return out
}

func (r *Registry) clearMirror(docID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.mirror.Delete(ctx, docID); err != nil {
		logger.Warnf("registry: clear mirror for %s failed: %v", docID, err)
	}
}

// Shutdown stops every hub.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	hubs := r.hubs
	r.hubs = make(map[string]*entry)
	r.mu.Unlock()
	for id, e := range hubs {
		e.hub.Close()
		metrics.ActiveHubs.Dec()
		r.clearMirror(id)
	}
}

// Len is the number of running hubs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}
