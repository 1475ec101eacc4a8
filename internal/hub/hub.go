// Package hub runs one authoritative coordinator per open document. A Hub
// owns the roster, the lock flag, and every mutation of its document; all of
// them happen on the hub goroutine, one message at a time.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/internal/events"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/protocol"
	"github.com/gogotex/pagesync/internal/versions"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gogotex/pagesync/pkg/metrics"
)

var ErrClosed = errors.New("hub closed")

const opTimeout = 10 * time.Second

type Hub struct {
	docID    string
	store    *service.Store
	versions *versions.Manager
	events   events.Publisher

	roster   *presence.Tracker
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	quit   chan struct{}
	done   chan struct{}
}

func newHub(doc *document.Document, store *service.Store, vm *versions.Manager, pub events.Publisher, inboxSize int) *Hub {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	if pub == nil {
		pub = events.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		docID:    doc.ID,
		store:    store,
		versions: vm,
		events:   pub,
		roster:   presence.NewTracker(doc.IsLocked),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		inbox:    make(chan func(), inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) DocumentID() string { return h.docID }

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case fn := <-h.inbox:
			fn()
		case <-h.quit:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.cancel()
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
		h.roster.Remove(id)
		metrics.ActiveSessions.Dec()
	}
}

// Close stops the hub and closes every session. It is safe to call more
// than once.
func (h *Hub) Close() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.done
}

func (h *Hub) submit(ctx context.Context, fn func()) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.inbox <- fn:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the hub goroutine and waits for it.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := h.submit(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, opTimeout)
}

// Join registers s, sends it the full document once, and broadcasts the new
// roster to everyone including s.
func (h *Hub) Join(ctx context.Context, s *Session) error {
	var err error
	cerr := h.call(ctx, func() {
		opCtx, cancel := h.opContext()
		defer cancel()
		var doc *document.Document
		doc, err = h.store.Load(opCtx, h.docID)
		if err != nil {
			return
		}
		h.sessions[s.ID] = s
		h.roster.Add(presence.Session{
			SessionID: s.ID,
			UserID:    s.Identity.UserID,
			UserName:  s.Identity.UserName,
			Color:     s.Identity.Color,
			Role:      string(s.Identity.Role),
			JoinedAt:  s.JoinedAt,
		})
		h.roster.SetLock(doc.IsLocked)
		metrics.ActiveSessions.Inc()
		logger.Infof("hub %s: %s (%s) joined as session %s", h.docID, s.Identity.UserName, s.Identity.UserID, s.ID)
		h.publish(events.Event{Type: events.SessionJoined, UserID: s.Identity.UserID, SessionID: s.ID})

		if !h.sendTo(s, protocol.DocumentState{
			Type:     protocol.TypeDocumentState,
			Document: doc,
			Users:    h.roster.Snapshot(),
		}) {
			// already dropped, and the roster without s went out
			return
		}
		h.broadcastUserList()
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Leave removes s and broadcasts the new roster. It returns once the session
// is gone.
func (h *Hub) Leave(s *Session) {
	_ = h.call(context.Background(), func() {
		if h.remove(s) {
			logger.Infof("hub %s: session %s left", h.docID, s.ID)
			h.broadcastUserList()
		}
	})
	s.Close()
}

func (h *Hub) remove(s *Session) bool {
	if _, ok := h.sessions[s.ID]; !ok {
		return false
	}
	delete(h.sessions, s.ID)
	h.roster.Remove(s.ID)
	metrics.ActiveSessions.Dec()
	h.publish(events.Event{Type: events.SessionLeft, UserID: s.Identity.UserID, SessionID: s.ID})
	return true
}

// Receive queues one raw frame from s. Frames from one session are handled
// in the order they are received.
func (h *Hub) Receive(ctx context.Context, s *Session, raw []byte) error {
	allowed := s.allow()
	var (
		in   protocol.Inbound
		derr error
	)
	if allowed {
		in, derr = protocol.Decode(raw)
	}
	return h.submit(ctx, func() {
		if _, ok := h.sessions[s.ID]; !ok {
			return
		}
		if !allowed {
			h.reject(s, protocol.CodeRateLimited, "too many messages")
			return
		}
		if derr != nil {
			logger.Debugf("hub %s: dropping frame from %s: %v", h.docID, s.ID, derr)
			h.reject(s, protocol.CodeMalformed, derr.Error())
			return
		}
		metrics.HubMessages.WithLabelValues("in", in.Type).Inc()
		h.handle(s, in)
	})
}

func (h *Hub) handle(s *Session, in protocol.Inbound) {
	switch in.Type {
	case protocol.TypeContentUpdate:
		h.contentUpdate(s, in.Pages)
	case protocol.TypePresence:
		h.updatePresence(s, in.Caret, in.Status)
	case protocol.TypeTypingStatus:
		h.typingStatus(s, *in.IsTyping)
	case protocol.TypeSaveVersion:
		h.saveVersion(s, in.Summary)
	case protocol.TypeToggleLock:
		h.toggleLock(s, *in.Locked)
	}
}

func (h *Hub) contentUpdate(s *Session, pages []string) {
	if h.roster.Locked() {
		h.reject(s, protocol.CodeLocked, document.ErrLocked.Error())
		return
	}
	ctx, cancel := h.opContext()
	defer cancel()
	doc, err := h.store.ApplyContentUpdate(ctx, h.docID, pages)
	if err != nil {
		h.rejectErr(s, err)
		return
	}
	// Every session of the same user already shows this edit.
	h.broadcast(protocol.ContentUpdate{
		Type:   protocol.TypeContentUpdate,
		UserID: s.Identity.UserID,
		Pages:  doc.Pages,
	}, func(o *Session) bool { return o.Identity.UserID != s.Identity.UserID })
	h.publish(events.Event{Type: events.ContentUpdated, UserID: s.Identity.UserID, SessionID: s.ID, Pages: len(doc.Pages)})
}

func (h *Hub) updatePresence(s *Session, caret *presence.Caret, status presence.Status) {
	if caret != nil {
		h.roster.SetCaret(s.ID, *caret)
	} else {
		h.roster.ClearCaret(s.ID)
	}
	if status != "" {
		h.roster.SetStatus(s.ID, status)
	}
	cur, _ := h.roster.Get(s.ID)
	h.broadcast(protocol.Presence{
		Type:      protocol.TypePresence,
		SessionID: s.ID,
		UserID:    cur.UserID,
		UserName:  cur.UserName,
		Color:     cur.Color,
		Status:    cur.Status,
		Caret:     cur.Caret,
	}, func(o *Session) bool { return o != s })
}

func (h *Hub) typingStatus(s *Session, typing bool) {
	status := presence.StatusViewing
	if typing {
		status = presence.StatusTyping
	}
	h.roster.SetStatus(s.ID, status)
	h.broadcastUserList()
}

func (h *Hub) saveVersion(s *Session, summary string) {
	ctx, cancel := h.opContext()
	defer cancel()
	v, err := h.versions.Create(ctx, h.docID, s.Identity.UserName, summary)
	if err != nil {
		h.rejectErr(s, err)
		return
	}
	logger.Infof("hub %s: %s saved version %s", h.docID, s.Identity.UserName, v.ID)
	h.broadcast(protocol.VersionCreated{Type: protocol.TypeVersionCreated, Version: v}, all)
	h.publish(events.Event{Type: events.VersionCreated, UserID: s.Identity.UserID, VersionID: v.ID})
}

func (h *Hub) toggleLock(s *Session, locked bool) {
	if !s.Identity.IsAdmin() {
		h.reject(s, protocol.CodeForbidden, "only admins can change the lock")
		return
	}
	ctx, cancel := h.opContext()
	defer cancel()
	doc, err := h.store.SetLocked(ctx, h.docID, locked)
	if err != nil {
		h.rejectErr(s, err)
		return
	}
	h.roster.SetLock(doc.IsLocked)
	logger.Infof("hub %s: %s set lock=%t", h.docID, s.Identity.UserName, doc.IsLocked)
	h.broadcast(protocol.LockState{Type: protocol.TypeLockState, Locked: doc.IsLocked, UserID: s.Identity.UserID}, all)
	h.publish(events.Event{Type: events.LockChanged, UserID: s.Identity.UserID, Locked: &doc.IsLocked})
}

// Restore rolls the live pages back to a saved version and pushes them to
// every session.
func (h *Hub) Restore(ctx context.Context, versionID string) (*document.Document, error) {
	var (
		doc *document.Document
		err error
	)
	cerr := h.call(ctx, func() {
		opCtx, cancel := h.opContext()
		defer cancel()
		doc, err = h.versions.Restore(opCtx, h.docID, versionID)
		if err != nil {
			return
		}
		h.broadcast(protocol.ContentUpdate{
			Type:      protocol.TypeContentUpdate,
			Pages:     doc.Pages,
			VersionID: versionID,
		}, all)
		h.publish(events.Event{Type: events.VersionRestored, VersionID: versionID, Pages: len(doc.Pages)})
	})
	if cerr != nil {
		return nil, cerr
	}
	return doc, err
}

// Replace applies a REST update. Page changes are pushed to every session.
func (h *Hub) Replace(ctx context.Context, title *string, pages []string) (*document.Document, error) {
	var (
		doc *document.Document
		err error
	)
	cerr := h.call(ctx, func() {
		opCtx, cancel := h.opContext()
		defer cancel()
		doc, err = h.store.Replace(opCtx, h.docID, title, pages)
		if err != nil || pages == nil {
			return
		}
		h.broadcast(protocol.ContentUpdate{Type: protocol.TypeContentUpdate, Pages: doc.Pages}, all)
		h.publish(events.Event{Type: events.ContentUpdated, Pages: len(doc.Pages)})
	})
	if cerr != nil {
		return nil, cerr
	}
	return doc, err
}

// Users returns the current roster.
func (h *Hub) Users(ctx context.Context) ([]presence.Session, error) {
	var out []presence.Session
	if err := h.call(ctx, func() { out = h.roster.Snapshot() }); err != nil {
		return nil, err
	}
	return out, nil
}

func all(*Session) bool { return true }

func (h *Hub) broadcastUserList() {
	h.broadcast(protocol.UserList{Type: protocol.TypeUserList, Users: h.roster.Snapshot()}, all)
}

// broadcast encodes msg once and queues it for every session matching
// include. Sessions whose queue is full are dropped.
func (h *Hub) broadcast(msg protocol.Outbound, include func(*Session) bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("hub %s: encode %T: %v", h.docID, msg, err)
		return
	}
	var dropped []*Session
	for _, s := range h.sessions {
		if !include(s) {
			continue
		}
		if !s.enqueue(b) {
			dropped = append(dropped, s)
			continue
		}
		metrics.HubMessages.WithLabelValues("out", msg.MessageType()).Inc()
	}
	h.drop(dropped)
}

// sendTo queues msg for s alone. It reports false when s was dropped.
func (h *Hub) sendTo(s *Session, msg protocol.Outbound) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("hub %s: encode %T: %v", h.docID, msg, err)
		return true
	}
	if !s.enqueue(b) {
		h.drop([]*Session{s})
		return false
	}
	metrics.HubMessages.WithLabelValues("out", msg.MessageType()).Inc()
	return true
}

func (h *Hub) drop(slow []*Session) {
	if len(slow) == 0 {
		return
	}
	for _, s := range slow {
		if h.remove(s) {
			logger.Warnf("hub %s: dropping slow session %s (%s)", h.docID, s.ID, s.Identity.UserName)
			metrics.DroppedSessions.Inc()
		}
		s.Close()
	}
	h.broadcastUserList()
}

func (h *Hub) reject(s *Session, code, message string) {
	metrics.RejectedMutations.WithLabelValues(code).Inc()
	logger.Debugf("hub %s: rejecting message from %s: %s", h.docID, s.ID, message)
	h.sendTo(s, protocol.Error{Type: protocol.TypeError, Code: code, Message: message})
}

func (h *Hub) rejectErr(s *Session, err error) {
	switch {
	case errors.Is(err, document.ErrLocked):
		h.reject(s, protocol.CodeLocked, err.Error())
	case document.IsNotFound(err):
		h.reject(s, protocol.CodeNotFound, err.Error())
	default:
		logger.Errorf("hub %s: %v", h.docID, err)
		h.reject(s, protocol.CodeInternal, "internal error")
	}
}

func (h *Hub) publish(e events.Event) {
	e.DocumentID = h.docID
	e.At = time.Now().UTC()
	_ = h.events.Publish(h.ctx, e)
}
