// Package presence tracks who is connected to a document, where their caret
// is, and whether the document is locked.
package presence

import (
	"sort"
	"time"
)

type Status string

const (
	StatusViewing Status = "Viewing"
	StatusTyping  Status = "Typing"
)

// Caret is a position inside the page list.
type Caret struct {
	PageIndex int `json:"pageIndex"`
	Offset    int `json:"offset"`
}

// Session is one live connection as seen by other collaborators.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Color     string    `json:"color"`
	Role      string    `json:"role"`
	Status    Status    `json:"status"`
	Caret     *Caret    `json:"caret"`
	JoinedAt  time.Time `json:"joined_at"`

	seq uint64
}

// Tracker holds the roster and lock flag for one document. Every setter is a
// plain overwrite; ordering is whatever order calls arrive in. A Tracker is
// owned by a single goroutine and is not safe for concurrent use.
type Tracker struct {
	sessions map[string]*Session
	locked   bool
	seq      uint64
}

func NewTracker(locked bool) *Tracker {
	return &Tracker{sessions: make(map[string]*Session), locked: locked}
}

// Add registers s. New sessions start as Viewing with no caret.
func (t *Tracker) Add(s Session) {
	t.seq++
	s.seq = t.seq
	if s.Status == "" {
		s.Status = StatusViewing
	}
	s.Caret = nil
	t.sessions[s.SessionID] = &s
}

// Remove drops the session and reports whether it was present.
func (t *Tracker) Remove(sessionID string) bool {
	if _, ok := t.sessions[sessionID]; !ok {
		return false
	}
	delete(t.sessions, sessionID)
	return true
}

func (t *Tracker) Get(sessionID string) (Session, bool) {
	s, ok := t.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return s.copy(), true
}

func (t *Tracker) SetStatus(sessionID string, status Status) bool {
	s, ok := t.sessions[sessionID]
	if ok {
		s.Status = status
	}
	return ok
}

func (t *Tracker) SetCaret(sessionID string, c Caret) bool {
	s, ok := t.sessions[sessionID]
	if ok {
		s.Caret = &c
	}
	return ok
}

func (t *Tracker) ClearCaret(sessionID string) bool {
	s, ok := t.sessions[sessionID]
	if ok {
		s.Caret = nil
	}
	return ok
}

func (t *Tracker) SetLock(locked bool) { t.locked = locked }

func (t *Tracker) Locked() bool { return t.locked }

func (t *Tracker) Len() int { return len(t.sessions) }

// Snapshot returns copies of all sessions in join order.
func (t *Tracker) Snapshot() []Session {
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *Session) copy() Session {
	c := *s
	if s.Caret != nil {
		caret := *s.Caret
		c.Caret = &caret
	}
	return c
}
