// Package protocol defines the realtime messages exchanged between clients
// and a document hub. Every frame is a JSON object tagged by "type".
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/presence"
)

// Client to hub.
const (
	TypeContentUpdate = "content_update"
	TypePresence      = "presence"
	TypeSaveVersion   = "save_version"
	TypeToggleLock    = "toggle_lock"
	TypeTypingStatus  = "typing_status"
)

// Hub to client. content_update and presence are reused in this direction.
const (
	TypeDocumentState  = "document_state"
	TypeUserList       = "user_list"
	TypeVersionCreated = "version_created"
	TypeLockState      = "lock_state"
	TypeError          = "error"
)

// Error codes carried by TypeError frames.
const (
	CodeLocked      = "locked"
	CodeForbidden   = "forbidden"
	CodeMalformed   = "malformed"
	CodeRateLimited = "rate_limited"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal"
)

// Inbound is any client to hub message. Which fields are meaningful depends
// on Type.
type Inbound struct {
	Type     string          `json:"type"`
	Pages    []string        `json:"pages,omitempty"`
	Caret    *presence.Caret `json:"caret,omitempty"`
	Status   presence.Status `json:"status,omitempty"`
	Summary  string          `json:"summary,omitempty"`
	Locked   *bool           `json:"locked,omitempty"`
	IsTyping *bool           `json:"is_typing,omitempty"`
}

// Decode parses and validates one inbound frame.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("%w: %v", document.ErrMalformed, err)
	}
	switch in.Type {
	case TypeContentUpdate:
		if in.Pages == nil {
			return in, fmt.Errorf("%w: content_update without pages", document.ErrMalformed)
		}
	case TypeToggleLock:
		if in.Locked == nil {
			return in, fmt.Errorf("%w: toggle_lock without locked", document.ErrMalformed)
		}
	case TypeTypingStatus:
		if in.IsTyping == nil {
			return in, fmt.Errorf("%w: typing_status without is_typing", document.ErrMalformed)
		}
	case TypePresence, TypeSaveVersion:
	case "":
		return in, fmt.Errorf("%w: missing type", document.ErrMalformed)
	default:
		return in, fmt.Errorf("%w: unknown type %q", document.ErrMalformed, in.Type)
	}
	return in, nil
}

func ContentUpdateIn(pages []string) Inbound {
	return Inbound{Type: TypeContentUpdate, Pages: pages}
}

func PresenceIn(caret *presence.Caret, status presence.Status) Inbound {
	return Inbound{Type: TypePresence, Caret: caret, Status: status}
}

func SaveVersionIn(summary string) Inbound {
	return Inbound{Type: TypeSaveVersion, Summary: summary}
}

func ToggleLockIn(locked bool) Inbound {
	return Inbound{Type: TypeToggleLock, Locked: &locked}
}

func TypingStatusIn(typing bool) Inbound {
	return Inbound{Type: TypeTypingStatus, IsTyping: &typing}
}

type DocumentState struct {
	Type     string             `json:"type"`
	Document *document.Document `json:"document"`
	Users    []presence.Session `json:"users"`
}

// ContentUpdate carries new pages. UserID is empty when the change did not
// come from a session (REST restore or replace); VersionID is set for
// restores.
type ContentUpdate struct {
	Type      string   `json:"type"`
	UserID    string   `json:"user_id"`
	Pages     []string `json:"pages"`
	VersionID string   `json:"version_id,omitempty"`
}

type UserList struct {
	Type  string             `json:"type"`
	Users []presence.Session `json:"users"`
}

type Presence struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	Color     string          `json:"color"`
	Status    presence.Status `json:"status"`
	Caret     *presence.Caret `json:"caret"`
}

type VersionCreated struct {
	Type    string           `json:"type"`
	Version document.Version `json:"version"`
}

type LockState struct {
	Type   string `json:"type"`
	Locked bool   `json:"locked"`
	UserID string `json:"user_id,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope decodes any hub to client frame.
type Envelope struct {
	Type      string             `json:"type"`
	Document  *document.Document `json:"document,omitempty"`
	Users     []presence.Session `json:"users,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	UserID    string             `json:"user_id,omitempty"`
	UserName  string             `json:"user_name,omitempty"`
	Color     string             `json:"color,omitempty"`
	Status    presence.Status    `json:"status,omitempty"`
	Caret     *presence.Caret    `json:"caret,omitempty"`
	Pages     []string           `json:"pages,omitempty"`
	VersionID string             `json:"version_id,omitempty"`
	Version   *document.Version  `json:"version,omitempty"`
	Locked    bool               `json:"locked,omitempty"`
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Outbound is implemented by every hub to client message.
type Outbound interface {
	MessageType() string
}

func (m DocumentState) MessageType() string  { return m.Type }
func (m ContentUpdate) MessageType() string  { return m.Type }
func (m UserList) MessageType() string       { return m.Type }
func (m Presence) MessageType() string       { return m.Type }
func (m VersionCreated) MessageType() string { return m.Type }
func (m LockState) MessageType() string      { return m.Type }
func (m Error) MessageType() string          { return m.Type }
