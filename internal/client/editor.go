package client

import (
	"errors"
	"sync"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/protocol"
	"github.com/gogotex/pagesync/internal/reflow"
)

var ErrPageRange = errors.New("page index out of range")

// PageSender is the part of Client the editor needs.
type PageSender interface {
	UpdatePages(pages []string)
}

// Editor is a local page model kept in step with the hub. Local edits are
// reflowed with the editor's oracle before they are sent, so overflow lands
// on the following pages for every collaborator.
type Editor struct {
	sender PageSender
	oracle reflow.Oracle

	mu       sync.Mutex
	doc      *document.Document
	users    []presence.Session
	onChange func(pages []string)
}

// NewEditor builds an editor that sends through c and subscribes to its
// frames.
func NewEditor(c *Client, oracle reflow.Oracle) *Editor {
	e := newEditor(c, oracle)
	c.Subscribe(e)
	return e
}

func newEditor(sender PageSender, oracle reflow.Oracle) *Editor {
	return &Editor{sender: sender, oracle: oracle}
}

// OnChange registers a callback for page changes from either side.
func (e *Editor) OnChange(fn func(pages []string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

func (e *Editor) HandleMessage(env protocol.Envelope) {
	e.mu.Lock()
	var changed []string
	switch env.Type {
	case protocol.TypeDocumentState:
		if env.Document != nil {
			e.doc = env.Document.Clone()
			e.users = env.Users
			changed = document.ClonePages(e.doc.Pages)
		}
	case protocol.TypeContentUpdate:
		if e.doc != nil {
			e.doc.Pages = document.ClonePages(env.Pages)
			changed = document.ClonePages(e.doc.Pages)
		}
	case protocol.TypeUserList:
		e.users = env.Users
	case protocol.TypeLockState:
		if e.doc != nil {
			e.doc.IsLocked = env.Locked
		}
	case protocol.TypeVersionCreated:
		if e.doc != nil && env.Version != nil {
			e.doc.Versions = append([]document.Version{env.Version.Clone()}, e.doc.Versions...)
		}
	}
	fn := e.onChange
	e.mu.Unlock()
	if changed != nil && fn != nil {
		fn(changed)
	}
}

// EditPage replaces page i (or appends when i equals the page count),
// reflows from i, and schedules the result to be sent.
func (e *Editor) EditPage(i int, content string) (reflow.Result, error) {
	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return reflow.Result{}, ErrNotConnected
	}
	if e.doc.IsLocked {
		e.mu.Unlock()
		return reflow.Result{}, document.ErrLocked
	}
	if i < 0 || i > len(e.doc.Pages) {
		e.mu.Unlock()
		return reflow.Result{}, ErrPageRange
	}
	pages := document.ClonePages(e.doc.Pages)
	if i == len(pages) {
		pages = append(pages, content)
	} else {
		pages[i] = content
	}
	res := reflow.Reflow(pages, i, e.oracle)
	e.doc.Pages = document.ClonePages(res.Pages)
	fn := e.onChange
	e.mu.Unlock()

	e.sender.UpdatePages(res.Pages)
	if fn != nil {
		fn(document.ClonePages(res.Pages))
	}
	return res, nil
}

func (e *Editor) Pages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	return document.ClonePages(e.doc.Pages)
}

func (e *Editor) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc != nil && e.doc.IsLocked
}

func (e *Editor) Users() []presence.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]presence.Session(nil), e.users...)
}

func (e *Editor) Versions() []document.Version {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	out := make([]document.Version, len(e.doc.Versions))
	for i, v := range e.doc.Versions {
		out[i] = v.Clone()
	}
	return out
}
