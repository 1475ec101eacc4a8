// Package events publishes document lifecycle events for consumers outside
// the realtime path (indexers, audit, notifications).
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogotex/pagesync/pkg/logger"
)

type Type string

const (
	ContentUpdated  Type = "content_updated"
	VersionCreated  Type = "version_created"
	VersionRestored Type = "version_restored"
	LockChanged     Type = "lock_changed"
	SessionJoined   Type = "session_joined"
	SessionLeft     Type = "session_left"
	DocumentDeleted Type = "document_deleted"
)

type Event struct {
	Type       Type      `json:"type"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	VersionID  string    `json:"version_id,omitempty"`
	Locked     *bool     `json:"locked,omitempty"`
	Pages      int       `json:"pages,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Async decouples callers from a slow publisher. Events are queued into a
// bounded buffer and dropped when it is full; the hub must never wait on a
// broker.
type Async struct {
	next    Publisher
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func NewAsync(next Publisher, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	a := &Async{next: next, ch: make(chan Event, buffer), done: make(chan struct{})}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.next.Publish(ctx, e); err != nil {
			logger.Warnf("events: publish %s for %s failed: %v", e.Type, e.DocumentID, err)
		}
		cancel()
	}
}

// Publish enqueues e without blocking.
func (a *Async) Publish(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case a.ch <- e:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warnf("events: buffer full, dropped %d events", n)
		}
	}
	return nil
}

// Dropped is the number of events discarded because the buffer was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() {
	a.once.Do(func() { close(a.ch) })
	<-a.done
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
