// Package client is a Go realtime client for a document hub. It owns the
// connection lifecycle: dialing, reconnecting after drops, and debouncing
// page updates before they go on the wire.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/protocol"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

// ReconnectPolicy controls what happens after a connection drops.
type ReconnectPolicy struct {
	Delay time.Duration
	// MaxAttempts bounds consecutive failed connection attempts. Zero
	// retries forever.
	MaxAttempts int
}

// DefaultReconnectPolicy retries every 3 seconds, forever.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: 3 * time.Second}
}

const DefaultDebounce = 500 * time.Millisecond

type Options struct {
	// BaseURL is the server root, e.g. ws://localhost:8000.
	BaseURL    string
	DocumentID string
	UserID     string
	UserName   string
	Color      string
	Token      string

	Reconnect    ReconnectPolicy
	Debounce     time.Duration
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

// Handler receives every frame the hub sends.
type Handler interface {
	HandleMessage(env protocol.Envelope)
}

type HandlerFunc func(env protocol.Envelope)

func (f HandlerFunc) HandleMessage(env protocol.Envelope) { f(env) }

type Client struct {
	opts Options

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers []Handler

	pendingMu sync.Mutex
	pending   []string
	timer     *time.Timer
}

func New(opts Options) *Client {
	if opts.Reconnect.Delay <= 0 {
		opts.Reconnect.Delay = DefaultReconnectPolicy().Delay
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}
}

// Subscribe adds h to the handlers called for each inbound frame. Call it
// before Run.
func (c *Client) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// URL is the websocket endpoint for this client.
func (c *Client) URL() (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u = u.JoinPath("ws", c.opts.DocumentID)
	q := u.Query()
	for k, v := range map[string]string{
		"user_id":   c.opts.UserID,
		"user_name": c.opts.UserName,
		"color":     c.opts.Color,
		"token":     c.opts.Token,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and keeps reconnecting with the configured policy until ctx
// ends, the document turns out not to exist, or attempts run out. Every
// connection is a brand new session on the server.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, document.ErrNotFound) {
			return err
		}
		if connected {
			failures = 0
		} else {
			failures++
		}
		if limit := c.opts.Reconnect.MaxAttempts; limit > 0 && failures >= limit {
			return fmt.Errorf("giving up after %d attempts: %w", failures, err)
		}
		logger.Warnf("client: connection to %s lost (%v), retrying in %s", c.opts.DocumentID, err, c.opts.Reconnect.Delay)
		t := time.NewTimer(c.opts.Reconnect.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// session runs one connection until it drops. connected reports whether
// the handshake succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	u, err := c.URL()
	if err != nil {
		return false, err
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, fmt.Errorf("%s: %w", c.opts.DocumentID, document.ErrNotFound)
		}
		return false, fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warnf("client: ignoring undecodable frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range hs {
		h.HandleMessage(env)
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) send(msg protocol.Inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteJSON(msg)
}

// UpdatePages schedules pages to be sent after the debounce window. Calls
// inside the window replace the pending value.
func (c *Client) UpdatePages(pages []string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = append([]string(nil), pages...)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Debounce, func() {
		if err := c.FlushPages(); err != nil {
			logger.Warnf("client: sending pages failed: %v", err)
		}
	})
}

// FlushPages sends the pending pages now. Pending pages are discarded when
// the send fails; the next document_state after reconnecting is
// authoritative.
func (c *Client) FlushPages() error {
	c.pendingMu.Lock()
	pages := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingMu.Unlock()
	if pages == nil {
		return nil
	}
	return c.send(protocol.ContentUpdateIn(pages))
}

func (c *Client) SetCaret(caret *presence.Caret) error {
	return c.send(protocol.PresenceIn(caret, ""))
}

func (c *Client) SetTyping(typing bool) error {
	return c.send(protocol.TypingStatusIn(typing))
}

func (c *Client) SaveVersion(summary string) error {
	return c.send(protocol.SaveVersionIn(summary))
}

func (c *Client) ToggleLock(locked bool) error {
	return c.send(protocol.ToggleLockIn(locked))
}
