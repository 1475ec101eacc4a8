package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/pagesync/internal/config"
	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/identity"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// RegisterRoutes mounts GET /ws/:id. Query parameters user_id, user_name,
// color and token describe the connecting user. An unknown document fails
// the handshake with 404.
func RegisterRoutes(r gin.IRouter, reg *Registry, resolver *identity.Resolver, cfg config.HubConfig) {
	r.GET("/ws/:id", func(c *gin.Context) {
		docID := c.Param("id")
		ident := resolver.Resolve(identity.ParamsFromQuery(c.Request.URL.Query()))
		s := NewSession(ident, SessionOptions{
			QueueSize:    cfg.SendQueueSize,
			InboundRPS:   cfg.InboundRPS,
			InboundBurst: cfg.InboundBurst,
		})

		h, err := reg.Join(c.Request.Context(), docID, s)
		if err != nil {
			if document.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			logger.Errorf("ws: join %s: %v", docID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warnf("ws: upgrade for %s failed: %v", docID, err)
			reg.Leave(h, s)
			return
		}

		go writePump(conn, s, cfg)
		readPump(conn, h, s, cfg)
		reg.Leave(h, s)
		_ = conn.Close()
	})
}

func pongWait(cfg config.HubConfig) time.Duration {
	if cfg.PingInterval <= 0 {
		return 60 * time.Second
	}
	return cfg.PingInterval * 5 / 2
}

func readPump(conn *websocket.Conn, h *Hub, s *Session, cfg config.HubConfig) {
	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(cfg.MaxMessageBytes)
	}
	wait := pongWait(cfg)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debugf("ws: session %s read: %v", s.ID, err)
			}
			return
		}
		if err := h.Receive(context.Background(), s, p); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, s *Session, cfg config.HubConfig) {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	interval := cfg.PingInterval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ping := time.NewTicker(interval)
	defer func() {
		ping.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case b := <-s.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Debugf("ws: session %s write: %v", s.ID, err)
				s.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done():
			drain(conn, s, writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// drain flushes frames that were queued before the session closed.
func drain(conn *websocket.Conn, s *Session, timeout time.Duration) {
	for {
		select {
		case b := <-s.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			return
		}
	}
}
