package hub

import (
	"sync"
	"time"

	"github.com/gogotex/pagesync/internal/identity"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Session is one live connection to a hub. The hub writes encoded frames
// into a bounded queue that the transport drains; when the queue is full the
// hub drops the session instead of waiting.
type Session struct {
	ID       string
	Identity identity.Identity
	JoinedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
}

type SessionOptions struct {
	QueueSize    int
	InboundRPS   float64
	InboundBurst int
}

func NewSession(id identity.Identity, opts SessionOptions) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	s := &Session{
		ID:       uuid.NewString(),
		Identity: id,
		JoinedAt: time.Now().UTC(),
		send:     make(chan []byte, opts.QueueSize),
		done:     make(chan struct{}),
	}
	if opts.InboundRPS > 0 {
		burst := opts.InboundBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.InboundRPS), burst)
	}
	return s
}

// Send yields outbound frames in order.
func (s *Session) Send() <-chan []byte { return s.send }

// Done is closed once the session has been closed by either side.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. It reports false when the queue is full.
func (s *Session) enqueue(b []byte) bool {
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}
