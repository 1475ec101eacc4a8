package presence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes rosters so other processes can read who is connected.
type Mirror interface {
	Store(ctx context.Context, docID string, sessions []Session) error
	Load(ctx context.Context, docID string) ([]Session, error)
	Delete(ctx context.Context, docID string) error
}

// RedisMirror keeps each roster as JSON under "presence:<docID>". Entries
// expire after ttl unless refreshed, so a crashed process leaves no ghosts.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a Redis-backed roster mirror. Prefix may be empty.
func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = "presence:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) key(docID string) string {
	return m.prefix + docID
}

// Store overwrites the roster. An empty roster removes the key.
func (m *RedisMirror) Store(ctx context.Context, docID string, sessions []Session) error {
	if len(sessions) == 0 {
		return m.Delete(ctx, docID)
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.key(docID), b, m.ttl).Err()
}

// Load returns the mirrored roster, or nil when none is stored.
func (m *RedisMirror) Load(ctx context.Context, docID string) ([]Session, error) {
	b, err := m.client.Get(ctx, m.key(docID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []Session
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *RedisMirror) Delete(ctx context.Context, docID string) error {
	return m.client.Del(ctx, m.key(docID)).Err()
}
