package presence

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T, ttl time.Duration) (*RedisMirror, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisMirror(client, "test:presence:", ttl), m
}

func TestRedisMirror_StoreLoadDelete(t *testing.T) {
	mirror, m := newMirror(t, 10*time.Second)
	ctx := context.Background()

	roster := []Session{
		{SessionID: "s1", UserID: "a", UserName: "Ann", Color: "#112233", Status: StatusTyping, Caret: &Caret{PageIndex: 1, Offset: 4}},
		{SessionID: "s2", UserID: "b", UserName: "Ben", Status: StatusViewing},
	}
	require.NoError(t, mirror.Store(ctx, "doc-1", roster))
	require.True(t, m.Exists("test:presence:doc-1"))

	got, err := mirror.Load(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Ann", got[0].UserName)
	require.Equal(t, &Caret{PageIndex: 1, Offset: 4}, got[0].Caret)
	require.Nil(t, got[1].Caret)

	require.NoError(t, mirror.Store(ctx, "doc-1", nil))
	got, err = mirror.Load(ctx, "doc-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisMirror_TTLExpiry(t *testing.T) {
	mirror, m := newMirror(t, time.Second)
	ctx := context.Background()

	require.NoError(t, mirror.Store(ctx, "doc-2", []Session{{SessionID: "s1"}}))
	got, err := mirror.Load(ctx, "doc-2")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got, err = mirror.Load(ctx, "doc-2")
	require.NoError(t, err)
	require.Nil(t, got)
}
