package protocol

import (
	"encoding/json"
	"testing"

	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	in, err := Decode([]byte(`{"type":"content_update","pages":["a","b"]}`))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, in.Pages)

	in, err = Decode([]byte(`{"type":"content_update","pages":[]}`))
	require.NoError(t, err)
	require.NotNil(t, in.Pages)

	in, err = Decode([]byte(`{"type":"presence","caret":{"pageIndex":2,"offset":7}}`))
	require.NoError(t, err)
	require.Equal(t, &presence.Caret{PageIndex: 2, Offset: 7}, in.Caret)

	in, err = Decode([]byte(`{"type":"presence","caret":null}`))
	require.NoError(t, err)
	require.Nil(t, in.Caret)

	in, err = Decode([]byte(`{"type":"toggle_lock","locked":false}`))
	require.NoError(t, err)
	require.False(t, *in.Locked)
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"type":"dance"}`,
		`{"type":"content_update"}`,
		`{"type":"content_update","pages":"abc"}`,
		`{"type":"toggle_lock"}`,
		`{"type":"typing_status"}`,
	} {
		_, err := Decode([]byte(raw))
		require.ErrorIs(t, err, document.ErrMalformed, raw)
	}
}

func TestClientMessagesDecode(t *testing.T) {
	for _, msg := range []Inbound{
		ContentUpdateIn([]string{"x"}),
		PresenceIn(&presence.Caret{Offset: 1}, presence.StatusTyping),
		SaveVersionIn("s"),
		ToggleLockIn(true),
		TypingStatusIn(false),
	} {
		b, err := json.Marshal(msg)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err, string(b))
		require.Equal(t, msg, got)
	}
}

func TestContentUpdateAlwaysCarriesUserID(t *testing.T) {
	b, err := json.Marshal(ContentUpdate{Type: TypeContentUpdate, Pages: []string{""}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"content_update","user_id":"","pages":[""]}`, string(b))
}
