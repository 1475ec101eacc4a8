package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentCloneIsDeep(t *testing.T) {
	d := &Document{
		ID:       "d1",
		Pages:    []string{"a", "b"},
		Versions: []Version{{ID: "v1", Pages: []string{"a"}, Timestamp: time.Now()}},
	}
	c := d.Clone()
	c.Pages[0] = "changed"
	c.Versions[0].Pages[0] = "changed"

	require.Equal(t, "a", d.Pages[0])
	require.Equal(t, "a", d.Versions[0].Pages[0])
}

func TestClonePagesNeverEmpty(t *testing.T) {
	require.Equal(t, []string{""}, ClonePages(nil))
	require.Equal(t, []string{""}, ClonePages([]string{}))
	require.Equal(t, []string{"x", ""}, ClonePages([]string{"x", ""}))
}

func TestFindVersion(t *testing.T) {
	d := &Document{Versions: []Version{{ID: "v2"}, {ID: "v1"}}}
	v, ok := d.FindVersion("v1")
	require.True(t, ok)
	require.Equal(t, "v1", v.ID)
	_, ok = d.FindVersion("v9")
	require.False(t, ok)
}
