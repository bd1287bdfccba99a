package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Title  string `json:"title"`
	Offset int64  `json:"offset"`
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	var got entry
	ok, err := s.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("act", entry{Title: "1:57", Offset: 117000}))
	ok, err = s.Get("act", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry{Title: "1:57", Offset: 117000}, got)

	require.NoError(t, s.Delete("act"))
	ok, _ = s.Get("act", &got)
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("act", entry{Title: "3:45", Offset: 225000}))
	require.NoError(t, s.Put("other", []string{"a"}))
	require.NoError(t, s.Delete("other"))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	var got entry
	ok, err := reopened.Get("act", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(225000), got.Offset)

	var other []string
	ok, err = reopened.Get("other", &other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := OpenFileStore(path)
	assert.Error(t, err)
}
