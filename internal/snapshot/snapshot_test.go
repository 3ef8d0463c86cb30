package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectPath(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)
	body := []byte("<html>product</html>")

	p := ObjectPath("pages", "punto_farma", at, body)
	require.True(t, strings.HasPrefix(p, "pages/punto_farma/2025-11-03/"))
	require.True(t, strings.HasSuffix(p, ".html"))

	// Identical bodies map to identical paths.
	require.Equal(t, p, ObjectPath("pages", "punto_farma", at, body))
	require.NotEqual(t, p, ObjectPath("pages", "punto_farma", at, []byte("other")))
}

func TestLocalStoreSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	uri, err := store.Save(context.Background(), "pages/a/b.html", "text/html", []byte("body"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "pages", "a", "b.html"))
	require.NoError(t, err)
	require.Equal(t, []byte("body"), data)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestLocalStoreRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore(" ")
	require.Error(t, err)
}

func TestMemoryStoreSave(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	uri, err := store.Save(context.Background(), "pages/x.html", "text/html", []byte("snapshot"))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/x.html", uri)

	body, ok := store.Get("pages/x.html")
	require.True(t, ok)
	require.Equal(t, []byte("snapshot"), body)
	require.Equal(t, 1, store.Len())
}
