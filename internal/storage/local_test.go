package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	n, err := store.Save(ctx, "7/abc.pdf", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	rc, err := store.Open(ctx, "7/abc.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(body))

	entries, err := os.ReadDir(filepath.Join(store.Root, "7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be gone")

	require.NoError(t, store.Delete(ctx, "7/abc.pdf"))
	require.NoError(t, store.Delete(ctx, "7/abc.pdf"))
	_, err = store.Open(ctx, "7/abc.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "/etc/passwd", "a/../../x"} {
		_, err := store.Save(context.Background(), key, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}
