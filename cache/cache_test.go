package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyt-io/pspm-cli/integrity"
)

func TestPutThenGet(t *testing.T) {
	c := New(t.TempDir())
	data := []byte("skill payload")

	digest, err := c.Put(data)
	require.NoError(t, err)

	got, hit := c.Get(digest)
	require.True(t, hit)
	assert.Equal(t, data, got)
}

func TestGetMissIsNotAnError(t *testing.T) {
	c := New(t.TempDir())
	_, hit := c.Get(integrity.Digest([]byte("never written")))
	assert.False(t, hit)
}

func TestGetDeletesOnMismatch(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	digest, err := c.Put([]byte("original"))
	require.NoError(t, err)

	name, err := integrity.CacheFilename(digest)
	require.NoError(t, err)
	path := filepath.Join(root, DirName, name)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, hit := c.Get(digest)
	assert.False(t, hit)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
