// Package cache implements C8: the per-project content-addressed tarball
// cache under .pspm/cache/.
package cache

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli/integrity"
)

// DirName is the cache directory, relative to the project root (§6).
const DirName = ".pspm/cache"

// Cache is a content-addressed store of verified tarball bytes.
type Cache struct {
	dir string
}

// New returns a Cache rooted at <projectRoot>/.pspm/cache.
func New(projectRoot string) *Cache {
	return &Cache{dir: filepath.Join(projectRoot, DirName)}
}

// Get reads the cache entry for the given integrity string, recomputing the
// digest and comparing it before returning. A mismatch deletes the entry
// and reports a miss, never an error: cache read failure is never fatal
// (§4.8). A genuinely absent entry is likewise a plain miss.
func (c *Cache) Get(expectedIntegrity string) (data []byte, hit bool) {
	name, err := integrity.CacheFilename(expectedIntegrity)
	if err != nil {
		return nil, false
	}
	path := filepath.Join(c.dir, name)

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	if !integrity.Verify(data, expectedIntegrity) {
		_ = os.Remove(path)
		return nil, false
	}
	return data, true
}

// Put writes data to the cache under the filename its own digest implies,
// atomically (temp file in the cache dir, then rename). Writes are never
// performed unless the caller has already verified integrity elsewhere;
// Put trusts its caller and keys strictly off the content it's given.
func (c *Cache) Put(data []byte) (writtenIntegrity string, err error) {
	digest := integrity.Digest(data)
	name, err := integrity.CacheFilename(digest)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating cache dir %s", c.dir)
	}

	tmpPath := filepath.Join(c.dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "writing temp cache file")
	}
	defer os.Remove(tmpPath)

	finalPath := filepath.Join(c.dir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", errors.Wrapf(err, "renaming into %s", finalPath)
	}
	return digest, nil
}
