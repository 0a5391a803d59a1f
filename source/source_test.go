package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyt-io/pspm-cli"
)

func TestLocalFetcherRequiresShape(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "my-skill")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))

	f := &LocalFetcher{ProjectRoot: dir}
	spec := pspm.Specifier{Kind: pspm.SourceLocal, LocalPath: "./my-skill"}

	_, err := f.Fetch(context.Background(), spec)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("# hi"), 0o644))

	res, err := f.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, skillDir, res.Resolved)
}

func TestSkillNameReadsManifestName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pspm.json"), []byte(`{"name":"cool-skill"}`), 0o644))
	assert.Equal(t, "cool-skill", SkillName(dir))
}

func TestSkillNameFallsBackToBasename(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widget")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	assert.Equal(t, "widget", SkillName(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pspm.json"), []byte(`not json`), 0o644))
	assert.Equal(t, "widget", SkillName(dir))
}

func TestLocalFetcherMissingPath(t *testing.T) {
	dir := t.TempDir()
	f := &LocalFetcher{ProjectRoot: dir}
	spec := pspm.Specifier{Kind: pspm.SourceLocal, LocalPath: "./nope"}

	_, err := f.Fetch(context.Background(), spec)
	require.Error(t, err)
	var nf *pspm.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRegistryFetcherVerifiesChecksum(t *testing.T) {
	payload := []byte("tarball-bytes")
	sum := sha256.Sum256(payload)
	checksumHex := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	f := NewRegistryFetcher()
	f.HTTP.RetryMax = 0

	res, err := f.Fetch(context.Background(), "@user/alice/a@1.0.0", "tok", srv.URL, checksumHex)
	require.NoError(t, err)
	assert.Equal(t, payload, res.Bytes)
}

func TestRegistryFetcherRejectsMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual-bytes"))
	}))
	t.Cleanup(srv.Close)

	f := NewRegistryFetcher()
	f.HTTP.RetryMax = 0

	wrongSum := sha256.Sum256([]byte("different-bytes"))
	_, err := f.Fetch(context.Background(), "@user/alice/a@1.0.0", "tok", srv.URL, hex.EncodeToString(wrongSum[:]))
	require.Error(t, err)
	var im *pspm.IntegrityMismatchError
	require.ErrorAs(t, err, &im)
}
