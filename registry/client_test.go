package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyt-io/pspm-cli"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(pspm.Config{RegistryURL: srv.URL, Token: "test-token"})
	c.http.RetryMax = 0
	return srv, c
}

func TestListVersions(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/skills/alice/a/versions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]VersionInfo{{Version: "1.0.0"}, {Version: "1.1.0"}})
	})

	versions, err := c.ListVersions(context.Background(), "alice", "a")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.1.0", versions[1].Version)
}

func TestListVersionsNotFound(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.ListVersions(context.Background(), "alice", "missing")
	require.Error(t, err)
	var nf *pspm.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestListVersionsAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(pspm.Config{RegistryURL: srv.URL})
	c.http.RetryMax = 0

	_, err := c.ListVersions(context.Background(), "alice", "a")
	require.Error(t, err)
	var ar *pspm.AuthRequiredError
	require.ErrorAs(t, err, &ar)
}

func TestGetVersionCachesWithinClient(t *testing.T) {
	calls := 0
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(VersionMetadata{DownloadURL: "https://cdn/a.tgz", Checksum: "aa"})
	})

	_, err := c.GetVersion(context.Background(), "alice", "a", "1.0.0")
	require.NoError(t, err)
	_, err = c.GetVersion(context.Background(), "alice", "a", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestShouldAuthorizeSuppressesPresignedURLs(t *testing.T) {
	assert.False(t, ShouldAuthorize("https://bucket.r2.cloudflarestorage.com/x.tgz"))
	assert.False(t, ShouldAuthorize("https://s3.amazonaws.com/x.tgz?X-Amz-Signature=abc"))
	assert.True(t, ShouldAuthorize("https://registry.example/api/skills/alice/a/1.0.0/download"))
}
