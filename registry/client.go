// Package registry implements C6: the two registry HTTP operations the core
// consumes (list versions, get version metadata), plus the presigned-URL
// authorization heuristic shared with the registry source fetcher (§4.6).
//
// Requests go through hashicorp/go-retryablehttp so transient 5xx/timeouts
// are retried with backoff before surfacing as a pspm.TransportError —
// everything else in the taxonomy (auth, not-found) is a permanent failure
// and is not retried.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
)

// VersionInfo is one entry from the versions list endpoint.
type VersionInfo struct {
	Version string `json:"version"`
}

// VersionMetadata is the getVersion response.
type VersionMetadata struct {
	DownloadURL        string `json:"downloadUrl"`
	Checksum           string `json:"checksum"`
	Manifest           struct {
		Dependencies map[string]string `json:"dependencies,omitempty"`
	} `json:"manifest"`
	DeprecationMessage string `json:"deprecationMessage,omitempty"`
}

// cacheCap bounds the in-process memo of registry responses within a single
// resolve run (§ SPEC_FULL "Registry client caching within a run"); it is
// not a global cross-project cache, which §1 explicitly rules out.
const cacheCap = 256

// Client is the registry HTTP client.
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client

	versionsCache *lru.Cache[string, []VersionInfo]
	metaCache     *lru.Cache[string, *VersionMetadata]
}

// NewClient builds a Client from the shared Config.
func NewClient(cfg pspm.Config) *Client {
	h := retryablehttp.NewClient()
	h.RetryMax = 3
	h.RetryWaitMin = 100 * time.Millisecond
	h.RetryWaitMax = 2 * time.Second
	h.Logger = nil

	vc, _ := lru.New[string, []VersionInfo](cacheCap)
	mc, _ := lru.New[string, *VersionMetadata](cacheCap)

	return &Client{
		baseURL:       strings.TrimRight(cfg.RegistryURL, "/"),
		token:         cfg.Token,
		http:          h,
		versionsCache: vc,
		metaCache:     mc,
	}
}

// ListVersions fetches the available versions for username/name.
func (c *Client) ListVersions(ctx context.Context, username, name string) ([]VersionInfo, error) {
	key := username + "/" + name
	if cached, ok := c.versionsCache.Get(key); ok {
		return cached, nil
	}

	path := fmt.Sprintf("/api/skills/%s/%s/versions", url.PathEscape(username), url.PathEscape(name))
	body, err := c.get(ctx, c.baseURL+path, key)
	if err != nil {
		return nil, err
	}

	var versions []VersionInfo
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, errors.Wrapf(err, "parsing versions list for %s", key)
	}
	c.versionsCache.Add(key, versions)
	return versions, nil
}

// GetVersion fetches a single version's metadata.
func (c *Client) GetVersion(ctx context.Context, username, name, version string) (*VersionMetadata, error) {
	key := username + "/" + name + "@" + version
	if cached, ok := c.metaCache.Get(key); ok {
		return cached, nil
	}

	path := fmt.Sprintf("/api/skills/%s/%s/%s", url.PathEscape(username), url.PathEscape(name), url.PathEscape(version))
	body, err := c.get(ctx, c.baseURL+path, key)
	if err != nil {
		return nil, err
	}

	var meta VersionMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errors.Wrapf(err, "parsing version metadata for %s", key)
	}
	c.metaCache.Add(key, &meta)
	return &meta, nil
}

func (c *Client) get(ctx context.Context, rawURL, identity string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", identity)
	}
	if ShouldAuthorize(rawURL) && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &pspm.TimeoutError{Identity: identity}
		}
		return nil, &pspm.TransportError{Identity: identity, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pspm.TransportError{Identity: identity, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, &pspm.NotFoundError{Identity: identity}
	case http.StatusUnauthorized:
		if c.token == "" {
			return nil, &pspm.AuthRequiredError{Identity: identity}
		}
		return nil, &pspm.AuthDeniedError{Identity: identity}
	case http.StatusForbidden:
		return nil, &pspm.AuthDeniedError{Identity: identity}
	default:
		return nil, &pspm.TransportError{Identity: identity, Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// ShouldAuthorize implements the presigned-URL heuristic from §4.6/§4.7: the
// bearer token is suppressed when the URL's host indicates object storage
// (e.g. *.r2.cloudflarestorage.com) or the URL carries an
// X-Amz-Signature query parameter. This is string-based on the hostname per
// §9(b); other object stores are not recognised and that is a known
// limitation, not a bug to silently "fix".
func ShouldAuthorize(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	if strings.HasSuffix(u.Hostname(), ".r2.cloudflarestorage.com") {
		return false
	}
	if u.Query().Get("X-Amz-Signature") != "" {
		return false
	}
	return true
}
