package source

import (
	"context"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/integrity"
	"github.com/anyt-io/pspm-cli/registry"
)

// RegistryFetcher downloads a single already-resolved registry version.
// Unlike GitHub and local fetches, the registry fetch needs inputs the
// resolver already produced (the exact version, its download URL and
// checksum) rather than deriving them from the bare specifier, so it does
// not implement the generic Fetcher interface.
type RegistryFetcher struct {
	HTTP *retryablehttp.Client
}

// NewRegistryFetcher returns a RegistryFetcher with sane retry defaults.
func NewRegistryFetcher() *RegistryFetcher {
	h := retryablehttp.NewClient()
	h.RetryMax = 3
	h.Logger = nil
	return &RegistryFetcher{HTTP: h}
}

// Fetch downloads downloadURL, honouring the presigned-URL authorization
// rule (§4.6/§4.7), and verifies the bytes against checksumHex (lowercase
// hex sha256, as returned by getVersion).
func (f *RegistryFetcher) Fetch(ctx context.Context, identity, token, downloadURL, checksumHex string) (Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return Result{}, errors.Wrapf(err, "building download request for %s", identity)
	}
	if registry.ShouldAuthorize(downloadURL) && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &pspm.TimeoutError{Identity: identity}
		}
		return Result{}, &pspm.TransportError{Identity: identity, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &pspm.TransportError{Identity: identity, Err: errors.Errorf("download returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &pspm.TransportError{Identity: identity, Err: err}
	}

	expected, err := integrity.FromHex(checksumHex)
	if err != nil {
		return Result{}, errors.Wrapf(err, "parsing checksum for %s", identity)
	}
	actual := integrity.Digest(body)
	if actual != expected {
		return Result{}, &pspm.IntegrityMismatchError{Identity: identity, Expected: expected, Actual: actual}
	}

	return Result{Bytes: body, Integrity: actual, Resolved: downloadURL}, nil
}
