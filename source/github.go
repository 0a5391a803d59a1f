package source

import (
	"context"
	"io"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/integrity"
)

// GitHubFetcher resolves a ref to a commit and downloads the repository
// tarball at that commit, via the GitHub API client rather than hand-rolled
// REST calls (§4.7).
type GitHubFetcher struct {
	gh   *github.Client
	http *http.Client
}

// NewGitHubFetcher builds a GitHubFetcher. If cfg carries GitHubToken it is
// used as a bearer PAT; otherwise, if a GitHub App identity is configured,
// an installation-token transport is used instead (SPEC_FULL "GitHub App
// transport fallback"); otherwise requests are unauthenticated.
func NewGitHubFetcher(cfg pspm.Config) (*GitHubFetcher, error) {
	httpClient := http.DefaultClient

	switch {
	case cfg.GitHubToken != "":
		httpClient = github.NewClient(nil).WithAuthToken(cfg.GitHubToken).Client()
	case cfg.GitHubAppID != 0 && cfg.GitHubAppInstallationID != 0 && len(cfg.GitHubAppPrivateKey) > 0:
		tr, err := ghinstallation.New(http.DefaultTransport, cfg.GitHubAppID, cfg.GitHubAppInstallationID, cfg.GitHubAppPrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "building GitHub App transport")
		}
		httpClient = &http.Client{Transport: tr}
	}

	return &GitHubFetcher{
		gh:   github.NewClient(httpClient),
		http: httpClient,
	}, nil
}

// Fetch implements Fetcher: resolves spec.Ref (empty/"latest" means the
// default branch) to a commit, downloads the tarball at that commit, and
// computes its integrity; there is no external checksum to verify it
// against. It does not handle the GitHubPathNotFoundError
// case — that is raised at extract time once the tarball contents are known
// (§4.7).
func (f *GitHubFetcher) Fetch(ctx context.Context, spec pspm.Specifier) (Result, error) {
	identity := spec.GitHubKey()

	commit, err := f.resolveCommit(ctx, spec.Owner, spec.Repo, spec.Ref, identity)
	if err != nil {
		return Result{}, err
	}

	body, resolvedURL, err := f.downloadTarball(ctx, spec.Owner, spec.Repo, commit, identity)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Bytes:            body,
		CanonicalVersion: commit[:7],
		Integrity:        integrity.Digest(body),
		Resolved:         resolvedURL,
	}, nil
}

func (f *GitHubFetcher) resolveCommit(ctx context.Context, owner, repo, ref, identity string) (string, error) {
	if ref == "" || ref == "latest" {
		repoInfo, resp, err := f.gh.Repositories.Get(ctx, owner, repo)
		if err := classifyGitHubError(err, resp, identity); err != nil {
			return "", err
		}
		ref = repoInfo.GetDefaultBranch()
	}

	commit, resp, err := f.gh.Repositories.GetCommit(ctx, owner, repo, ref, nil)
	if err := classifyGitHubError(err, resp, identity); err != nil {
		return "", err
	}
	return commit.GetSHA(), nil
}

func (f *GitHubFetcher) downloadTarball(ctx context.Context, owner, repo, commit, identity string) ([]byte, string, error) {
	archiveURL, resp, err := f.gh.Repositories.GetArchiveLink(ctx, owner, repo, github.Tarball, &github.RepositoryContentGetOptions{Ref: commit}, 10)
	if err := classifyGitHubError(err, resp, identity); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL.String(), nil)
	if err != nil {
		return nil, "", errors.Wrapf(err, "building tarball request for %s", identity)
	}
	dlResp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", &pspm.TimeoutError{Identity: identity}
		}
		return nil, "", &pspm.TransportError{Identity: identity, Err: err}
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, "", &pspm.TransportError{Identity: identity, Err: errors.Errorf("tarball download returned status %d", dlResp.StatusCode)}
	}

	body, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", &pspm.TransportError{Identity: identity, Err: err}
	}

	resolved := "https://github.com/" + owner + "/" + repo
	return body, resolved, nil
}

// classifyGitHubError turns a go-github error into the taxonomy §4.7/§7
// describes: GitHubNotFound, GitHubRateLimited (x-ratelimit-remaining: 0 on
// a 403), or a generic TransportError.
func classifyGitHubError(err error, resp *github.Response, identity string) error {
	if err == nil {
		return nil
	}

	if rl, ok := err.(*github.RateLimitError); ok {
		_ = rl
		return &pspm.RateLimitedError{Identity: identity}
	}
	if _, ok := err.(*github.AbuseRateLimitError); ok {
		return &pspm.RateLimitedError{Identity: identity}
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return &pspm.NotFoundError{Identity: identity}
		case http.StatusForbidden:
			if resp.Header.Get("x-ratelimit-remaining") == "0" {
				return &pspm.RateLimitedError{Identity: identity}
			}
			return &pspm.AuthDeniedError{Identity: identity}
		case http.StatusUnauthorized:
			return &pspm.AuthRequiredError{Identity: identity}
		}
	}

	return &pspm.TransportError{Identity: identity, Err: err}
}
