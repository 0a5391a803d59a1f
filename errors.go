package pspm

import (
	"bytes"
	"fmt"
	"strings"
)

// Each error kind in §7 is a concrete type, not a sentinel, so callers can
// type-switch to decide remedy text and exit behaviour.

// InputInvalidError reports an unparsable specifier or a malformed
// manifest/lockfile. Fields lists every failing dotted JSON path when the
// source was schema validation; it is empty for a bad specifier string.
type InputInvalidError struct {
	Offending string
	Reason    string
	Fields    []FieldError
}

// FieldError is one failing field from schema validation, dotted-path style.
type FieldError struct {
	Path   string
	Reason string
}

func (e *InputInvalidError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "invalid input %q: %s", e.Offending, e.Reason)
	for _, f := range e.Fields {
		fmt.Fprintf(&buf, "\n  %s: %s", f.Path, f.Reason)
	}
	return buf.String()
}

// NotFoundError reports a registry skill/version, GitHub repo/ref, or local
// path that does not exist.
type NotFoundError struct {
	Identity string
	Detail   string
}

func (e *NotFoundError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("not found: %s", e.Identity)
	}
	return fmt.Sprintf("not found: %s (%s)", e.Identity, e.Detail)
}

// AuthRequiredError means a 401 was returned to an anonymous request.
type AuthRequiredError struct {
	Identity string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("login needed to access %s", e.Identity)
}

// AuthDeniedError means a 401/403 was returned despite credentials.
type AuthDeniedError struct {
	Identity string
}

func (e *AuthDeniedError) Error() string {
	return fmt.Sprintf("you don't have access to %s", e.Identity)
}

// RateLimitedError is GitHub-specific: x-ratelimit-remaining: 0 on a 403.
type RateLimitedError struct {
	Identity string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited fetching %s; set GITHUB_TOKEN to raise the limit", e.Identity)
}

// IntegrityMismatchError means verified bytes did not match expected
// integrity. The caller is responsible for deleting a cache entry that
// produced this before surfacing it further (§4.3).
type IntegrityMismatchError struct {
	Identity string
	Expected string
	Actual   string
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s: expected %s, got %s", e.Identity, e.Expected, e.Actual)
}

// CircularDependencyError carries the minimal cycle-containing path.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// MaxDepthExceededError carries the path that exceeded maxDepth.
type MaxDepthExceededError struct {
	Path     []string
	MaxDepth int
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("max dependency depth %d exceeded: %s", e.MaxDepth, strings.Join(e.Path, " -> "))
}

// RangeWitness pairs a dependent with the range it demanded, for conflict
// and no-satisfying-version reporting.
type RangeWitness struct {
	Dependent string
	Range     string
}

// NoSatisfyingVersionError means no version in the candidate set satisfies
// the (possibly single) range.
type NoSatisfyingVersionError struct {
	Package  string
	Witness  []RangeWitness
	Versions []string
}

func (e *NoSatisfyingVersionError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %s satisfies all constraints:", e.Package)
	for _, w := range e.Witness {
		fmt.Fprintf(&buf, "\n  %s requires %s", w.Dependent, w.Range)
	}
	return buf.String()
}

// VersionConflictError is the resolver's phase-2 diagnostic when collected
// ranges are jointly unsatisfiable.
type VersionConflictError struct {
	Package           string
	Witness           []RangeWitness
	AvailableVersions []string
}

func (e *VersionConflictError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "version conflict on %s:", e.Package)
	for _, w := range e.Witness {
		fmt.Fprintf(&buf, "\n  %s requires %s", w.Dependent, w.Range)
	}
	fmt.Fprintf(&buf, "\n  available: %s", strings.Join(e.AvailableVersions, ", "))
	return buf.String()
}

// TransportError wraps a network-layer failure for a single package; it is
// never fatal for the whole run.
type TransportError struct {
	Identity string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error fetching %s: %s", e.Identity, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means a request-level deadline expired.
type TimeoutError struct {
	Identity string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out fetching %s", e.Identity)
}

// FilesystemError wraps an unexpected stat/mkdir/symlink failure.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// GitHubPathNotFoundError is raised at extract time when the requested
// subpath is missing from the fetched tarball. TopLevelDirs lists what does
// exist so the CLI can present an actionable message.
type GitHubPathNotFoundError struct {
	Repo         string
	Path         string
	TopLevelDirs []string
}

func (e *GitHubPathNotFoundError) Error() string {
	return fmt.Sprintf("path %q not found in %s; top-level entries: %s", e.Path, e.Repo, strings.Join(e.TopLevelDirs, ", "))
}

// FrozenLockfileError reports, under --frozen-lockfile, a registry
// dependency the lockfile does not pin or whose tarball is not in the cache
// with matching integrity. It is reported per package like any other install
// error and makes the command exit non-zero; it does not stop the remaining
// packages from installing or the lockfile from being written.
type FrozenLockfileError struct {
	Identity string
	Reason   string
}

func (e *FrozenLockfileError) Error() string {
	return fmt.Sprintf("--frozen-lockfile: %s (%s); the lockfile is stale — rerun without --frozen-lockfile", e.Identity, e.Reason)
}
