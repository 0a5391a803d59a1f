// Package source implements C7: the three fetch strategies behind a common
// interface, generalised to pspm's three supply channels.
package source

import (
	"context"

	"github.com/anyt-io/pspm-cli"
)

// Result is what a successful fetch returns: bytes ready for C10 to
// extract, plus the canonical version/commit and integrity the lockfile
// entry needs. Local fetches return no bytes and no integrity (§3, §4.7).
type Result struct {
	Bytes            []byte
	CanonicalVersion string
	Integrity        string
	Resolved         string // download URL (registry), https://github.com/<owner>/<repo> (github), or resolved abs path (local)
}

// Fetcher acquires a tarball/tree for one specifier kind. This is the
// permitted trait-style abstraction the design notes call out (§9): it must
// not leak into the lockfile serialisation, which stays three separate maps.
type Fetcher interface {
	Fetch(ctx context.Context, spec pspm.Specifier) (Result, error)
}
