// Package extract implements C10: placing fetched tarball bytes at the
// canonical store path for a source kind.
package extract

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
)

// Kind distinguishes the two stripping strategies (§4.10); local skills
// never reach this package — they are symlinked by the linker directly.
type Kind uint8

const (
	// KindRegistry tarballs have a single top-level directory that is
	// dropped.
	KindRegistry Kind = iota
	// KindGitHub tarballs have GitHub's own top-level wrapper directory
	// dropped from every entry (see stripGitHubPrefix).
	KindGitHub
)

// Extract writes tarball bytes into dest, replacing whatever is there. dest
// is removed and recreated first so the result is never a merge with a
// prior version (§4.10).
//
// repo and subpath are only consulted for kind == KindGitHub: subpath, when
// non-empty, restricts extraction to that subtree of the repo (§4.7
// scenario 4) and repo names the owner/repo pair for the resulting
// pspm.GitHubPathNotFoundError if subpath never matches an entry.
func Extract(dest string, tarballGz []byte, kind Kind, repo, subpath string) error {
	if err := os.RemoveAll(dest); err != nil {
		return &pspm.FilesystemError{Path: dest, Op: "removeall", Err: err}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &pspm.FilesystemError{Path: dest, Op: "mkdir", Err: err}
	}

	tmp, err := writeTemp(dest, tarballGz)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	f, err := os.Open(tmp)
	if err != nil {
		return &pspm.FilesystemError{Path: tmp, Op: "open", Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "opening gzip stream")
	}
	defer gz.Close()

	if err := extractTar(tar.NewReader(gz), dest, kind, repo, subpath); err != nil {
		os.RemoveAll(dest)
		return err
	}
	return nil
}

func writeTemp(dest string, data []byte) (string, error) {
	tmp := filepath.Join(dest, "."+uuid.NewString()+".tgz")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", &pspm.FilesystemError{Path: tmp, Op: "write", Err: err}
	}
	return tmp, nil
}

func extractTar(tr *tar.Reader, dest string, kind Kind, repo, subpath string) error {
	var stripPrefix string
	var pending *tar.Header
	if kind == KindRegistry {
		var err error
		pending, stripPrefix, err = detectSingleTopLevelDir(tr)
		if err != nil {
			return err
		}
	}

	topLevel := map[string]bool{}
	matched := false

	for {
		hdr := pending
		pending = nil
		if hdr == nil {
			var err error
			hdr, err = tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrap(err, "reading tar entry")
			}
		}

		name := hdr.Name
		if kind == KindGitHub {
			name = stripGitHubPrefix(name)
			if name == "" {
				continue
			}
			if subpath != "" {
				topLevel[strings.SplitN(name, "/", 2)[0]] = true
				rest, ok := cutSubpath(name, subpath)
				if !ok {
					continue
				}
				matched = true
				if rest == "" {
					continue
				}
				name = rest
			}
		} else if stripPrefix != "" {
			if name == stripPrefix || name == strings.TrimSuffix(stripPrefix, "/") {
				continue
			}
			name = strings.TrimPrefix(name, stripPrefix)
			if name == "" {
				continue
			}
		}

		target := filepath.Join(dest, filepath.Clean(name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return errors.Errorf("tar entry %q escapes destination", hdr.Name)
		}

		if err := writeEntry(tr, hdr, target); err != nil {
			return err
		}
	}

	if kind == KindGitHub && subpath != "" && !matched {
		dirs := make([]string, 0, len(topLevel))
		for d := range topLevel {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		return &pspm.GitHubPathNotFoundError{Repo: repo, Path: subpath, TopLevelDirs: dirs}
	}

	return nil
}

// cutSubpath reports whether name, already stripped of the GitHub wrapper
// directory, falls under subpath, returning the remainder with subpath
// itself stripped. An exact match (the subpath's own directory entry)
// yields "", true.
func cutSubpath(name, subpath string) (string, bool) {
	subpath = strings.TrimSuffix(subpath, "/")
	trimmed := strings.TrimSuffix(name, "/")
	if trimmed == subpath {
		return "", true
	}
	if rest, ok := strings.CutPrefix(name, subpath+"/"); ok {
		return rest, true
	}
	return "", false
}

func writeEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return mkdirAll(target, os.FileMode(hdr.Mode))
	case tar.TypeReg:
		if err := mkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)|0o200)
		if err != nil {
			return &pspm.FilesystemError{Path: target, Op: "create", Err: err}
		}
		defer out.Close()
		if _, err := io.Copy(out, tr); err != nil {
			return &pspm.FilesystemError{Path: target, Op: "write", Err: err}
		}
		return nil
	case tar.TypeSymlink:
		// The registry/GitHub archive can't be trusted to carry a safe
		// symlink target; skip rather than dereference blindly.
		return nil
	default:
		return nil
	}
}

func mkdirAll(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode|0o100); err != nil {
		return &pspm.FilesystemError{Path: path, Op: "mkdir", Err: err}
	}
	return nil
}

// detectSingleTopLevelDir reads the first tar entry and derives the
// registry strip prefix from its leading path segment: every registry
// tarball entry begins with the same single top-level directory name, and a
// streaming tar.Reader cannot be rewound for a second pass. The first
// header is returned (nil at end of archive) so the caller still processes
// that entry; its body is still unread on tr.
func detectSingleTopLevelDir(tr *tar.Reader) (*tar.Header, string, error) {
	hdr, err := tr.Next()
	if err == io.EOF {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "reading first tar entry")
	}
	parts := strings.SplitN(hdr.Name, "/", 2)
	if len(parts) < 2 {
		return hdr, "", nil
	}
	return hdr, parts[0] + "/", nil
}

// stripGitHubPrefix drops GitHub's synthetic top-level wrapper directory
// (named after the owner/repo/commit triple) by position: the first path
// segment of each entry is removed, whatever its name, and an entry with no
// further segment (the wrapper itself) yields "". The "archive.tgz"/dotfile framing
// in §4.10 describes GitHub's own extraction tooling; go-github's tarball
// download is a plain nested tar, so the same single-prefix strip serves.
func stripGitHubPrefix(name string) string {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
