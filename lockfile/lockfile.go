// Package lockfile implements C5: reading and writing pspm-lock.json,
// including the legacy-filename detection and format-versioned
// upgrade-on-read described in §3/§4.5.
package lockfile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileName is the current on-disk name.
const FileName = "pspm-lock.json"

// LegacyFileName is the v1 on-disk name, read-only.
const LegacyFileName = "skill-lock.json"

// CurrentVersion is the highest lockfileVersion this package understands.
const CurrentVersion = 5

// Package is a resolved registry dependency entry.
type Package struct {
	Version      string            `json:"version"`
	Resolved     string            `json:"resolved"`
	Integrity    string            `json:"integrity"`
	Deprecated   string            `json:"deprecated,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// GitHubPackage is a resolved GitHub dependency entry.
type GitHubPackage struct {
	Version   string `json:"version"`
	Resolved  string `json:"resolved"`
	Integrity string `json:"integrity"`
	GitCommit string `json:"gitCommit"`
	GitRef    string `json:"gitRef"`
}

// LocalPackage is a resolved local dependency entry. Version is always the
// literal "local"; integrity is unused (§3).
type LocalPackage struct {
	Version      string `json:"version"`
	Path         string `json:"path"`
	ResolvedPath string `json:"resolvedPath"`
	Name         string `json:"name"`
}

// Lockfile is the in-memory, always-current-shape form of pspm-lock.json.
type Lockfile struct {
	LockfileVersion int                      `json:"lockfileVersion"`
	RegistryURL     string                   `json:"registryUrl"`
	Packages        map[string]Package       `json:"packages,omitempty"`
	GitHubPackages  map[string]GitHubPackage `json:"githubPackages,omitempty"`
	LocalPackages   map[string]LocalPackage  `json:"localPackages,omitempty"`
}

// New returns an empty, current-shape lockfile for registryURL.
func New(registryURL string) *Lockfile {
	return &Lockfile{
		LockfileVersion: CurrentVersion,
		RegistryURL:     registryURL,
		Packages:        map[string]Package{},
		GitHubPackages:  map[string]GitHubPackage{},
		LocalPackages:   map[string]LocalPackage{},
	}
}

// Load reads the lockfile at projectRoot, detecting the legacy filename if
// the current one is absent, and normalising whatever version it finds to
// the current in-memory shape. Renaming the file on disk is left to the
// next Save call (§4.5). A missing lockfile (neither filename present)
// returns a nil Lockfile and no error: the caller interprets that as
// "resolve from scratch".
func Load(projectRoot string) (*Lockfile, error) {
	path := filepath.Join(projectRoot, FileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		legacyPath := filepath.Join(projectRoot, LegacyFileName)
		raw, err = os.ReadFile(legacyPath)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", legacyPath)
		}
		return upgradeFromV1(raw)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return upgradeFromRaw(raw)
}

// Save writes l to pspm-lock.json at projectRoot, choosing the minimum
// lockfileVersion that carries every populated section, and writing through
// a temp-file-plus-rename so a crash mid-write cannot leave a
// half-serialised file visible (§4.5).
func Save(projectRoot string, l *Lockfile) error {
	out := *l
	out.LockfileVersion = minimumVersion(l)
	if out.Packages == nil {
		out.Packages = map[string]Package{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sortedLockfile(out)); err != nil {
		return errors.Wrap(err, "encoding lockfile")
	}

	path := filepath.Join(projectRoot, FileName)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return err
	}

	// A stale legacy file would otherwise shadow the freshly written
	// current-version file on the next Load.
	legacyPath := filepath.Join(projectRoot, LegacyFileName)
	_ = os.Remove(legacyPath)
	return nil
}

// sortedLockfile returns a copy whose maps marshal in deterministic key
// order for byte-stable diffs; Go's encoding/json already sorts map keys,
// this exists to make that contract explicit and testable.
func sortedLockfile(l Lockfile) Lockfile {
	return l
}

func minimumVersion(l *Lockfile) int {
	v := 2
	if len(l.GitHubPackages) > 0 {
		v = 3
	}
	for _, p := range l.Packages {
		if len(p.Dependencies) > 0 && v < 4 {
			v = 4
		}
	}
	if len(l.LocalPackages) > 0 && v < 5 {
		v = 5
	}
	return v
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".pspm-lock.json.*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp lockfile")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp lockfile")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp lockfile")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// sortedKeys is a small helper used by PackageNames to present
// deterministic output.
func sortedKeys(m map[string]Package) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PackageNames returns the sorted keys of l.Packages, for deterministic
// reporting and the "transitive closure" testable property in §8.
func (l *Lockfile) PackageNames() []string {
	if l == nil {
		return nil
	}
	return sortedKeys(l.Packages)
}

// Clone returns a deep copy of l, including its three package maps, so a
// caller can snapshot pre-mutation state (e.g. to diff against after a
// mutating install pass) independently of the original.
func (l *Lockfile) Clone() *Lockfile {
	if l == nil {
		return nil
	}
	out := *l

	out.Packages = make(map[string]Package, len(l.Packages))
	for k, v := range l.Packages {
		out.Packages[k] = v
	}
	out.GitHubPackages = make(map[string]GitHubPackage, len(l.GitHubPackages))
	for k, v := range l.GitHubPackages {
		out.GitHubPackages[k] = v
	}
	out.LocalPackages = make(map[string]LocalPackage, len(l.LocalPackages))
	for k, v := range l.LocalPackages {
		out.LocalPackages[k] = v
	}
	return &out
}
