package install

import (
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/anyt-io/pspm-cli/lockfile"
)

// lockDiff is the pretty-printable shape of a lockfile diff, rendered for
// the install log rather than the on-disk format, which stays JSON (§3, §6).
type lockDiff struct {
	Added    []string `toml:"added,omitempty"`
	Removed  []string `toml:"removed,omitempty"`
	Modified []string `toml:"modified,omitempty"`
}

func (d lockDiff) empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// diffLockfiles computes an add/remove/modify diff across all three
// package maps and renders it with go-toml for the install log; it never
// touches the on-disk lockfile format. Returns "" when nothing changed.
func diffLockfiles(before, after *lockfile.Lockfile) string {
	d := lockDiff{}

	beforeVersions := map[string]string{}
	afterVersions := map[string]string{}
	if before != nil {
		collectVersions(beforeVersions, before)
	}
	if after != nil {
		collectVersions(afterVersions, after)
	}

	var added, removed, modified []string
	for key, v := range afterVersions {
		if old, ok := beforeVersions[key]; !ok {
			added = append(added, key)
		} else if old != v {
			modified = append(modified, key)
		}
	}
	for key := range beforeVersions {
		if _, ok := afterVersions[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)
	d.Added, d.Removed, d.Modified = added, removed, modified

	if d.empty() {
		return ""
	}

	b, _ := toml.Marshal(d)
	return string(b)
}

func collectVersions(out map[string]string, l *lockfile.Lockfile) {
	for k, p := range l.Packages {
		out[k] = p.Version
	}
	for k, p := range l.GitHubPackages {
		out[k] = p.Version
	}
	for k, p := range l.LocalPackages {
		out[k] = p.ResolvedPath
	}
}
