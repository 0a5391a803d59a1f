package install

import (
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/anyt-io/pspm-cli/lockfile"
)

// detectOrphans walks .pspm/skills/** and reports store entries with no
// corresponding lockfile key. This is detection only — it warns and
// returns identities, never deletes; that stays scoped to the explicit
// `remove` flow.
//
// The walk only goes two levels deep under each namespace (registry:
// <username>/<name>, github: <owner>/<repo>, local: <name>), so a GitHub
// dependency pinned to a subpath is tracked by its owner/repo store root
// rather than the subpath itself; this is a known simplification for a
// detect-only feature, not a correctness requirement of §3/§4.12.
func (o *Orchestrator) detectOrphans(lf *lockfile.Lockfile) []string {
	known := map[string]bool{}
	for key := range lf.Packages {
		known[registryStoreRelPath(key)] = true
	}
	for key := range lf.GitHubPackages {
		known[githubStoreRelPath(key)] = true
	}
	for _, p := range lf.LocalPackages {
		known[localStoreRelPath(p.Name)] = true
	}

	root := filepath.Join(o.Cfg.ProjectRoot, ".pspm/skills")
	var present []string
	present = append(present, namespacedEntries(root, "", []string{"_github", "_local"})...)
	present = append(present, namespacedEntries(filepath.Join(root, "_github"), "_github", nil)...)
	present = append(present, flatEntries(filepath.Join(root, "_local"), "_local")...)

	var orphans []string
	for _, p := range present {
		if !known[p] {
			orphans = append(orphans, p)
		}
	}
	for _, orphan := range orphans {
		o.Logger.Warnf("orphaned store entry %s has no matching lockfile key", orphan)
	}
	return orphans
}

// namespacedEntries lists "<dir>/<child>" two-level relative paths under
// root, skipping the given top-level exclusions (the _github/_local
// namespaces, which are walked separately).
func namespacedEntries(root, prefix string, exclude []string) []string {
	top, err := godirwalk.ReadDirnames(root, nil)
	if err != nil {
		return nil
	}
	var out []string
	for _, t := range top {
		if containsStr(exclude, t) {
			continue
		}
		children, err := godirwalk.ReadDirnames(filepath.Join(root, t), nil)
		if err != nil {
			continue
		}
		for _, c := range children {
			rel := filepath.ToSlash(filepath.Join(prefix, t, c))
			out = append(out, strings.TrimPrefix(rel, "/"))
		}
	}
	return out
}

// flatEntries lists the immediate children of root as "<prefix>/<child>".
func flatEntries(root, prefix string) []string {
	names, err := godirwalk.ReadDirnames(root, nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.ToSlash(filepath.Join(prefix, n)))
	}
	return out
}

func containsStr(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func registryStoreRelPath(registryKey string) string {
	// registryKey is "@user/<username>/<name>".
	return strings.TrimPrefix(registryKey, "@user/")
}

func githubStoreRelPath(githubKey string) string {
	// githubKey is "github:<owner>/<repo>[/<path>]"; only owner/repo is
	// tracked at store-root granularity (see detectOrphans' doc comment).
	trimmed := strings.TrimPrefix(githubKey, "github:")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 {
		return filepath.ToSlash(filepath.Join("_github", trimmed))
	}
	return filepath.ToSlash(filepath.Join("_github", parts[0], parts[1]))
}

func localStoreRelPath(name string) string {
	return filepath.ToSlash(filepath.Join("_local", name))
}
