package install

import (
	"sort"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/lockfile"
	"github.com/anyt-io/pspm-cli/resolver"
)

// resolveFromLock rebuilds a resolver.Result for rootDeps entirely from an
// existing lockfile, calling neither ListVersions nor GetVersion: this is
// the --frozen-lockfile path, where a dependency the lockfile already pins
// must install from that pin alone, not from a fresh registry resolution
// (§4.12 step 5). Any root or transitive registry dependency missing from
// the lockfile is reported through Graph.Errors exactly the way the network
// resolver reports an unresolvable package, so Add's existing
// success/failure handling applies unchanged.
func resolveFromLock(rootDeps map[string]string, lf *lockfile.Lockfile) *resolver.Result {
	nodes := map[string]*resolver.Node{}
	var errs []error
	var discoveryOrder []string
	visited := map[string]bool{}

	roots := make([]string, 0, len(rootDeps))
	for name := range rootDeps {
		roots = append(roots, name)
	}
	sort.Strings(roots)

	var visit func(name string, isDirect bool)
	visit = func(name string, isDirect bool) {
		if visited[name] {
			return
		}
		visited[name] = true
		discoveryOrder = append(discoveryOrder, name)

		pkg, ok := lf.Packages[name]
		if !ok {
			errs = append(errs, &pspm.FrozenLockfileError{Identity: name, Reason: "not present in lockfile"})
			return
		}

		username, skillName, ok := registryKeyParts(name)
		if !ok {
			errs = append(errs, &pspm.FrozenLockfileError{Identity: name, Reason: "not a valid registry identity"})
			return
		}

		nodes[name] = &resolver.Node{
			Name:               name,
			Username:           username,
			SkillName:          skillName,
			Version:            pkg.Version,
			Integrity:          pkg.Integrity,
			DownloadURL:        pkg.Resolved,
			Dependencies:       pkg.Dependencies,
			IsDirect:           isDirect,
			DeprecationMessage: pkg.Deprecated,
		}

		for dep := range pkg.Dependencies {
			visit(dep, false)
		}
	}

	for _, name := range roots {
		visit(name, true)
	}

	return &resolver.Result{
		Success: len(errs) == 0,
		Graph: resolver.Graph{
			Nodes:  nodes,
			Roots:  roots,
			Errors: errs,
		},
		InstallOrder: resolver.TopoSort(nodes, discoveryOrder),
	}
}

func registryKeyParts(name string) (username, skillName string, ok bool) {
	s, err := pspm.ParseSpecifier(name)
	if err != nil || s.Kind != pspm.SourceRegistry {
		return "", "", false
	}
	return s.Username, s.Name, true
}
