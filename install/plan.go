package install

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/extract"
	"github.com/anyt-io/pspm-cli/integrity"
	"github.com/anyt-io/pspm-cli/lockfile"
	"github.com/anyt-io/pspm-cli/manifest"
	"github.com/anyt-io/pspm-cli/resolver"
	"github.com/anyt-io/pspm-cli/source"
)

// planInputs bundles everything runPlan needs, gathered by Add before any
// filesystem write happens.
type planInputs struct {
	order         []string
	resolved      *resolver.Result
	githubSpecs   []pspm.Specifier
	localSpecs    []pspm.Specifier
	githubResults map[string]source.Result
	localResults  map[string]source.Result
}

// runPlan executes §4.12 step 4: resolver output first (in topological
// order), then GitHub nodes, then local nodes. Each package's own
// lifecycle (fetch → verify → extract → lockfile update → link) is
// strictly sequential; this implementation also runs each package
// sequentially across the board, which satisfies that ordering trivially.
// The only concurrency is the bounded tarball prefetch
// (prefetchRegistryBytes, via parallelFor), which fetches bytes ahead of
// that sequential pass and never extracts, records or links.
func (o *Orchestrator) runPlan(ctx context.Context, in planInputs, lf *lockfile.Lockfile, m *manifest.Manifest, agents []string, overrides map[string]string, reports *[]PackageReport) []pspm.InstalledSkill {
	var installed []pspm.InstalledSkill

	if in.resolved != nil {
		prefetched := o.prefetchRegistryBytes(ctx, in.order, in.resolved)
		for _, name := range in.order {
			node := in.resolved.Graph.Nodes[name]
			if node == nil {
				continue
			}
			skill, err := o.installRegistryNode(ctx, node, prefetched[name], lf, m)
			if err != nil {
				*reports = append(*reports, PackageReport{Identity: name, Err: err})
				continue
			}
			installed = append(installed, skill)
			if err := o.Linker.Link(agents, overrides, []pspm.InstalledSkill{skill}); err != nil {
				o.Logger.Warnf("linking %s: %s", name, err)
			}
		}
	}

	for _, spec := range in.githubSpecs {
		key := spec.GitHubKey()
		res := in.githubResults[key]
		skill, err := o.installGitHubNode(spec, res, lf, m)
		if err != nil {
			*reports = append(*reports, PackageReport{Identity: key, Err: err})
			continue
		}
		installed = append(installed, skill)
		if err := o.Linker.Link(agents, overrides, []pspm.InstalledSkill{skill}); err != nil {
			o.Logger.Warnf("linking %s: %s", key, err)
		}
	}

	for _, spec := range in.localSpecs {
		key := spec.LocalKey()
		res := in.localResults[key]
		skill, err := o.installLocalNode(spec, res, lf, m)
		if err != nil {
			*reports = append(*reports, PackageReport{Identity: key, Err: err})
			continue
		}
		installed = append(installed, skill)
		if err := o.Linker.Link(agents, overrides, []pspm.InstalledSkill{skill}); err != nil {
			o.Logger.Warnf("linking %s: %s", key, err)
		}
	}

	return installed
}

// prefetchRegistryBytes fetches independent nodes' tarball bytes
// concurrently, bounded by o.maxConcurrency (§5: "the orchestrator may
// internally parallelise independent I/O"). It is best-effort: any node
// this fails to populate simply falls back to the sequential cache-then-
// network path inside installRegistryNode, which is the authoritative
// source of the error report for that package.
func (o *Orchestrator) prefetchRegistryBytes(ctx context.Context, order []string, res *resolver.Result) map[string][]byte {
	out := make(map[string][]byte, len(order))
	var mu sync.Mutex

	limit := o.maxConcurrency
	if limit <= 0 {
		limit = 1
	}
	_ = parallelFor(ctx, limit, len(order), func(ctx context.Context, i int) error {
		name := order[i]
		node := res.Graph.Nodes[name]
		if node == nil {
			return nil
		}
		if data, hit := o.Cache.Get(node.Integrity); hit {
			mu.Lock()
			out[name] = data
			mu.Unlock()
			return nil
		}
		if o.Cfg.FrozenLockfile {
			return nil
		}
		fetched, err := o.RegistrySrc.Fetch(ctx, name, o.Cfg.Token, node.DownloadURL, hexChecksum(node.Integrity))
		if err != nil {
			return nil
		}
		if _, err := o.Cache.Put(fetched.Bytes); err != nil {
			o.Logger.Warnf("caching %s: %s", name, err)
		}
		mu.Lock()
		out[name] = fetched.Bytes
		mu.Unlock()
		return nil
	})
	return out
}

// installRegistryNode verifies, extracts, and records the lockfile/
// manifest entries for one resolved registry node. If prefetched is nil,
// it falls back to a sequential cache-then-network fetch itself.
func (o *Orchestrator) installRegistryNode(ctx context.Context, node *resolver.Node, prefetched []byte, lf *lockfile.Lockfile, m *manifest.Manifest) (pspm.InstalledSkill, error) {
	identity := node.Name

	data := prefetched
	if data == nil {
		cached, hit := o.Cache.Get(node.Integrity)
		if hit {
			data = cached
		} else {
			if o.Cfg.FrozenLockfile {
				return pspm.InstalledSkill{}, &pspm.FrozenLockfileError{Identity: identity, Reason: "not present in cache"}
			}
			res, err := o.RegistrySrc.Fetch(ctx, identity, o.Cfg.Token, node.DownloadURL, hexChecksum(node.Integrity))
			if err != nil {
				return pspm.InstalledSkill{}, err
			}
			data = res.Bytes
			if _, err := o.Cache.Put(data); err != nil {
				o.Logger.Warnf("caching %s: %s", identity, err)
			}
		}
	}

	storePath := filepath.ToSlash(filepath.Join(".pspm/skills", node.Username, node.SkillName))
	dest := filepath.Join(o.Cfg.ProjectRoot, storePath)
	if err := extract.Extract(dest, data, extract.KindRegistry, "", ""); err != nil {
		return pspm.InstalledSkill{}, err
	}

	lf.Packages[identity] = lockfile.Package{
		Version:      node.Version,
		Resolved:     node.DownloadURL,
		Integrity:    node.Integrity,
		Deprecated:   node.DeprecationMessage,
		Dependencies: node.Dependencies,
	}
	if node.IsDirect {
		m.AddDependency(identity, versionRange(node))
	}

	return pspm.InstalledSkill{Name: node.SkillName, StorePath: storePath}, nil
}

func versionRange(node *resolver.Node) string {
	return "^" + node.Version
}

func hexChecksum(sha256Integrity string) string {
	hex, err := integrityToHex(sha256Integrity)
	if err != nil {
		return ""
	}
	return hex
}

func integrityToHex(s string) (string, error) {
	name, err := integrity.CacheFilename(s)
	if err != nil {
		return "", err
	}
	// CacheFilename is "sha256-<hex>.tgz"; strip the wrapping to recover
	// the hex checksum the registry source fetcher compares against.
	const prefix = "sha256-"
	const suffix = ".tgz"
	return name[len(prefix) : len(name)-len(suffix)], nil
}

// installGitHubNode places an already-fetched GitHub tarball and records
// the lockfile/manifest entries.
func (o *Orchestrator) installGitHubNode(spec pspm.Specifier, res source.Result, lf *lockfile.Lockfile, m *manifest.Manifest) (pspm.InstalledSkill, error) {
	identity := spec.GitHubKey()

	// Unlike the registry, GitHub supplies no external checksum to verify
	// against: integrity here is computed once by the fetcher and simply
	// carried through to the lockfile and cache key (§4.7).
	data, hit := o.Cache.Get(res.Integrity)
	if !hit {
		data = res.Bytes
		if len(data) > 0 {
			if _, err := o.Cache.Put(data); err != nil {
				o.Logger.Warnf("caching %s: %s", identity, err)
			}
		}
	}

	storePath := filepath.ToSlash(filepath.Join(".pspm/skills/_github", spec.Owner, spec.Repo, spec.Path))
	dest := filepath.Join(o.Cfg.ProjectRoot, storePath)
	repo := spec.Owner + "/" + spec.Repo
	if err := extract.Extract(dest, data, extract.KindGitHub, repo, spec.Path); err != nil {
		return pspm.InstalledSkill{}, err
	}

	lf.GitHubPackages[identity] = lockfile.GitHubPackage{
		Version:   res.CanonicalVersion,
		Resolved:  res.Resolved,
		Integrity: res.Integrity,
		GitCommit: res.CanonicalVersion,
		GitRef:    spec.Ref,
	}
	m.AddGitHubDependency(identity, spec.Ref)

	name := spec.Repo
	if spec.Path != "" {
		name = filepath.Base(spec.Path)
	}
	return pspm.InstalledSkill{Name: name, StorePath: storePath}, nil
}

// installLocalNode symlinks the skill into the store (never extracted) and
// records the lockfile/manifest entries.
func (o *Orchestrator) installLocalNode(spec pspm.Specifier, res source.Result, lf *lockfile.Lockfile, m *manifest.Manifest) (pspm.InstalledSkill, error) {
	identity := spec.LocalKey()
	name := source.SkillName(res.Resolved)

	storePath := filepath.ToSlash(filepath.Join(".pspm/skills/_local", name))
	dest := filepath.Join(o.Cfg.ProjectRoot, storePath)

	if err := relinkLocal(dest, res.Resolved); err != nil {
		return pspm.InstalledSkill{}, err
	}

	lf.LocalPackages[identity] = lockfile.LocalPackage{
		Version:      "local",
		Path:         spec.LocalPath,
		ResolvedPath: res.Resolved,
		Name:         name,
	}
	m.AddLocalDependency(identity, "*")

	return pspm.InstalledSkill{Name: name, StorePath: storePath}, nil
}

// relinkLocal places the store-level symlink for a local dependency: a
// plain remove-and-recreate, unlike the agent linker's reconciliation,
// since the store entry is wholly owned by this package rather than
// shared with anything the user might have placed there by hand.
func relinkLocal(dest, target string) error {
	if err := os.RemoveAll(dest); err != nil {
		return &pspm.FilesystemError{Path: dest, Op: "removeall", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &pspm.FilesystemError{Path: dest, Op: "mkdir", Err: err}
	}
	rel, err := filepath.Rel(filepath.Dir(dest), target)
	if err != nil {
		return errors.Wrapf(err, "computing relative path from %s to %s", dest, target)
	}
	if err := os.Symlink(rel, dest); err != nil {
		return &pspm.FilesystemError{Path: dest, Op: "symlink", Err: err}
	}
	return nil
}
