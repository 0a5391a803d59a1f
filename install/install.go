// Package install implements C12: the orchestrator that drives
// validate → resolve → plan → fetch → verify → extract → relink, honouring
// frozen-lockfile mode.
package install

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/cache"
	"github.com/anyt-io/pspm-cli/link"
	"github.com/anyt-io/pspm-cli/lockfile"
	"github.com/anyt-io/pspm-cli/log"
	"github.com/anyt-io/pspm-cli/manifest"
	"github.com/anyt-io/pspm-cli/registry"
	"github.com/anyt-io/pspm-cli/resolver"
	"github.com/anyt-io/pspm-cli/source"
)

// PackageReport is the per-specifier outcome of a run, success or failure.
type PackageReport struct {
	Identity string
	Err      error
}

// Result is what Add/Install return: enough for the CLI layer to decide
// its exit status and print a summary.
type Result struct {
	Reports   []PackageReport
	Installed []pspm.InstalledSkill
	Orphans   []string
}

// Orchestrator wires every C1-C11 component into the pipeline described in
// §4.12.
type Orchestrator struct {
	Cfg         pspm.Config
	Logger      *log.Logger
	Registry    *registry.Client
	GitHub      *source.GitHubFetcher
	RegistrySrc *source.RegistryFetcher
	Cache       *cache.Cache
	Linker      *link.Linker

	maxConcurrency int
}

// New builds an Orchestrator from a shared Config; the caller constructs
// the heavier dependencies (GitHub client, HTTP clients) once per process.
func New(cfg pspm.Config, logger *log.Logger) (*Orchestrator, error) {
	gh, err := source.NewGitHubFetcher(cfg)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		Cfg:         cfg,
		Logger:      logger,
		Registry:    registry.NewClient(cfg),
		GitHub:      gh,
		RegistrySrc: source.NewRegistryFetcher(),
		Cache:       cache.New(cfg.ProjectRoot),
		Linker:      &link.Linker{ProjectRoot: cfg.ProjectRoot, Logger: logger},
		maxConcurrency: 4,
	}, nil
}

// Add validates, resolves, and installs the given specifiers, merging them
// into the manifest and lockfile. Install() with no arguments delegates
// here with the manifest's own declared dependencies (§4.12: "install with
// explicit specifier arguments delegates to add").
func (o *Orchestrator) Add(ctx context.Context, raw []string) (*Result, error) {
	m, err := manifest.Load(o.Cfg.ProjectRoot)
	if err != nil {
		return nil, err
	}

	lf, err := lockfile.Load(o.Cfg.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if lf == nil {
		lf = lockfile.New(o.Cfg.RegistryURL)
	}
	before := lf.Clone()

	specs, githubResults, localResults, reports := o.validate(ctx, raw, lf)

	agents := o.selectAgents(m)

	rootDeps := map[string]string{}
	var githubSpecs, localSpecs []pspm.Specifier
	for _, s := range specs {
		switch s.Kind {
		case pspm.SourceRegistry:
			rootDeps[s.RegistryKey()] = s.Range
		case pspm.SourceGitHub:
			githubSpecs = append(githubSpecs, s)
		case pspm.SourceLocal:
			localSpecs = append(localSpecs, s)
		}
	}

	var res *resolver.Result
	if len(rootDeps) > 0 {
		if o.Cfg.FrozenLockfile {
			// Every root dependency already passed validate's lockfile
			// check; the lockfile's own Dependencies closure stands in for
			// a fresh registry resolution, so neither ListVersions nor
			// GetVersion is called (§4.12 step 5).
			res = resolveFromLock(rootDeps, lf)
		} else {
			cfg := resolver.Config{MaxDepth: resolver.DefaultMaxDepth}
			res, err = resolver.Resolve(ctx, rootDeps, cfg, o.Registry)
			if err != nil {
				return nil, err
			}
		}
		if !res.Success {
			// Resolver errors terminate the command before any filesystem
			// writes (§4.12 step 2).
			for _, e := range res.Graph.Errors {
				reports = append(reports, PackageReport{Identity: "resolve", Err: e})
			}
			return &Result{Reports: reports}, nil
		}
	}

	order := o.installOrder(res)
	installed := o.runPlan(ctx, planInputs{
		order:         order,
		resolved:      res,
		githubSpecs:   githubSpecs,
		localSpecs:    localSpecs,
		githubResults: githubResults,
		localResults:  localResults,
	}, lf, m, agents, agentOverrides(m), &reports)

	o.logLockfileDiff(before, lf)

	if err := lockfile.Save(o.Cfg.ProjectRoot, lf); err != nil {
		return nil, err
	}
	if err := manifest.Save(o.Cfg.ProjectRoot, m); err != nil {
		return nil, err
	}

	orphans := o.detectOrphans(lf)

	return &Result{Reports: reports, Installed: installed, Orphans: orphans}, nil
}

// Install re-installs from the existing manifest with no new specifiers.
func (o *Orchestrator) Install(ctx context.Context) (*Result, error) {
	m, err := manifest.Load(o.Cfg.ProjectRoot)
	if err != nil {
		return nil, err
	}
	var raw []string
	for name, rng := range m.Dependencies {
		raw = append(raw, name+"@"+rng)
	}
	for key, ref := range m.GitHubDependencies {
		spec := key
		if ref != "" {
			spec += "@" + ref
		}
		raw = append(raw, spec)
	}
	for key := range m.LocalDependencies {
		raw = append(raw, key)
	}
	return o.Add(ctx, raw)
}

// validate implements §4.12 step 1: parse, then a minimal existence check
// with no installation side effect — a registry metadata lookup, a GitHub
// tarball probe, or a local stat+shape check. Failures accumulate; they
// never abort validation of the remaining specifiers.
//
// Under --frozen-lockfile, a registry specifier already pinned in lf skips
// the ListVersions round trip entirely: the lockfile entry is the only
// existence check permitted (§4.12 step 5). A registry specifier with no
// lockfile entry can't be validated without reaching the network, so it is
// reported as a frozen-lockfile failure instead.
func (o *Orchestrator) validate(ctx context.Context, raw []string, lf *lockfile.Lockfile) (specs []pspm.Specifier, githubResults map[string]source.Result, localResults map[string]source.Result, reports []PackageReport) {
	githubResults = map[string]source.Result{}
	localResults = map[string]source.Result{}
	localFetcher := &source.LocalFetcher{ProjectRoot: o.Cfg.ProjectRoot}

	for _, r := range raw {
		spec, err := pspm.ParseSpecifier(r)
		if err != nil {
			reports = append(reports, PackageReport{Identity: r, Err: err})
			continue
		}

		switch spec.Kind {
		case pspm.SourceRegistry:
			if o.Cfg.FrozenLockfile {
				if _, locked := lf.Packages[spec.RegistryKey()]; !locked {
					reports = append(reports, PackageReport{Identity: spec.RegistryKey(), Err: &pspm.FrozenLockfileError{Identity: spec.RegistryKey(), Reason: "not present in lockfile"}})
					continue
				}
			} else if _, err := o.Registry.ListVersions(ctx, spec.Username, spec.Name); err != nil {
				reports = append(reports, PackageReport{Identity: spec.RegistryKey(), Err: err})
				continue
			}
		case pspm.SourceGitHub:
			// The tarball is fetched here to verify existence (§4.12 step
			// 1b); the bytes are kept so the plan execution below doesn't
			// pay for a second round trip.
			res, err := o.GitHub.Fetch(ctx, spec)
			if err != nil {
				reports = append(reports, PackageReport{Identity: spec.GitHubKey(), Err: err})
				continue
			}
			githubResults[spec.GitHubKey()] = res
		case pspm.SourceLocal:
			res, err := localFetcher.Fetch(ctx, spec)
			if err != nil {
				reports = append(reports, PackageReport{Identity: spec.LocalKey(), Err: err})
				continue
			}
			localResults[spec.LocalKey()] = res
		}
		specs = append(specs, spec)
	}
	return specs, githubResults, localResults, reports
}

// selectAgents implements §4.12 step 3.
func (o *Orchestrator) selectAgents(m *manifest.Manifest) []string {
	if len(o.Cfg.Agents) > 0 {
		return o.Cfg.Agents
	}
	if len(m.Agents) > 0 {
		names := make([]string, 0, len(m.Agents))
		for name := range m.Agents {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	names := make([]string, 0, len(link.BuiltinAgents))
	for name := range link.BuiltinAgents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// installOrder returns the resolver's topological order of registry nodes
// (nil when nothing was resolved). GitHub and local nodes are not part of
// it; runPlan installs them after the registry nodes (§4.12 step 4).
func (o *Orchestrator) installOrder(res *resolver.Result) []string {
	if res == nil {
		return nil
	}
	return res.InstallOrder
}

func (o *Orchestrator) logLockfileDiff(before, after *lockfile.Lockfile) {
	diff := diffLockfiles(before, after)
	if diff == "" {
		return
	}
	o.Logger.Logln(diff)
}

func agentOverrides(m *manifest.Manifest) map[string]string {
	out := map[string]string{}
	for name, ov := range m.Agents {
		out[name] = ov.SkillsDir
	}
	return out
}

func parallelFor(ctx context.Context, limit int, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
