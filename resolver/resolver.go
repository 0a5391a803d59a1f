// Package resolver implements C9: the two-phase BFS resolver over the
// registry dependency graph. GitHub and local dependencies are leaves and
// never enter this package.
package resolver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/integrity"
	"github.com/anyt-io/pspm-cli/registry"
	pspmsemver "github.com/anyt-io/pspm-cli/semver"
)

// DefaultMaxDepth is the resolver's default recursion bound (§4.9).
const DefaultMaxDepth = 5

// RegistryAPI is the subset of the registry client the resolver consumes;
// *registry.Client satisfies it, and tests can supply a fake.
type RegistryAPI interface {
	ListVersions(ctx context.Context, username, name string) ([]registry.VersionInfo, error)
	GetVersion(ctx context.Context, username, name, version string) (*registry.VersionMetadata, error)
}

// Config holds resolver-wide parameters.
type Config struct {
	MaxDepth int
}

// Node is a resolved registry dependency: ResolvedNode in §4.9's vocabulary.
type Node struct {
	Name               string // canonical registry key, e.g. "@user/alice/a"
	Username           string
	SkillName          string
	Version            string
	Integrity          string
	DownloadURL        string
	Dependencies       map[string]string // registry key -> range, as declared by the resolved version
	Depth              int
	Dependents         []string
	IsDirect           bool
	DeprecationMessage string
}

// Graph is the resolver's full output state.
type Graph struct {
	Nodes     map[string]*Node
	Roots     []string
	Errors    []error
	Conflicts []*pspm.VersionConflictError
}

// Result is what Resolve returns.
type Result struct {
	Success      bool
	Graph        Graph
	InstallOrder []string
}

type rangeEntry struct {
	Range     string
	Dependent string
	Depth     int
}

type queueItem struct {
	Name      string
	Range     string
	Depth     int
	Dependent string
	Path      []string
}

type resolveState struct {
	cfg            Config
	api            RegistryAPI
	rangesByPkg    map[string][]rangeEntry
	nodes          map[string]*Node
	discoveryOrder []string
	versionsCache  map[string][]string
	errs           []error
	conflicts      []*pspm.VersionConflictError
}

// Resolve runs the full two-phase-plus-toposort algorithm over rootDeps (a
// registry-key -> range map of direct dependencies).
func Resolve(ctx context.Context, rootDeps map[string]string, cfg Config, api RegistryAPI) (*Result, error) {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	st := &resolveState{
		cfg:           cfg,
		api:           api,
		rangesByPkg:   map[string][]rangeEntry{},
		nodes:         map[string]*Node{},
		versionsCache: map[string][]string{},
	}

	roots := make([]string, 0, len(rootDeps))
	queue := make([]queueItem, 0, len(rootDeps))
	for name, rng := range rootDeps {
		roots = append(roots, name)
		queue = append(queue, queueItem{Name: name, Range: rng, Depth: 0, Dependent: "root", Path: nil})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		more := st.processOne(ctx, item)
		queue = append(queue, more...)
	}

	st.finalize(ctx)

	order := st.topoSort()

	return &Result{
		Success: len(st.errs) == 0 && len(st.conflicts) == 0,
		Graph: Graph{
			Nodes:     st.nodes,
			Roots:     roots,
			Errors:    st.errs,
			Conflicts: st.conflicts,
		},
		InstallOrder: order,
	}, nil
}

func splitRegistryKey(name string) (username, skill string, ok bool) {
	s, err := pspm.ParseSpecifier(name)
	if err != nil || s.Kind != pspm.SourceRegistry {
		return "", "", false
	}
	return s.Username, s.Name, true
}

func contains(path []string, name string) bool {
	for _, p := range path {
		if p == name {
			return true
		}
	}
	return false
}

func (st *resolveState) recordDependent(name, dependent string) {
	n, ok := st.nodes[name]
	if !ok {
		return
	}
	for _, d := range n.Dependents {
		if d == dependent {
			return
		}
	}
	n.Dependents = append(n.Dependents, dependent)
}

// processOne handles one dequeued item and returns the follow-up items it
// enqueues (phase 1 of §4.9).
func (st *resolveState) processOne(ctx context.Context, item queueItem) []queueItem {
	fullPath := append(append([]string{}, item.Path...), item.Name)

	if item.Depth > st.cfg.MaxDepth {
		st.errs = append(st.errs, &pspm.MaxDepthExceededError{Path: fullPath, MaxDepth: st.cfg.MaxDepth})
		return nil
	}
	if contains(item.Path, item.Name) {
		st.errs = append(st.errs, &pspm.CircularDependencyError{Path: fullPath})
		return nil
	}

	if _, seen := st.rangesByPkg[item.Name]; !seen {
		st.discoveryOrder = append(st.discoveryOrder, item.Name)
	}
	st.rangesByPkg[item.Name] = append(st.rangesByPkg[item.Name], rangeEntry{Range: item.Range, Dependent: item.Dependent, Depth: item.Depth})

	if _, exists := st.nodes[item.Name]; exists {
		st.recordDependent(item.Name, item.Dependent)
		return nil
	}

	username, skillName, ok := splitRegistryKey(item.Name)
	if !ok {
		st.errs = append(st.errs, &pspm.NotFoundError{Identity: item.Name, Detail: "not a valid registry identity"})
		return nil
	}

	versions, err := st.listVersions(ctx, item.Name, username, skillName)
	if err != nil {
		st.errs = append(st.errs, err)
		return nil
	}

	provisional, ok := pspmsemver.FindHighestSatisfying([]string{item.Range}, versions)
	if !ok {
		st.errs = append(st.errs, &pspm.NoSatisfyingVersionError{
			Package:  item.Name,
			Witness:  []pspm.RangeWitness{{Dependent: item.Dependent, Range: item.Range}},
			Versions: versions,
		})
		return nil
	}

	meta, err := st.api.GetVersion(ctx, username, skillName, provisional)
	if err != nil {
		st.errs = append(st.errs, errors.Wrapf(err, "fetching metadata for %s@%s", item.Name, provisional))
		return nil
	}

	node := buildNode(item.Name, username, skillName, provisional, item.Depth, item.Dependent, meta)
	st.nodes[item.Name] = node

	var next []queueItem
	for depName, depRange := range node.Dependencies {
		next = append(next, queueItem{Name: depName, Range: depRange, Depth: item.Depth + 1, Dependent: item.Name, Path: fullPath})
	}
	return next
}

func buildNode(name, username, skillName, version string, depth int, dependent string, meta *registry.VersionMetadata) *Node {
	digest, _ := integrity.FromHex(meta.Checksum)
	return &Node{
		Name:               name,
		Username:           username,
		SkillName:          skillName,
		Version:            version,
		Integrity:          digest,
		DownloadURL:        meta.DownloadURL,
		Dependencies:       meta.Manifest.Dependencies,
		Depth:              depth,
		Dependents:         []string{dependent},
		IsDirect:           depth == 0,
		DeprecationMessage: meta.DeprecationMessage,
	}
}

func (st *resolveState) listVersions(ctx context.Context, name, username, skillName string) ([]string, error) {
	if cached, ok := st.versionsCache[name]; ok {
		return cached, nil
	}
	infos, err := st.api.ListVersions(ctx, username, skillName)
	if err != nil {
		return nil, err
	}
	versions := make([]string, len(infos))
	for i, v := range infos {
		versions[i] = v.Version
	}
	st.versionsCache[name] = versions
	return versions, nil
}

// finalize runs phase 2: multi-range finalisation over every package whose
// ranges were collected in phase 1.
func (st *resolveState) finalize(ctx context.Context) {
	for _, name := range st.discoveryOrder {
		entries := st.rangesByPkg[name]
		node, hasNode := st.nodes[name]
		if !hasNode {
			// Already recorded as an error in phase 1 (not found, no
			// satisfying version, etc); nothing to finalise.
			continue
		}

		ranges := make([]string, len(entries))
		witness := make([]pspm.RangeWitness, len(entries))
		for i, e := range entries {
			ranges[i] = e.Range
			witness[i] = pspm.RangeWitness{Dependent: e.Dependent, Range: e.Range}
		}

		versions, err := st.listVersions(ctx, name, node.Username, node.SkillName)
		if err != nil {
			st.errs = append(st.errs, errors.Wrapf(err, "re-listing versions for %s", name))
			continue
		}

		final, ok := pspmsemver.FindHighestSatisfying(ranges, versions)
		if !ok {
			st.conflicts = append(st.conflicts, &pspm.VersionConflictError{
				Package:           name,
				Witness:           witness,
				AvailableVersions: versions,
			})
			st.errs = append(st.errs, &pspm.NoSatisfyingVersionError{Package: name, Witness: witness, Versions: versions})
			continue
		}

		if final != node.Version {
			meta, err := st.api.GetVersion(ctx, node.Username, node.SkillName, final)
			if err != nil {
				st.errs = append(st.errs, errors.Wrapf(err, "fetching metadata for %s@%s", name, final))
				continue
			}
			digest, _ := integrity.FromHex(meta.Checksum)
			node.Version = final
			node.DownloadURL = meta.DownloadURL
			node.Integrity = digest
			node.Dependencies = meta.Manifest.Dependencies
			node.DeprecationMessage = meta.DeprecationMessage
		}
	}
}

// topoSort implements phase 3 over the resolver's own state.
func (st *resolveState) topoSort() []string {
	return TopoSort(st.nodes, st.discoveryOrder)
}

// TopoSort orders nodes via Kahn's algorithm, processed in discoveryOrder
// for determinism. Edges pointing outside nodes are ignored. If a genuine
// cycle slipped through (possible when both ends of a short cycle already
// built nodes before the cycle was detected), the leftover nodes are
// appended in discoveryOrder rather than looping forever; callers that
// build nodes from a source that guarantees acyclicity can ignore that
// case, but it never hangs either way. Exported so a frozen-lockfile
// install can topo-sort a Node set built from the lockfile instead of the
// network (§4.12 step 5).
func TopoSort(nodes map[string]*Node, discoveryOrder []string) []string {
	inDegree := map[string]int{}
	for name := range nodes {
		inDegree[name] = 0
	}
	for name, node := range nodes {
		for dep := range node.Dependencies {
			if _, ok := nodes[dep]; ok {
				inDegree[name]++
			}
		}
	}

	remaining := map[string]bool{}
	for name := range nodes {
		remaining[name] = true
	}

	var order []string
	for len(remaining) > 0 {
		progressed := false
		for _, name := range discoveryOrder {
			if !remaining[name] || inDegree[name] != 0 {
				continue
			}
			order = append(order, name)
			delete(remaining, name)
			progressed = true
			for other, node := range nodes {
				if !remaining[other] {
					continue
				}
				if _, depends := node.Dependencies[name]; depends {
					inDegree[other]--
				}
			}
		}
		if !progressed {
			for _, name := range discoveryOrder {
				if remaining[name] {
					order = append(order, name)
					delete(remaining, name)
				}
			}
			break
		}
	}
	return order
}
