// Package manifest implements C4: reading and read-modify-writing the
// project manifest, pspm.json.
package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileName is the manifest's on-disk name, per §6.
const FileName = "pspm.json"

// AgentOverride is an entry in the manifest's "agents" map (§3, §6).
type AgentOverride struct {
	SkillsDir string `json:"skillsDir,omitempty"`
}

// Manifest is the in-memory form of pspm.json: three dependency maps, an
// agent override map, and whatever publish-only metadata the core doesn't
// interpret (preserved verbatim on write).
type Manifest struct {
	Dependencies       map[string]string        `json:"dependencies,omitempty"`
	GitHubDependencies map[string]string        `json:"githubDependencies,omitempty"`
	LocalDependencies  map[string]string        `json:"localDependencies,omitempty"`
	Agents             map[string]AgentOverride `json:"agents,omitempty"`

	// Extra carries unknown top-level keys (name, version, files, main,
	// capabilities, private, ...) byte-for-byte so a round trip never loses
	// publish-only metadata the core is opaque to.
	Extra map[string]json.RawMessage `json:"-"`
}

// New returns an empty manifest, as used when pspm.json is absent.
func New() *Manifest {
	return &Manifest{
		Dependencies:       map[string]string{},
		GitHubDependencies: map[string]string{},
		LocalDependencies:  map[string]string{},
		Agents:             map[string]AgentOverride{},
		Extra:              map[string]json.RawMessage{},
	}
}

var knownKeys = map[string]bool{
	"dependencies":       true,
	"githubDependencies": true,
	"localDependencies":  true,
	"agents":             true,
}

// Load reads pspm.json at projectRoot. A missing file yields an empty
// manifest, not an error (§4.4).
func Load(projectRoot string) (*Manifest, error) {
	path := filepath.Join(projectRoot, FileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	var extra map[string]json.RawMessage
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	m := New()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.GitHubDependencies == nil {
		m.GitHubDependencies = map[string]string{}
	}
	if m.LocalDependencies == nil {
		m.LocalDependencies = map[string]string{}
	}
	if m.Agents == nil {
		m.Agents = map[string]AgentOverride{}
	}

	for k, v := range extra {
		if !knownKeys[k] {
			m.Extra[k] = v
		}
	}

	return m, nil
}

// Save writes m to pspm.json at projectRoot: two-space JSON, trailing
// newline, created lazily, written atomically (temp file plus rename).
func Save(projectRoot string, m *Manifest) error {
	path := filepath.Join(projectRoot, FileName)

	merged := map[string]json.RawMessage{}
	for k, v := range m.Extra {
		merged[k] = v
	}

	if len(m.Dependencies) > 0 {
		b, err := json.Marshal(m.Dependencies)
		if err != nil {
			return errors.Wrap(err, "marshalling dependencies")
		}
		merged["dependencies"] = b
	}
	if len(m.GitHubDependencies) > 0 {
		b, err := json.Marshal(m.GitHubDependencies)
		if err != nil {
			return errors.Wrap(err, "marshalling githubDependencies")
		}
		merged["githubDependencies"] = b
	}
	if len(m.LocalDependencies) > 0 {
		b, err := json.Marshal(m.LocalDependencies)
		if err != nil {
			return errors.Wrap(err, "marshalling localDependencies")
		}
		merged["localDependencies"] = b
	}
	if len(m.Agents) > 0 {
		b, err := json.Marshal(m.Agents)
		if err != nil {
			return errors.Wrap(err, "marshalling agents")
		}
		merged["agents"] = b
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(merged); err != nil {
		return errors.Wrap(err, "encoding manifest")
	}

	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".pspm.json.*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp manifest file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp manifest file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp manifest file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// AddDependency records a registry dependency.
func (m *Manifest) AddDependency(registryKey, rng string) {
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	m.Dependencies[registryKey] = rng
}

// RemoveDependency removes a registry dependency.
func (m *Manifest) RemoveDependency(registryKey string) {
	delete(m.Dependencies, registryKey)
}

// AddGitHubDependency records a GitHub dependency.
func (m *Manifest) AddGitHubDependency(githubKey, ref string) {
	if m.GitHubDependencies == nil {
		m.GitHubDependencies = map[string]string{}
	}
	m.GitHubDependencies[githubKey] = ref
}

// RemoveGitHubDependency removes a GitHub dependency.
func (m *Manifest) RemoveGitHubDependency(githubKey string) {
	delete(m.GitHubDependencies, githubKey)
}

// AddLocalDependency records a local dependency (conventionally marker "*").
func (m *Manifest) AddLocalDependency(localKey, marker string) {
	if m.LocalDependencies == nil {
		m.LocalDependencies = map[string]string{}
	}
	m.LocalDependencies[localKey] = marker
}

// RemoveLocalDependency removes a local dependency.
func (m *Manifest) RemoveLocalDependency(localKey string) {
	delete(m.LocalDependencies, localKey)
}

// ResolveAgentSkillsDir merges built-in defaults with manifest overrides for
// a single agent name, returning ok=false for an unknown, non-overridden
// agent (§4.11: unknown agent names produce a warning and are skipped).
func (m *Manifest) ResolveAgentSkillsDir(name string, builtins map[string]string) (string, bool) {
	if o, found := m.Agents[name]; found && o.SkillsDir != "" {
		return o.SkillsDir, true
	}
	if dir, found := builtins[name]; found {
		return dir, true
	}
	return "", false
}
