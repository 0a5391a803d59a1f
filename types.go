package pspm

// SourceKind tags which of the three supply channels a skill comes from.
type SourceKind uint8

const (
	// SourceRegistry identifies a skill published to the HTTP registry.
	SourceRegistry SourceKind = iota
	// SourceGitHub identifies a skill living in a GitHub repository.
	SourceGitHub
	// SourceLocal identifies a skill living in a local directory.
	SourceLocal
)

func (k SourceKind) String() string {
	switch k {
	case SourceRegistry:
		return "registry"
	case SourceGitHub:
		return "github"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Specifier is the parsed form of a single dependency reference, covering
// all three source grammars (§3). Only the fields relevant to Kind are
// populated; the rest are zero.
type Specifier struct {
	Kind SourceKind
	Raw  string

	// Registry fields.
	Username string
	Name     string
	Range    string

	// GitHub fields.
	Owner string
	Repo  string
	Path  string
	Ref   string

	// Local fields.
	LocalPath string
}

// RegistryKey returns the canonical registry identity: @user/<username>/<name>.
func (s Specifier) RegistryKey() string {
	return "@user/" + s.Username + "/" + s.Name
}

// GitHubKey returns the canonical GitHub identity, deliberately without the
// ref, so that two specifiers differing only in ref collide on the same key.
func (s Specifier) GitHubKey() string {
	k := "github:" + s.Owner + "/" + s.Repo
	if s.Path != "" {
		k += "/" + s.Path
	}
	return k
}

// LocalKey returns the canonical local identity: file:<path>, path verbatim.
func (s Specifier) LocalKey() string {
	return "file:" + s.LocalPath
}

// Key returns the canonical identity for whichever Kind this specifier is.
func (s Specifier) Key() string {
	switch s.Kind {
	case SourceRegistry:
		return s.RegistryKey()
	case SourceGitHub:
		return s.GitHubKey()
	case SourceLocal:
		return s.LocalKey()
	default:
		return s.Raw
	}
}

// Config captures everything the core needs from its environment, gathered
// once by the caller (normally the CLI) and threaded explicitly through
// every constructor. There is no ambient mutable singleton.
type Config struct {
	ProjectRoot string
	RegistryURL string
	Token       string

	// GitHubToken is read from the GITHUB_TOKEN environment variable by the
	// caller and passed in explicitly.
	GitHubToken string

	// GitHub App transport, used when GitHubToken is empty. All three must
	// be set together or none at all.
	GitHubAppID             int64
	GitHubAppInstallationID int64
	GitHubAppPrivateKey     []byte

	// Agents is the caller-supplied list of agent names to project skills
	// into. When it is empty the orchestrator falls back to the manifest's
	// agents, then to all built-ins; the core never prompts.
	Agents []string

	// FrozenLockfile enables --frozen-lockfile mode (§4.12 step 5).
	FrozenLockfile bool

	// NonInteractive disables any behaviour that would otherwise prompt;
	// the core never prompts itself, but some collaborators consult this
	// flag when deciding whether to call into the core at all.
	NonInteractive bool
}

// AgentSpec is a named consumer and the directory it expects skills under,
// after merging built-in defaults with manifest overrides (§6).
type AgentSpec struct {
	Name      string
	SkillsDir string
}

// InstalledSkill is a resolved, placed skill ready to be projected into
// agent directories by the linker (C11).
type InstalledSkill struct {
	Name      string
	StorePath string // relative to ProjectRoot, e.g. ".pspm/skills/alice/a"
}
