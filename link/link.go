// Package link implements C11: projecting installed skills into per-agent
// directories with relative symlinks, idempotently.
package link

import (
	"os"
	"path/filepath"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/log"
)

// BuiltinAgents is the default agent-name to skillsDir table from §6.
var BuiltinAgents = map[string]string{
	"claude-code": ".claude/skills",
	"codex":       ".codex/skills",
	"cursor":      ".cursor/skills",
	"gemini":      ".gemini/skills",
	"kiro":        ".kiro/skills",
	"opencode":    ".opencode/skills",
}

// None is the special agent name meaning "link into no agent": Link skips
// it, so when it is the sole selected agent Link creates no symlinks. The
// orchestrator still calls Link in that case.
const None = "none"

// Linker reconciles agent symlinks against the installed-skill set.
type Linker struct {
	ProjectRoot string
	Logger      *log.Logger
}

// Link resolves each agent's skillsDir (built-ins merged with manifest
// overrides) and reconciles a symlink per skill under it. Unknown agent
// names are warned about and skipped, never fatal.
func (l *Linker) Link(agents []string, overrides map[string]string, skills []pspm.InstalledSkill) error {
	for _, agent := range agents {
		if agent == None {
			continue
		}
		skillsDir, ok := resolveSkillsDir(agent, overrides)
		if !ok {
			l.warnf("unknown agent %q; skipping", agent)
			continue
		}

		absDir := filepath.Join(l.ProjectRoot, skillsDir)
		if err := os.MkdirAll(absDir, 0o755); err != nil {
			return &pspm.FilesystemError{Path: absDir, Op: "mkdir", Err: err}
		}

		for _, skill := range skills {
			if err := l.reconcileOne(absDir, skill); err != nil {
				l.warnf("linking %s for %s: %s", skill.Name, agent, err)
			}
		}
	}
	return nil
}

func resolveSkillsDir(agent string, overrides map[string]string) (string, bool) {
	if dir, ok := overrides[agent]; ok {
		return dir, true
	}
	if dir, ok := BuiltinAgents[agent]; ok {
		return dir, true
	}
	return "", false
}

// reconcileOne applies the four rules from §4.11 at a single symlink path.
// It never follows an existing symlink — it inspects the link itself via
// os.Lstat, not its resolved target, to decide whether to replace it (§5).
func (l *Linker) reconcileOne(agentDir string, skill pspm.InstalledSkill) error {
	symlink := filepath.Join(agentDir, skill.Name)
	target := filepath.Join(l.ProjectRoot, skill.StorePath)

	relTarget, err := filepath.Rel(agentDir, target)
	if err != nil {
		return &pspm.FilesystemError{Path: symlink, Op: "relpath", Err: err}
	}

	info, err := os.Lstat(symlink)
	switch {
	case os.IsNotExist(err):
		return os.Symlink(relTarget, symlink)
	case err != nil:
		return &pspm.FilesystemError{Path: symlink, Op: "lstat", Err: err}
	}

	if info.Mode()&os.ModeSymlink == 0 {
		l.warnf("%s exists and is not a symlink; leaving it alone", symlink)
		return nil
	}

	existing, err := os.Readlink(symlink)
	if err != nil {
		return &pspm.FilesystemError{Path: symlink, Op: "readlink", Err: err}
	}
	if existing == relTarget {
		return nil
	}

	if err := os.Remove(symlink); err != nil {
		return &pspm.FilesystemError{Path: symlink, Op: "remove", Err: err}
	}
	return os.Symlink(relTarget, symlink)
}

func (l *Linker) warnf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Warnf(format, args...)
	}
}
