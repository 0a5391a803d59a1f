package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, m.Dependencies)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := New()
	m.AddDependency("@user/alice/a", "^1.0.0")
	m.AddGitHubDependency("github:acme/prompts", "main")
	m.AddLocalDependency("file:../x", "*")
	m.Agents["claude-code"] = AgentOverride{SkillsDir: "custom/skills"}

	require.NoError(t, Save(dir, m))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "^1.0.0", loaded.Dependencies["@user/alice/a"])
	assert.Equal(t, "main", loaded.GitHubDependencies["github:acme/prompts"])
	assert.Equal(t, "*", loaded.LocalDependencies["file:../x"])
	assert.Equal(t, "custom/skills", loaded.Agents["claude-code"].SkillsDir)
}

func TestSavePreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	raw := `{"name":"my-skill","version":"1.0.0","private":true,"dependencies":{"@user/alice/a":"^1.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	m.AddDependency("@user/alice/b", "^2.0.0")
	require.NoError(t, Save(dir, m))

	out, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "name")
	assert.Contains(t, decoded, "private")

	var deps map[string]string
	require.NoError(t, json.Unmarshal(decoded["dependencies"], &deps))
	assert.Equal(t, "^1.0.0", deps["@user/alice/a"])
	assert.Equal(t, "^2.0.0", deps["@user/alice/b"])
}

func TestLoadRejectsMalformedShape(t *testing.T) {
	dir := t.TempDir()
	raw := `{"dependencies": "not-an-object"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestResolveAgentSkillsDirOverrideWins(t *testing.T) {
	m := New()
	m.Agents["claude-code"] = AgentOverride{SkillsDir: "custom"}
	builtins := map[string]string{"claude-code": ".claude/skills"}

	dir, ok := m.ResolveAgentSkillsDir("claude-code", builtins)
	assert.True(t, ok)
	assert.Equal(t, "custom", dir)
}

func TestResolveAgentSkillsDirUnknown(t *testing.T) {
	m := New()
	_, ok := m.ResolveAgentSkillsDir("unknown-agent", map[string]string{"claude-code": ".claude/skills"})
	assert.False(t, ok)
}
