package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	l, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	l := New("https://registry.example")
	l.Packages["@user/alice/a"] = Package{
		Version:   "1.1.0",
		Resolved:  "https://cdn.example/a-1.1.0.tgz",
		Integrity: "sha256-AAAA",
	}

	require.NoError(t, Save(dir, l))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", loaded.Packages["@user/alice/a"].Version)
	assert.Equal(t, "https://registry.example", loaded.RegistryURL)
}

func TestSaveChoosesMinimumVersion(t *testing.T) {
	dir := t.TempDir()
	l := New("")
	l.Packages["@user/alice/a"] = Package{Version: "1.0.0"}
	require.NoError(t, Save(dir, l))

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(2), decoded["lockfileVersion"])
}

func TestSaveBumpsVersionForGitHubPackages(t *testing.T) {
	dir := t.TempDir()
	l := New("")
	l.GitHubPackages["github:acme/prompts"] = GitHubPackage{Version: "abc1234"}
	require.NoError(t, Save(dir, l))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, loaded.LockfileVersion) // normalised shape is always current in memory

	raw, _ := os.ReadFile(filepath.Join(dir, FileName))
	var decoded map[string]interface{}
	json.Unmarshal(raw, &decoded)
	assert.Equal(t, float64(3), decoded["lockfileVersion"])
}

func TestSaveBumpsVersionForDependenciesAndLocal(t *testing.T) {
	dir := t.TempDir()
	l := New("")
	l.Packages["@user/alice/a"] = Package{Version: "1.0.0", Dependencies: map[string]string{"@user/alice/u": "^1.0.0"}}
	require.NoError(t, Save(dir, l))
	raw, _ := os.ReadFile(filepath.Join(dir, FileName))
	var decoded map[string]interface{}
	json.Unmarshal(raw, &decoded)
	assert.Equal(t, float64(4), decoded["lockfileVersion"])

	l.LocalPackages["file:../x"] = LocalPackage{Version: "local", Path: "../x"}
	require.NoError(t, Save(dir, l))
	raw, _ = os.ReadFile(filepath.Join(dir, FileName))
	json.Unmarshal(raw, &decoded)
	assert.Equal(t, float64(5), decoded["lockfileVersion"])
}

func TestLoadUpgradesV1(t *testing.T) {
	dir := t.TempDir()
	raw := `{"skills":{"@user/alice/a":{"version":"1.0.0","resolved":"https://x/a.tgz","integrity":"sha256-AAAA"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(raw), 0o644))

	l, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", l.Packages["@user/alice/a"].Version)

	// Saving renames: the legacy file is gone and the current one exists.
	require.NoError(t, Save(dir, l))
	_, err = os.Stat(filepath.Join(dir, LegacyFileName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
}

func TestUpgradeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New("")
	l.GitHubPackages["github:acme/prompts"] = GitHubPackage{Version: "abc1234"}
	require.NoError(t, Save(dir, l))

	first, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, Save(dir, first))
	second, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	raw := `{"lockfileVersion":999,"packages":{}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestPackageNamesSorted(t *testing.T) {
	l := New("")
	l.Packages["@user/b/x"] = Package{}
	l.Packages["@user/a/x"] = Package{}
	assert.Equal(t, []string{"@user/a/x", "@user/b/x"}, l.PackageNames())
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	l := New("https://registry.example")
	l.Packages["@user/alice/a"] = Package{Version: "1.0.0"}
	l.GitHubPackages["github:acme/prompts"] = GitHubPackage{Version: "abc1234"}
	l.LocalPackages["file:../widget"] = LocalPackage{Version: "local"}

	clone := l.Clone()
	assert.Equal(t, l, clone)

	l.Packages["@user/alice/a"] = Package{Version: "2.0.0"}
	l.GitHubPackages["github:acme/prompts"] = GitHubPackage{Version: "def5678"}
	l.LocalPackages["file:../widget"] = LocalPackage{Version: "local", Path: "moved"}

	assert.Equal(t, "1.0.0", clone.Packages["@user/alice/a"].Version)
	assert.Equal(t, "abc1234", clone.GitHubPackages["github:acme/prompts"].Version)
	assert.Equal(t, "", clone.LocalPackages["file:../widget"].Path)
}
