package install

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/lockfile"
)

func TestResolveFromLockBuildsGraphWithoutNetwork(t *testing.T) {
	lf := lockfile.New("https://registry.example.com")
	lf.Packages["@user/alice/a"] = lockfile.Package{
		Version:      "1.0.0",
		Resolved:     "https://registry.example.com/alice/a/1.0.0.tgz",
		Integrity:    "sha256-deadbeef",
		Dependencies: map[string]string{"@user/alice/b": "^2.0.0"},
	}
	lf.Packages["@user/alice/b"] = lockfile.Package{
		Version:   "2.0.0",
		Resolved:  "https://registry.example.com/alice/b/2.0.0.tgz",
		Integrity: "sha256-cafef00d",
	}

	res := resolveFromLock(map[string]string{"@user/alice/a": "^1.0.0"}, lf)

	require.True(t, res.Success)
	require.Contains(t, res.Graph.Nodes, "@user/alice/a")
	require.Contains(t, res.Graph.Nodes, "@user/alice/b")

	a := res.Graph.Nodes["@user/alice/a"]
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "a", a.SkillName)
	assert.Equal(t, "1.0.0", a.Version)
	assert.True(t, a.IsDirect)

	b := res.Graph.Nodes["@user/alice/b"]
	assert.False(t, b.IsDirect)

	assert.Equal(t, []string{"@user/alice/b", "@user/alice/a"}, res.InstallOrder)
}

func TestResolveFromLockReportsMissingEntry(t *testing.T) {
	lf := lockfile.New("https://registry.example.com")

	res := resolveFromLock(map[string]string{"@user/alice/a": "^1.0.0"}, lf)

	assert.False(t, res.Success)
	require.Len(t, res.Graph.Errors, 1)
	var frozenErr *pspm.FrozenLockfileError
	require.ErrorAs(t, res.Graph.Errors[0], &frozenErr)
	assert.Equal(t, "@user/alice/a", frozenErr.Identity)
}

func TestResolveFromLockReportsMissingTransitiveDep(t *testing.T) {
	lf := lockfile.New("https://registry.example.com")
	lf.Packages["@user/alice/a"] = lockfile.Package{
		Version:      "1.0.0",
		Dependencies: map[string]string{"@user/alice/missing": "^1.0.0"},
	}

	res := resolveFromLock(map[string]string{"@user/alice/a": "^1.0.0"}, lf)

	assert.False(t, res.Success)
	require.Len(t, res.Graph.Errors, 1)
	var frozenErr *pspm.FrozenLockfileError
	require.ErrorAs(t, res.Graph.Errors[0], &frozenErr)
	assert.Equal(t, "@user/alice/missing", frozenErr.Identity)
}
