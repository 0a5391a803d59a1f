package extract

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyt-io/pspm-cli"
)

func buildTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if body == "" && name[len(name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if body != "" {
			_, err := tw.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractRegistryStripsTopLevel(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"pkg-1.0.0/":           "",
		"pkg-1.0.0/SKILL.md":   "# hi",
		"pkg-1.0.0/pspm.json":  "{}",
	})

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Extract(dest, archive, KindRegistry, "", ""))

	body, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(body))

	_, err = os.Stat(filepath.Join(dest, "pkg-1.0.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractGitHubStripsWrapper(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"acme-prompts-abc1234/":             "",
		"acme-prompts-abc1234/SKILL.md":     "# review",
		"acme-prompts-abc1234/nested/a.txt": "nested",
	})

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Extract(dest, archive, KindGitHub, "acme/prompts", ""))

	body, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "# review", string(body))

	nested, err := os.ReadFile(filepath.Join(dest, "nested", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(nested))
}

func TestExtractGitHubSubpathSelectsOnlySubtree(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"acme-prompts-abc1234/":                          "",
		"acme-prompts-abc1234/README.md":                 "top",
		"acme-prompts-abc1234/skills/":                   "",
		"acme-prompts-abc1234/skills/review/":             "",
		"acme-prompts-abc1234/skills/review/SKILL.md":     "# review",
		"acme-prompts-abc1234/skills/other/SKILL.md":      "# other",
	})

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Extract(dest, archive, KindGitHub, "acme/prompts", "skills/review"))

	body, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "# review", string(body))

	_, err = os.Stat(filepath.Join(dest, "README.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, "other"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractGitHubSubpathNotFound(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"acme-prompts-abc1234/":          "",
		"acme-prompts-abc1234/README.md": "top",
		"acme-prompts-abc1234/skills/":   "",
	})

	dest := filepath.Join(t.TempDir(), "out")
	err := Extract(dest, archive, KindGitHub, "acme/prompts", "skills/missing")
	require.Error(t, err)

	var pathErr *pspm.GitHubPathNotFoundError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "acme/prompts", pathErr.Repo)
	assert.Equal(t, "skills/missing", pathErr.Path)
	assert.Contains(t, pathErr.TopLevelDirs, "skills")
}

func TestExtractReplacesPriorContent(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o644))

	archive := buildTarGz(t, map[string]string{
		"pkg-2.0.0/":         "",
		"pkg-2.0.0/SKILL.md": "new",
	})
	require.NoError(t, Extract(dest, archive, KindRegistry, "", ""))

	_, err := os.Stat(filepath.Join(dest, "stale.txt"))
	assert.True(t, os.IsNotExist(err))

	body, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(body))
}
