package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/anyt-io/pspm-cli"
)

// requiredShapeFiles are the two files C7 treats as evidence of a skill
// directory; at least one must be present.
var requiredShapeFiles = []string{"SKILL.md", "pspm.json"}

// LocalFetcher resolves and shape-checks a local skill directory. No bytes
// are read and integrity is unused (§3, §4.7): local skills are symlinked,
// never extracted.
type LocalFetcher struct {
	ProjectRoot string
}

// Fetch implements Fetcher. Result.Bytes and Result.Integrity are always
// zero-valued; Result.Resolved carries the absolute path.
func (f *LocalFetcher) Fetch(ctx context.Context, spec pspm.Specifier) (Result, error) {
	abs := spec.LocalPath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.ProjectRoot, spec.LocalPath)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return Result{}, &pspm.NotFoundError{Identity: spec.LocalKey(), Detail: err.Error()}
	}
	if !info.IsDir() {
		return Result{}, &pspm.NotFoundError{Identity: spec.LocalKey(), Detail: "not a directory"}
	}

	hasShape, entries := hasRequiredShape(abs)
	if !hasShape {
		return Result{}, &pspm.NotFoundError{
			Identity: spec.LocalKey(),
			Detail:   "directory contains neither SKILL.md nor pspm.json; found: " + strings.Join(entries, ", "),
		}
	}

	return Result{Resolved: abs}, nil
}

func hasRequiredShape(dir string) (bool, []string) {
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		return false, nil
	}
	present := map[string]bool{}
	for _, n := range names {
		present[n] = true
	}
	for _, required := range requiredShapeFiles {
		if present[required] {
			return true, names
		}
	}
	return false, names
}

// SkillName infers a local skill's name for lockfile/linker purposes: the
// "name" field of its pspm.json if present, else the final path segment.
func SkillName(resolvedPath string) string {
	raw, err := os.ReadFile(filepath.Join(resolvedPath, "pspm.json"))
	if err == nil {
		var meta struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(raw, &meta) == nil && meta.Name != "" {
			return meta.Name
		}
	}
	return filepath.Base(resolvedPath)
}
