// Package scantree finds manifest-bearing directories under a root.
// The walk is depth-bounded and skips vendor/build noise, so it
// terminates on degenerate trees (symlink cycles included, since
// directory symlinks are never followed).
package scantree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flexigpt/skillpool-go/spec"
)

// maxDepth caps recursion below the root. Skill repos in the wild keep
// manifests within a few levels; anything deeper is adversarial or noise.
const maxDepth = 8

var ignoreDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
}

// IsIgnoredDir reports whether a directory name is never descended.
// The import copier applies the same set.
func IsIgnoredDir(name string) bool {
	_, ok := ignoreDirs[name]
	return ok
}

// FindSkillDirs returns every directory under root that directly
// contains a SKILL.md, sorted lexicographically. A matching directory
// is not descended further; its siblings still are.
func FindSkillDirs(ctx context.Context, root string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := strings.TrimSpace(root)
	if r == "" {
		return nil, fmt.Errorf("%w: empty root", spec.ErrInvalidArgument)
	}
	st, err := os.Stat(r)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", spec.ErrInvalidArgument, r)
	}

	var out []string
	if err := walk(ctx, r, 0, &out); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func walk(ctx context.Context, dir string, depth int, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxDepth {
		return nil
	}

	if hasSkillFile(dir) {
		*out = append(*out, dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable subtrees are noise, not fatal; the root was already
		// stat-checked by the caller.
		if depth == 0 {
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		return nil
	}

	for _, e := range entries {
		// DirEntry reports symlinks as non-directories, so links to
		// directories are naturally not followed.
		if !e.IsDir() {
			continue
		}
		if IsIgnoredDir(e.Name()) {
			continue
		}
		if err := walk(ctx, filepath.Join(dir, e.Name()), depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

func hasSkillFile(dir string) bool {
	st, err := os.Lstat(filepath.Join(dir, spec.SkillFileName))
	return err == nil && st.Mode().IsRegular()
}
