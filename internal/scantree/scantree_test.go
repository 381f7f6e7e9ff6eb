package scantree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/flexigpt/skillpool-go/spec"
)

func mkSkill(t *testing.T, root string, rel string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(filepath.Join(dir, spec.SkillFileName), []byte("---\nname: x\n---\n"), 0o600); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	return dir
}

func mkDir(t *testing.T, root string, rel string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	return dir
}

func TestFindSkillDirs(t *testing.T) {
	t.Parallel()

	t.Run("finds nested skills in sorted order", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		b := mkSkill(t, root, "skills/beta")
		a := mkSkill(t, root, "skills/alpha")
		c := mkSkill(t, root, "zeta")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		want := []string{a, b, c}
		if len(got) != len(want) {
			t.Fatalf("got %d dirs %v, want %d", len(got), got, len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order mismatch: got %v, want %v", got, want)
			}
		}
	})

	t.Run("root itself is a skill", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		mkSkill(t, root, ".")
		mkSkill(t, root, "inner")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		if len(got) != 1 || got[0] != root {
			t.Fatalf("expected only root match, got %v", got)
		}
	})

	t.Run("matched directory is not descended", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		outer := mkSkill(t, root, "outer")
		mkSkill(t, root, "outer/inner")
		sibling := mkSkill(t, root, "sibling")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		if len(got) != 2 || got[0] != outer || got[1] != sibling {
			t.Fatalf("expected outer+sibling only, got %v", got)
		}
	})

	t.Run("ignored directories are never descended", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		mkSkill(t, root, "node_modules/hidden")
		mkSkill(t, root, ".git/hooks-skill")
		mkSkill(t, root, "vendor/deep/skill")
		visible := mkSkill(t, root, "ok")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		if len(got) != 1 || got[0] != visible {
			t.Fatalf("expected only visible skill, got %v", got)
		}
	})

	t.Run("depth cap bounds the walk", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		deep := "d0"
		for i := 1; i <= maxDepth+2; i++ {
			deep = filepath.Join(deep, "d")
		}
		mkSkill(t, root, deep)
		shallow := mkSkill(t, root, "near")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		if len(got) != 1 || got[0] != shallow {
			t.Fatalf("expected the too-deep skill to be skipped, got %v", got)
		}
	})

	t.Run("directory symlink cycles terminate", func(t *testing.T) {
		t.Parallel()
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}

		root := t.TempDir()
		sub := mkDir(t, root, "sub")
		if err := os.Symlink(root, filepath.Join(sub, "loop")); err != nil {
			t.Fatalf("symlink: %v", err)
		}
		sk := mkSkill(t, root, "sk")

		got, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("FindSkillDirs: %v", err)
		}
		if len(got) != 1 || got[0] != sk {
			t.Fatalf("expected single skill despite cycle, got %v", got)
		}
	})

	t.Run("determinism across runs", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		for _, rel := range []string{"m/one", "a/two", "z/three", "a/b/four"} {
			mkSkill(t, root, rel)
		}

		first, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("first run: %v", err)
		}
		second, err := FindSkillDirs(t.Context(), root)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if strings.Join(first, "|") != strings.Join(second, "|") {
			t.Fatalf("runs differ: %v vs %v", first, second)
		}
	})

	t.Run("missing root errors", func(t *testing.T) {
		t.Parallel()

		_, err := FindSkillDirs(t.Context(), filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatalf("expected error for missing root")
		}
	})

	t.Run("empty root is invalid argument", func(t *testing.T) {
		t.Parallel()

		_, err := FindSkillDirs(t.Context(), "  ")
		if !errors.Is(err, spec.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := FindSkillDirs(ctx, t.TempDir())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
