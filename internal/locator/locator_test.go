package locator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/flexigpt/skillpool-go/spec"
)

type fakeGit struct {
	cloneCalls    atomic.Int32
	checkoutCalls atomic.Int32

	cloneFn    func(ctx context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error)
	checkoutFn func(ctx context.Context, ref, dir string) (spec.ExecResult, error)
}

func (f *fakeGit) Clone(ctx context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error) {
	f.cloneCalls.Add(1)
	if f.cloneFn != nil {
		return f.cloneFn(ctx, url, dir, opts)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return spec.ExecResult{}, err
	}
	return spec.ExecResult{}, nil
}

func (f *fakeGit) Checkout(ctx context.Context, ref, dir string) (spec.ExecResult, error) {
	f.checkoutCalls.Add(1)
	if f.checkoutFn != nil {
		return f.checkoutFn(ctx, ref, dir)
	}
	return spec.ExecResult{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_LocalDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	git := &fakeGit{}
	r := New(Config{Git: git, Logger: quietLogger()})

	res, err := r.Resolve(t.Context(), Request{Source: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RootDir != dir {
		t.Fatalf("root = %q, want %q", res.RootDir, dir)
	}
	if git.cloneCalls.Load() != 0 {
		t.Fatal("local path must not clone")
	}

	res.Cleanup()
	if _, err := os.Stat(dir); err != nil {
		t.Fatal("cleanup must not remove a local source")
	}
}

func TestResolve_LocalManifestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifest := filepath.Join(dir, spec.SkillFileName)
	if err := os.WriteFile(manifest, []byte("---\nname: x\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(Config{Git: &fakeGit{}, Logger: quietLogger()})
	res, err := r.Resolve(t.Context(), Request{Source: manifest})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RootDir != dir {
		t.Fatalf("root = %q, want manifest parent %q", res.RootDir, dir)
	}
}

func TestResolve_LocalSubdir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "skills", "alpha")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	r := New(Config{Git: &fakeGit{}, Logger: quietLogger()})

	res, err := r.Resolve(t.Context(), Request{Source: dir, Subdir: "skills/alpha"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RootDir != sub {
		t.Fatalf("root = %q, want %q", res.RootDir, sub)
	}

	if _, err := r.Resolve(t.Context(), Request{Source: dir, Subdir: "../escape"}); !errors.Is(err, spec.ErrInvalidArgument) {
		t.Fatalf("subdir escape error = %v, want ErrInvalidArgument", err)
	}

	if _, err := r.Resolve(t.Context(), Request{Source: dir, Subdir: "skills/missing"}); !errors.Is(err, spec.ErrSourceUnresolved) {
		t.Fatalf("missing subdir error = %v, want ErrSourceUnresolved", err)
	}
}

func TestResolve_TreeURLDecomposition(t *testing.T) {
	t.Parallel()

	var gotURL string
	var gotOpts spec.CloneOptions
	git := &fakeGit{
		cloneFn: func(_ context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error) {
			gotURL, gotOpts = url, opts
			return spec.ExecResult{}, os.MkdirAll(filepath.Join(dir, "skills", "alpha"), 0o755)
		},
	}

	base := t.TempDir()
	r := New(Config{Git: git, Logger: quietLogger(), TempBase: base})

	res, err := r.Resolve(t.Context(), Request{
		Source: "https://github.com/octo/pack/tree/v2/skills/alpha",
		Ref:    "main",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer res.Cleanup()

	if gotURL != "https://github.com/octo/pack.git" {
		t.Fatalf("clone url = %q", gotURL)
	}
	if gotOpts.Ref != "v2" || gotOpts.Depth != 1 {
		t.Fatalf("clone opts = %+v, want shallow at v2", gotOpts)
	}
	if !strings.HasSuffix(res.RootDir, filepath.Join("skills", "alpha")) {
		t.Fatalf("root = %q, want subdir applied", res.RootDir)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], `"v2"`) {
		t.Fatalf("warnings = %v, want one ref conflict", res.Warnings)
	}

	res.Cleanup()
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp base not emptied: %v", entries)
	}
}

func TestResolve_ShallowFallback(t *testing.T) {
	t.Parallel()

	git := &fakeGit{}
	git.cloneFn = func(_ context.Context, _, dir string, opts spec.CloneOptions) (spec.ExecResult, error) {
		if opts.Depth > 0 {
			return spec.ExecResult{Stderr: "fatal: cannot shallow-fetch that ref", ExitCode: 128}, errors.New("exit status 128")
		}
		return spec.ExecResult{}, os.MkdirAll(dir, 0o755)
	}

	r := New(Config{Git: git, Logger: quietLogger(), TempBase: t.TempDir()})
	res, err := r.Resolve(t.Context(), Request{Source: "https://example.com/repo.git", Ref: "4f2a9c"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer res.Cleanup()

	if got := git.cloneCalls.Load(); got != 2 {
		t.Fatalf("clone calls = %d, want shallow then full", got)
	}
	if got := git.checkoutCalls.Load(); got != 1 {
		t.Fatalf("checkout calls = %d, want 1", got)
	}
}

func TestResolve_CloneFailure(t *testing.T) {
	t.Parallel()

	git := &fakeGit{
		cloneFn: func(_ context.Context, _, _ string, _ spec.CloneOptions) (spec.ExecResult, error) {
			return spec.ExecResult{Stderr: "fatal: repository not found", ExitCode: 128}, errors.New("exit status 128")
		},
	}

	base := t.TempDir()
	r := New(Config{Git: git, Logger: quietLogger(), TempBase: base})

	_, err := r.Resolve(t.Context(), Request{Source: "https://example.com/gone.git"})
	if !errors.Is(err, spec.ErrSourceUnresolved) {
		t.Fatalf("error = %v, want ErrSourceUnresolved", err)
	}
	if !strings.Contains(err.Error(), "repository not found") {
		t.Fatalf("error %q must carry the git diagnostic", err)
	}

	entries, rdErr := os.ReadDir(base)
	if rdErr != nil {
		t.Fatal(rdErr)
	}
	if len(entries) != 0 {
		t.Fatal("failed clone must remove its temp dir")
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	t.Parallel()

	git := &fakeGit{}
	r := New(Config{Git: git, Logger: quietLogger()})

	_, err := r.Resolve(t.Context(), Request{Source: filepath.Join(t.TempDir(), "nope")})
	if !errors.Is(err, spec.ErrSourceUnresolved) {
		t.Fatalf("error = %v, want ErrSourceUnresolved", err)
	}
	if git.cloneCalls.Load() != 0 {
		t.Fatal("unrecognized source must not clone")
	}

	if _, err := r.Resolve(t.Context(), Request{Source: "   "}); !errors.Is(err, spec.ErrInvalidArgument) {
		t.Fatalf("empty source error = %v, want ErrInvalidArgument", err)
	}
}

func TestResolve_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r := New(Config{Git: &fakeGit{}, Logger: quietLogger()})
	if _, err := r.Resolve(ctx, Request{Source: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestParseTreeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		want   treeURL
		ok     bool
	}{
		{
			name:   "github tree with subdir",
			source: "https://github.com/octo/pack/tree/main/skills/alpha",
			want:   treeURL{CloneURL: "https://github.com/octo/pack.git", Ref: "main", Subdir: "skills/alpha"},
			ok:     true,
		},
		{
			name:   "github tree at root",
			source: "https://github.com/octo/pack/tree/main",
			want:   treeURL{CloneURL: "https://github.com/octo/pack.git", Ref: "main"},
			ok:     true,
		},
		{
			name:   "gitlab dash segment",
			source: "https://gitlab.com/grp/proj/-/tree/dev/skills",
			want:   treeURL{CloneURL: "https://gitlab.com/grp/proj.git", Ref: "dev", Subdir: "skills"},
			ok:     true,
		},
		{
			name:   "codeberg tree",
			source: "https://codeberg.org/octo/pack/tree/main/a",
			want:   treeURL{CloneURL: "https://codeberg.org/octo/pack.git", Ref: "main", Subdir: "a"},
			ok:     true,
		},
		{
			name:   "blob pointing at manifest",
			source: "https://github.com/octo/pack/blob/main/skills/alpha/" + spec.SkillFileName,
			want:   treeURL{CloneURL: "https://github.com/octo/pack.git", Ref: "main", Subdir: "skills/alpha"},
			ok:     true,
		},
		{
			name:   "blob pointing elsewhere",
			source: "https://github.com/octo/pack/blob/main/README.md",
		},
		{
			name:   "plain repo url",
			source: "https://github.com/octo/pack",
		},
		{
			name:   "unknown host",
			source: "https://bitbucket.org/octo/pack/tree/main",
		},
		{
			name:   "local path",
			source: "/srv/skills/alpha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseTreeURL(tt.source)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
