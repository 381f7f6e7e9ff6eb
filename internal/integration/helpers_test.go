package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	skillpool "github.com/flexigpt/skillpool-go"
	"github.com/flexigpt/skillpool-go/spec"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGit struct {
	cloneCalls    atomic.Int32
	checkoutCalls atomic.Int32

	cloneFn    func(ctx context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error)
	checkoutFn func(ctx context.Context, ref, dir string) (spec.ExecResult, error)
}

func (g *fakeGit) Clone(ctx context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error) {
	g.cloneCalls.Add(1)
	if g.cloneFn != nil {
		return g.cloneFn(ctx, url, dir, opts)
	}
	return spec.ExecResult{Stderr: "fatal: no fake clone configured", ExitCode: 128},
		fmt.Errorf("no fake clone configured for %s", url)
}

func (g *fakeGit) Checkout(ctx context.Context, ref, dir string) (spec.ExecResult, error) {
	g.checkoutCalls.Add(1)
	if g.checkoutFn != nil {
		return g.checkoutFn(ctx, ref, dir)
	}
	return spec.ExecResult{}, nil
}

// populatingClone returns a cloneFn that writes the given skill
// directories (relative path -> manifest body) into the clone target.
func populatingClone(t *testing.T, skills map[string]string) func(context.Context, string, string, spec.CloneOptions) (spec.ExecResult, error) {
	t.Helper()
	return func(_ context.Context, _, dir string, _ spec.CloneOptions) (spec.ExecResult, error) {
		for rel, manifest := range skills {
			d := filepath.Join(dir, filepath.FromSlash(rel))
			if err := os.MkdirAll(d, 0o755); err != nil {
				return spec.ExecResult{ExitCode: 1}, err
			}
			if err := os.WriteFile(filepath.Join(d, spec.SkillFileName), []byte(manifest), 0o644); err != nil {
				return spec.ExecResult{ExitCode: 1}, err
			}
		}
		return spec.ExecResult{}, nil
	}
}

func mustNewPipeline(t *testing.T, opts ...skillpool.Option) *skillpool.Pipeline {
	t.Helper()
	p, err := skillpool.New(append(opts, skillpool.WithLogger(quiet()))...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p == nil {
		t.Fatalf("New: got nil pipeline")
	}
	return p
}

func plainManifest(name string) string {
	return fmt.Sprintf("---\nname: %s\ndescription: Helps with %s tasks.\n---\n\nBody.\n", name, name)
}

func writeSkillDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, spec.SkillFileName), []byte(plainManifest(name)), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}
