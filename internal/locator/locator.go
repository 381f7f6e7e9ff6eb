// Package locator resolves a skill source string into a local root
// directory. Local paths resolve in place; remote locators are cloned
// into a temporary directory that the returned cleanup removes.
// Code-host "tree" URLs are decomposed into clone URL, ref, and
// subdirectory before resolution.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flexigpt/skillpool-go/internal/pathutil"
	"github.com/flexigpt/skillpool-go/spec"
)

const defaultCloneTimeout = 120 * time.Second

// Request names a skill source. Ref and Subdir are optional; a tree
// URL in Source carries its own and those win on conflict.
type Request struct {
	Source string
	Ref    string
	Subdir string
}

// Resolved is a usable local root. Cleanup must be called on every
// exit path; it is a no-op for local sources.
type Resolved struct {
	RootDir  string
	Cleanup  func()
	Warnings []string
}

// Resolver turns source locators into local directories.
type Resolver struct {
	git          spec.GitClient
	logger       *slog.Logger
	cloneTimeout time.Duration
	tempBase     string
}

type Config struct {
	Git spec.GitClient

	Logger *slog.Logger

	// CloneTimeout bounds the combined git invocations for one source.
	CloneTimeout time.Duration

	// TempBase is the parent directory for clone temp dirs; empty means
	// the OS default.
	TempBase string
}

func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CloneTimeout
	if timeout <= 0 {
		timeout = defaultCloneTimeout
	}
	return &Resolver{
		git:          cfg.Git,
		logger:       logger,
		cloneTimeout: timeout,
		tempBase:     cfg.TempBase,
	}
}

// Resolve resolves req to a local root. On a non-nil error no cleanup
// is owed; any partial clone has already been removed.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolved, error) {
	if err := ctx.Err(); err != nil {
		return Resolved{}, err
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		return Resolved{}, fmt.Errorf("%w: empty source", spec.ErrInvalidArgument)
	}
	ref := strings.TrimSpace(req.Ref)
	subdir := cleanSubdir(req.Subdir)

	var warnings []string
	if tu, ok := parseTreeURL(source); ok {
		if ref != "" && tu.Ref != "" && ref != tu.Ref {
			w := fmt.Sprintf("ref %q embedded in URL overrides requested ref %q", tu.Ref, ref)
			warnings = append(warnings, w)
			r.logger.Warn("source URL conflicts with arguments", "detail", w)
		}
		if subdir != "" && tu.Subdir != "" && subdir != tu.Subdir {
			w := fmt.Sprintf("subdir %q embedded in URL overrides requested subdir %q", tu.Subdir, subdir)
			warnings = append(warnings, w)
			r.logger.Warn("source URL conflicts with arguments", "detail", w)
		}
		source = tu.CloneURL
		if tu.Ref != "" {
			ref = tu.Ref
		}
		if tu.Subdir != "" {
			subdir = tu.Subdir
		}
	}

	if root, ok := localRoot(source); ok {
		root, err := applySubdir(root, subdir)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{RootDir: root, Cleanup: func() {}, Warnings: warnings}, nil
	}

	if !looksRemote(source) {
		return Resolved{}, fmt.Errorf("%w: %q is neither an existing local path nor a recognized remote locator", spec.ErrSourceUnresolved, req.Source)
	}

	tmp, err := os.MkdirTemp(r.tempBase, "skillpool-clone-*")
	if err != nil {
		return Resolved{}, fmt.Errorf("create clone dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }

	if err := r.clone(ctx, source, tmp, ref); err != nil {
		cleanup()
		return Resolved{}, err
	}

	root, err := applySubdir(tmp, subdir)
	if err != nil {
		cleanup()
		return Resolved{}, err
	}
	return Resolved{RootDir: root, Cleanup: cleanup, Warnings: warnings}, nil
}

// clone tries a shallow clone first, then falls back to a full clone
// plus explicit checkout. Shallow and branch clones cannot target
// arbitrary commits, so the fallback covers pinned SHAs.
func (r *Resolver) clone(ctx context.Context, cloneURL, dir, ref string) error {
	cctx := ctx
	if r.cloneTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.cloneTimeout)
		defer cancel()
	}

	shallow, err := r.git.Clone(cctx, cloneURL, dir, spec.CloneOptions{Depth: 1, Ref: ref})
	if err == nil {
		return nil
	}
	if cerr := cctx.Err(); cerr != nil {
		return cerr
	}
	r.logger.Debug("shallow clone failed, retrying full", "url", cloneURL, "err", err)

	_ = os.RemoveAll(dir)
	full, err2 := r.git.Clone(cctx, cloneURL, dir, spec.CloneOptions{})
	if err2 != nil {
		detail := firstNonEmpty(strings.TrimSpace(full.Stderr), strings.TrimSpace(shallow.Stderr), err2.Error())
		return fmt.Errorf("%w: clone %q failed: %s", spec.ErrSourceUnresolved, cloneURL, detail)
	}
	if ref != "" {
		co, err3 := r.git.Checkout(cctx, ref, dir)
		if err3 != nil {
			detail := firstNonEmpty(strings.TrimSpace(co.Stderr), err3.Error())
			return fmt.Errorf("%w: checkout %q failed: %s", spec.ErrSourceUnresolved, ref, detail)
		}
	}
	return nil
}

// localRoot reports whether source is an existing local path and the
// directory to use. A path to the manifest file itself resolves to its
// parent directory.
func localRoot(source string) (string, bool) {
	p := strings.TrimPrefix(source, "file://")
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if !info.IsDir() {
		if filepath.Base(p) != spec.SkillFileName {
			return "", false
		}
		p = filepath.Dir(p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p, true
}

func applySubdir(root, subdir string) (string, error) {
	if subdir == "" {
		return root, nil
	}
	joined, err := pathutil.JoinUnderRoot(root, filepath.FromSlash(subdir))
	if err != nil {
		return "", fmt.Errorf("%w: subdir %q: %v", spec.ErrInvalidArgument, subdir, err)
	}
	info, err := os.Stat(joined)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: subdir %q not found under source", spec.ErrSourceUnresolved, subdir)
	}
	return joined, nil
}

func looksRemote(source string) bool {
	switch {
	case strings.HasPrefix(source, "http://"),
		strings.HasPrefix(source, "https://"),
		strings.HasPrefix(source, "ssh://"),
		strings.HasPrefix(source, "git://"),
		strings.HasPrefix(source, "git@"):
		return true
	}
	return strings.HasSuffix(source, ".git")
}

func cleanSubdir(s string) string {
	return strings.Trim(strings.TrimSpace(s), "/")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type treeURL struct {
	CloneURL string
	Ref      string
	Subdir   string
}

var treeHosts = map[string]bool{
	"github.com":   true,
	"gitlab.com":   true,
	"codeberg.org": true,
}

// parseTreeURL decomposes browser URLs like
// https://github.com/o/r/tree/main/skills/a into clone URL, ref, and
// subdir. A blob URL is accepted only when it points at the manifest
// file; it resolves to the manifest's directory.
func parseTreeURL(source string) (treeURL, bool) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return treeURL{}, false
	}
	host := strings.ToLower(u.Host)
	if !treeHosts[host] {
		return treeURL{}, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 {
		return treeURL{}, false
	}
	owner, repo := parts[0], parts[1]

	// GitLab inserts "/-/" between the repo and the tree segment.
	idx := 2
	if parts[idx] == "-" {
		idx++
	}
	if len(parts) < idx+2 {
		return treeURL{}, false
	}
	kind := parts[idx]
	if kind != "tree" && kind != "blob" {
		return treeURL{}, false
	}

	out := treeURL{
		CloneURL: fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo),
		Ref:      parts[idx+1],
	}
	rest := parts[idx+2:]
	if kind == "blob" {
		if len(rest) == 0 || rest[len(rest)-1] != spec.SkillFileName {
			return treeURL{}, false
		}
		rest = rest[:len(rest)-1]
	}
	if len(rest) > 0 {
		out.Subdir = strings.Join(rest, "/")
	}
	return out, true
}
