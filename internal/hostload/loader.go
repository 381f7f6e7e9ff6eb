// Package hostload is the host side of skill intake: the strict
// loader that decides which installed skills are accepted, and the
// status reporter that checks machine-level eligibility.
package hostload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flexigpt/skillpool-go/internal/scantree"
	"github.com/flexigpt/skillpool-go/internal/skillfile"
	"github.com/flexigpt/skillpool-go/spec"
)

type LoaderConfig struct {
	Logger *slog.Logger
}

// Loader applies the host's acceptance rules to installed skills.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadSkills loads every skill directly under the given roots, in
// order. Earlier roots win duplicate names; the shadowed skill is
// reported as a diagnostic, not loaded. Roots that do not exist are
// skipped, and directories without a manifest are ignored silently.
func (l *Loader) LoadSkills(ctx context.Context, roots []string) ([]spec.LoadedSkill, []spec.LoadDiagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var loaded []spec.LoadedSkill
	var diags []spec.LoadDiagnostic
	winner := map[string]string{}

	for _, root := range roots {
		if root == "" {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("read install root %s: %w", root, err)
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if !entry.IsDir() || scantree.IsIgnoredDir(entry.Name()) {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if info, err := os.Lstat(skillfile.SkillFilePath(dir)); err != nil || !info.Mode().IsRegular() {
				continue
			}

			s, ds, err := l.loadOne(ctx, dir)
			if err != nil {
				return nil, nil, err
			}
			diags = append(diags, ds...)
			if s == nil {
				continue
			}
			if prev, dup := winner[s.Name]; dup {
				diags = append(diags, spec.LoadDiagnostic{
					Type:    spec.DiagDuplicateName,
					Message: fmt.Sprintf("name %q already loaded from %s", s.Name, prev),
					Path:    dir,
					Skill:   s.Name,
				})
				continue
			}
			winner[s.Name] = dir
			loaded = append(loaded, *s)
		}
	}

	l.logger.Debug("skills loaded", "count", len(loaded), "diagnostics", len(diags))
	return loaded, diags, nil
}

// loadOne accepts or rejects a single skill directory. A rejected
// skill returns nil with at least one diagnostic; the error return is
// context cancellation only.
func (l *Loader) loadOne(ctx context.Context, dir string) (*spec.LoadedSkill, []spec.LoadDiagnostic, error) {
	path := skillfile.SkillFilePath(dir)
	man, err := skillfile.ParseStrict(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, []spec.LoadDiagnostic{{
			Type:    spec.DiagParseFailure,
			Message: err.Error(),
			Path:    path,
		}}, nil
	}

	base := filepath.Base(dir)
	reject := func(t spec.DiagnosticType, msg string) (*spec.LoadedSkill, []spec.LoadDiagnostic, error) {
		return nil, []spec.LoadDiagnostic{{Type: t, Message: msg, Path: dir, Skill: man.Name}}, nil
	}

	if man.Name == "" {
		return reject(spec.DiagMissingName, "frontmatter has no name")
	}
	if err := skillfile.ValidateName(man.Name); err != nil {
		return reject(spec.DiagInvalidField, fmt.Sprintf("name: %v", err))
	}
	if man.Name != base {
		return reject(spec.DiagNameMismatch, fmt.Sprintf("declared name %q does not match directory %q", man.Name, base))
	}
	if man.Description == "" {
		return reject(spec.DiagMissingDescription, "frontmatter has no description")
	}
	if err := skillfile.ValidateDescription(man.Description); err != nil {
		return reject(spec.DiagInvalidField, fmt.Sprintf("description: %v", err))
	}

	s := &spec.LoadedSkill{
		Name:        man.Name,
		Description: man.Description,
		RootDir:     dir,
		SkillFile:   path,
		Digest:      man.Digest,
	}
	// Malformed host metadata does not block loading; the validator
	// reports it separately.
	if hm, ok := skillfile.DecodeHostManifest(man.Metadata); ok {
		s.Host = &hm
	}
	return s, nil, nil
}
